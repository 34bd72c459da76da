package metrics

import (
	"time"

	"dirindex/internal/logging"
)

// StatsProvider supplies index-wide gauges for periodic collection.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current index statistics.
type Stats struct {
	TotalFiles      int
	TotalDirs       int
	RootsByStatus   map[string]int
	OpenConnections int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	StoreEntriesTotal.WithLabelValues("file").Set(float64(stats.TotalFiles))
	StoreEntriesTotal.WithLabelValues("dir").Set(float64(stats.TotalDirs))
	StoreConnectionsOpen.Set(float64(stats.OpenConnections))

	for _, status := range []string{"normal", "warning", "error", "disabled"} {
		StoreRootsTotal.WithLabelValues(status).Set(float64(stats.RootsByStatus[status]))
	}

	logging.Debug("Metrics collected: files=%d, dirs=%d, roots=%v",
		stats.TotalFiles, stats.TotalDirs, stats.RootsByStatus)
}
