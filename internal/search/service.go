// Package search is the read-side façade over the index: bounded name
// search, hierarchical browsing and bulk export. It validates and
// normalizes request input so the store only sees well-formed queries.
package search

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dirindex/internal/conflict"
	"dirindex/internal/store"
)

// maxKeywordLen bounds user input before it reaches the FTS engine.
const maxKeywordLen = 256

// Service answers read queries against the index.
type Service struct {
	store *store.Store
}

// NewService creates a search service over the store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Query is a user-facing search request before normalization.
type Query struct {
	// Keyword is the raw search text.
	Keyword string
	// Extensions is a comma-separated extension filter ("mp4,mkv").
	Extensions string
	// RootID restricts the search to one root (0 = all).
	RootID int64
	// Limit caps results; values outside (0, SearchLimit] are clamped.
	Limit int
}

// Search runs a bounded search. Results are capped at the row ceiling
// and the Truncated flag tells the caller to narrow the query rather
// than paginate further.
func (s *Service) Search(ctx context.Context, q Query) (*store.SearchResult, error) {
	keyword := strings.TrimSpace(q.Keyword)
	if len(keyword) > maxKeywordLen {
		keyword = keyword[:maxKeywordLen]
	}

	return s.store.Search(ctx, store.SearchOptions{
		Keyword:    keyword,
		Extensions: splitExtensions(q.Extensions),
		RootID:     q.RootID,
		Limit:      q.Limit,
	})
}

// Browse lists the direct children of a directory inside a root. The
// path must be the root itself or lie within it.
func (s *Service) Browse(ctx context.Context, rootID int64, path string) ([]store.FileEntry, error) {
	root, err := s.store.GetRoot(ctx, rootID)
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = root.Path
	}
	path = conflict.Normalize(path)

	if !strings.EqualFold(path, root.Path) {
		result := conflict.Check(path, []store.WatchedRoot{*root})
		within := false
		for _, c := range result.Conflicts {
			if c.Relation == conflict.DescendantOfExisting {
				within = true
			}
		}
		if !within {
			return nil, fmt.Errorf("path %s is outside root %s", path, root.Path)
		}
	}

	return s.store.ListChildren(ctx, rootID, path)
}

// ExportJSON streams every entry of a root as a JSON array.
func (s *Service) ExportJSON(ctx context.Context, rootID int64, w io.Writer) error {
	if _, err := s.store.GetRoot(ctx, rootID); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return err
	}

	first := true
	err := s.store.ExportRoot(ctx, rootID, func(entry store.FileEntry) error {
		if !first {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return err
			}
		}
		first = false
		return enc.Encode(entry)
	})
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, "]\n")
	return err
}

// ExportCSV streams every entry of a root as CSV with a header row.
func (s *Service) ExportCSV(ctx context.Context, rootID int64, w io.Writer) error {
	if _, err := s.store.GetRoot(ctx, rootID); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"path", "name", "extension", "size", "mtime", "is_dir"}); err != nil {
		return err
	}

	err := s.store.ExportRoot(ctx, rootID, func(entry store.FileEntry) error {
		return cw.Write([]string{
			entry.Path,
			entry.Name,
			entry.Extension,
			strconv.FormatInt(entry.Size, 10),
			entry.ModTime.UTC().Format("2006-01-02T15:04:05Z"),
			strconv.FormatBool(entry.IsDir),
		})
	})
	if err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// Stats returns aggregate index statistics.
func (s *Service) Stats(ctx context.Context) (store.IndexStats, error) {
	return s.store.CalculateStats(ctx)
}

// Extensions returns per-extension file counts, most common first.
func (s *Service) Extensions(ctx context.Context) ([]store.ExtensionCount, error) {
	return s.store.ExtensionCounts(ctx)
}

func splitExtensions(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	exts := parts[:0]
	for _, p := range parts {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "."))
		if p != "" {
			exts = append(exts, p)
		}
	}
	if len(exts) == 0 {
		return nil
	}
	return exts
}
