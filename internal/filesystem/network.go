package filesystem

import (
	"path/filepath"
	"strings"
)

// networkPrefixes lists additional mount prefixes treated as network
// paths. Configured once at startup.
var networkPrefixes []string

// SetNetworkPrefixes registers mount-point prefixes (e.g. "/mnt/nas")
// whose subtrees should be treated as network paths.
func SetNetworkPrefixes(prefixes []string) {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(p))
	}
	networkPrefixes = cleaned
}

// IsNetworkPath reports whether a path refers to a network share: a UNC
// path, a URL-style path, or a subtree of a configured network mount.
func IsNetworkPath(path string) bool {
	if strings.HasPrefix(path, `\\`) || strings.Contains(path, "://") {
		return true
	}

	cleaned := filepath.Clean(path)
	for _, prefix := range networkPrefixes {
		if cleaned == prefix || strings.HasPrefix(cleaned, prefix+string(filepath.Separator)) {
			return true
		}
	}

	return false
}
