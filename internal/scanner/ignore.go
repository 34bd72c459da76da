package scanner

import "path/filepath"

// DefaultIgnorePatterns are applied when the configuration provides
// none. They cover hidden entries and the usual Windows share noise.
var DefaultIgnorePatterns = IgnoreList{
	".*",
	"$RECYCLE.BIN",
	"System Volume Information",
	"Thumbs.db",
}

// IgnoreList filters entries by base name at enumeration time, before
// any metadata is read.
type IgnoreList []string

// Match reports whether a base name should be excluded from the index.
// Patterns are exact names or filepath.Match globs; ".*" matches any
// hidden entry.
func (l IgnoreList) Match(name string) bool {
	for _, pattern := range l {
		if pattern == name {
			return true
		}
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
