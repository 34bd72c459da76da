// Package conflict decides whether a candidate root may coexist with
// the roots already being watched. Nested roots are rejected or merged
// so no file is ever indexed twice under two different roots.
package conflict

import (
	"path/filepath"
	"strings"

	"dirindex/internal/store"
)

// Relation describes how a candidate path relates to an existing root.
type Relation int

const (
	// NoConflict means the paths are disjoint.
	NoConflict Relation = iota
	// SamePath means the candidate is already watched.
	SamePath
	// AncestorOfExisting means the candidate contains an existing root.
	// Registering it is allowed by merging: the nested roots are
	// removed and the candidate takes over their subtrees.
	AncestorOfExisting
	// DescendantOfExisting means the candidate lies inside an existing
	// root and is already covered by it.
	DescendantOfExisting
)

func (r Relation) String() string {
	switch r {
	case SamePath:
		return "same path"
	case AncestorOfExisting:
		return "ancestor of existing root"
	case DescendantOfExisting:
		return "descendant of existing root"
	default:
		return "no conflict"
	}
}

// Conflict pairs a relation with the existing root it involves.
type Conflict struct {
	Relation Relation
	Existing store.WatchedRoot
}

// Result is the outcome of checking a candidate against all existing
// roots.
type Result struct {
	Conflicts []Conflict
}

// OK reports whether the candidate can be registered as-is.
func (r *Result) OK() bool {
	return len(r.Conflicts) == 0
}

// Mergeable reports whether every conflict is an ancestor relation, in
// which case registration may proceed by removing the nested roots.
func (r *Result) Mergeable() bool {
	if len(r.Conflicts) == 0 {
		return false
	}
	for _, c := range r.Conflicts {
		if c.Relation != AncestorOfExisting {
			return false
		}
	}
	return true
}

// MergeVictims returns the existing roots that a merge would remove.
func (r *Result) MergeVictims() []store.WatchedRoot {
	var victims []store.WatchedRoot
	for _, c := range r.Conflicts {
		if c.Relation == AncestorOfExisting {
			victims = append(victims, c.Existing)
		}
	}
	return victims
}

// Check compares the candidate path against every existing root.
// Comparison is case-insensitive so Windows shares mounted with
// differing case do not slip past the nesting rule.
func Check(candidate string, existing []store.WatchedRoot) *Result {
	result := &Result{}
	normalized := Normalize(candidate)

	for _, root := range existing {
		rootPath := Normalize(root.Path)
		switch {
		case strings.EqualFold(normalized, rootPath):
			result.Conflicts = append(result.Conflicts, Conflict{SamePath, root})
		case isWithin(rootPath, normalized):
			result.Conflicts = append(result.Conflicts, Conflict{AncestorOfExisting, root})
		case isWithin(normalized, rootPath):
			result.Conflicts = append(result.Conflicts, Conflict{DescendantOfExisting, root})
		}
	}
	return result
}

// Normalize cleans a path for comparison and storage: redundant
// separators and trailing slashes removed, forward slashes throughout
// except for UNC prefixes.
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, `\\`) {
		// UNC share: keep backslash form, just trim the tail.
		return strings.TrimRight(path, `\/`)
	}
	return filepath.Clean(strings.ReplaceAll(path, `\`, "/"))
}

// isWithin reports whether child is strictly inside parent. The
// separator guard keeps "/data/ab" out of "/data/a".
func isWithin(child, parent string) bool {
	if len(child) <= len(parent) {
		return false
	}
	if !strings.EqualFold(child[:len(parent)], parent) {
		return false
	}
	sep := child[len(parent)]
	return sep == '/' || sep == '\\'
}
