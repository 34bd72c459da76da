package conflict

import (
	"testing"

	"dirindex/internal/store"
)

func roots(paths ...string) []store.WatchedRoot {
	var out []store.WatchedRoot
	for i, p := range paths {
		out = append(out, store.WatchedRoot{ID: int64(i + 1), Path: p})
	}
	return out
}

func TestCheckRelations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate string
		existing  []store.WatchedRoot
		want      Relation
	}{
		{"disjoint", "/data/movies", roots("/data/music"), NoConflict},
		{"same path", "/data/movies", roots("/data/movies"), SamePath},
		{"same path different case", "/Data/Movies", roots("/data/movies"), SamePath},
		{"same path trailing slash", "/data/movies/", roots("/data/movies"), SamePath},
		{"candidate inside existing", "/data/movies/hd", roots("/data/movies"), DescendantOfExisting},
		{"candidate contains existing", "/data", roots("/data/movies"), AncestorOfExisting},
		{"name prefix is not nesting", "/data/ab", roots("/data/a"), NoConflict},
		{"case-insensitive nesting", "/DATA/movies/sub", roots("/data/movies"), DescendantOfExisting},
		{"unc nesting", `\\server\share\sub`, roots(`\\server\share`), DescendantOfExisting},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := Check(tt.candidate, tt.existing)
			if tt.want == NoConflict {
				if !result.OK() {
					t.Fatalf("Check(%q) = %+v, want no conflict", tt.candidate, result.Conflicts)
				}
				return
			}
			if result.OK() {
				t.Fatalf("Check(%q) found no conflict, want %v", tt.candidate, tt.want)
			}
			if got := result.Conflicts[0].Relation; got != tt.want {
				t.Errorf("Check(%q) relation = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestMergeable(t *testing.T) {
	t.Parallel()

	existing := roots("/data/movies", "/data/music")

	// Swallowing both nested roots is a merge.
	result := Check("/data", existing)
	if !result.Mergeable() {
		t.Errorf("ancestor-only conflicts should be mergeable: %+v", result.Conflicts)
	}
	victims := result.MergeVictims()
	if len(victims) != 2 {
		t.Errorf("MergeVictims() returned %d roots, want 2", len(victims))
	}

	// A same-path conflict in the mix blocks the merge.
	result = Check("/data/movies", existing)
	if result.Mergeable() {
		t.Errorf("same-path conflict must not be mergeable: %+v", result.Conflicts)
	}

	// No conflicts means nothing to merge.
	result = Check("/elsewhere", existing)
	if result.Mergeable() {
		t.Error("conflict-free result must not be mergeable")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/data/movies/", "/data/movies"},
		{"/data//movies/./", "/data/movies"},
		{`C:\Media\Movies`, "C:/Media/Movies"},
		{`  /data/movies  `, "/data/movies"},
		{`\\server\share\`, `\\server\share`},
		{`\\server\share`, `\\server\share`},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		child  string
		parent string
		want   bool
	}{
		{"/data/a/file", "/data/a", true},
		{"/data/a", "/data/a", false},
		{"/data/ab", "/data/a", false},
		{"/data/A/file", "/data/a", true},
		{`\\server\share\sub`, `\\server\share`, true},
	}
	for _, tt := range tests {
		if got := isWithin(tt.child, tt.parent); got != tt.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tt.child, tt.parent, got, tt.want)
		}
	}
}

func TestRelationString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		r    Relation
		want string
	}{
		{NoConflict, "no conflict"},
		{SamePath, "same path"},
		{AncestorOfExisting, "ancestor of existing root"},
		{DescendantOfExisting, "descendant of existing root"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Relation(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}
