package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRoot(t *testing.T, s *Store, path string) *WatchedRoot {
	t.Helper()

	root := &WatchedRoot{
		Path:         path,
		Kind:         KindLocal,
		PollInterval: 5 * time.Minute,
		Enabled:      true,
	}
	if err := s.CreateRoot(context.Background(), root); err != nil {
		t.Fatalf("CreateRoot() failed: %v", err)
	}
	return root
}

func testEntry(rootID int64, path string, size int64, generation int64) FileEntry {
	return FileEntry{
		RootID:     rootID,
		Path:       path,
		ParentPath: filepath.Dir(path),
		Name:       filepath.Base(path),
		Extension:  "txt",
		Size:       size,
		ModTime:    time.Unix(1700000000, 0),
		Generation: generation,
	}
}

func TestStorageErrorKeepsCause(t *testing.T) {
	s := newTestStore(t)
	root := newTestRoot(t, s, "/data/lib")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.NextGeneration(ctx, root.ID)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("NextGeneration(canceled) error = %v, want ErrStorage", err)
	}
	// Callers distinguish shutdown from failure by the cause, so the
	// wrap must keep the driver error on the chain.
	if !errors.Is(err, context.Canceled) {
		t.Errorf("NextGeneration(canceled) error = %v, want context.Canceled on the chain", err)
	}
}

func TestCreateAndGetRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := newTestRoot(t, s, "/data/docs")
	if root.ID == 0 {
		t.Fatal("CreateRoot() did not assign an ID")
	}

	got, err := s.GetRoot(ctx, root.ID)
	if err != nil {
		t.Fatalf("GetRoot() failed: %v", err)
	}
	if got.Path != "/data/docs" || got.Kind != KindLocal || !got.Enabled {
		t.Errorf("GetRoot() = %+v, want path=/data/docs kind=local enabled", got)
	}
	if got.Status != HealthNormal {
		t.Errorf("new root status = %q, want %q", got.Status, HealthNormal)
	}

	byPath, err := s.GetRootByPath(ctx, "/data/docs")
	if err != nil {
		t.Fatalf("GetRootByPath() failed: %v", err)
	}
	if byPath.ID != root.ID {
		t.Errorf("GetRootByPath() ID = %d, want %d", byPath.ID, root.ID)
	}

	if _, err := s.GetRoot(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRoot(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSetRootEnabledResetsFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/share")

	if err := s.UpdateRootSync(ctx, root.ID, HealthError, time.Time{}, 4); err != nil {
		t.Fatalf("UpdateRootSync() failed: %v", err)
	}
	if err := s.SetRootEnabled(ctx, root.ID, false); err != nil {
		t.Fatalf("SetRootEnabled(false) failed: %v", err)
	}

	got, _ := s.GetRoot(ctx, root.ID)
	if got.Enabled || got.Status != HealthDisabled {
		t.Errorf("disabled root = enabled=%v status=%q, want disabled", got.Enabled, got.Status)
	}

	if err := s.SetRootEnabled(ctx, root.ID, true); err != nil {
		t.Fatalf("SetRootEnabled(true) failed: %v", err)
	}
	got, _ = s.GetRoot(ctx, root.ID)
	if !got.Enabled || got.Status != HealthNormal || got.FailCount != 0 {
		t.Errorf("re-enabled root = %+v, want enabled, normal, failCount 0", got)
	}

	if err := s.SetRootEnabled(ctx, 9999, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRootEnabled(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGenerationCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/gen")

	g1, err := s.NextGeneration(ctx, root.ID)
	if err != nil {
		t.Fatalf("NextGeneration() failed: %v", err)
	}
	g2, err := s.NextGeneration(ctx, root.ID)
	if err != nil {
		t.Fatalf("NextGeneration() failed: %v", err)
	}
	if g2 != g1+1 {
		t.Errorf("generations = %d, %d; want consecutive", g1, g2)
	}

	current, err := s.CurrentGeneration(ctx, root.ID)
	if err != nil {
		t.Fatalf("CurrentGeneration() failed: %v", err)
	}
	if current != g2 {
		t.Errorf("CurrentGeneration() = %d, want %d", current, g2)
	}
}

func TestUpsertAndSignatures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/up")

	entries := []FileEntry{
		testEntry(root.ID, "/data/up/a.txt", 100, 1),
		testEntry(root.ID, "/data/up/b.txt", 200, 1),
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	sigs, err := s.LoadSignatures(ctx, root.ID)
	if err != nil {
		t.Fatalf("LoadSignatures() failed: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("LoadSignatures() returned %d entries, want 2", len(sigs))
	}
	if sigs["/data/up/a.txt"].Size != 100 {
		t.Errorf("signature size = %d, want 100", sigs["/data/up/a.txt"].Size)
	}

	// Same path upserts in place rather than duplicating.
	entries[0].Size = 150
	if err := s.UpsertEntries(ctx, entries[:1]); err != nil {
		t.Fatalf("UpsertEntries() update failed: %v", err)
	}
	got, err := s.GetEntry(ctx, root.ID, "/data/up/a.txt")
	if err != nil {
		t.Fatalf("GetEntry() failed: %v", err)
	}
	if got.Size != 150 {
		t.Errorf("updated size = %d, want 150", got.Size)
	}

	sigs, _ = s.LoadSignatures(ctx, root.ID)
	if len(sigs) != 2 {
		t.Errorf("after update, %d entries exist, want 2", len(sigs))
	}
}

func TestTouchAndDeleteMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/gc")

	gen1, _ := s.NextGeneration(ctx, root.ID)
	entries := []FileEntry{
		testEntry(root.ID, "/data/gc/keep.txt", 1, gen1),
		testEntry(root.ID, "/data/gc/stale.txt", 2, gen1),
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	gen2, _ := s.NextGeneration(ctx, root.ID)
	if err := s.TouchEntries(ctx, root.ID, gen2, []string{"/data/gc/keep.txt"}); err != nil {
		t.Fatalf("TouchEntries() failed: %v", err)
	}

	deleted, err := s.DeleteMissing(ctx, root.ID, gen2)
	if err != nil {
		t.Fatalf("DeleteMissing() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteMissing() = %d, want 1", deleted)
	}

	if _, err := s.GetEntry(ctx, root.ID, "/data/gc/keep.txt"); err != nil {
		t.Errorf("touched entry was purged: %v", err)
	}
	if _, err := s.GetEntry(ctx, root.ID, "/data/gc/stale.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale entry survived, err = %v", err)
	}
}

func TestDeleteEntriesSubtree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data")

	paths := []string{
		"/data/a",
		"/data/a/one.txt",
		"/data/a/sub/two.txt",
		"/data/ab/other.txt",
	}
	var entries []FileEntry
	for _, p := range paths {
		entries = append(entries, testEntry(root.ID, p, 1, 1))
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	deleted, err := s.DeleteEntries(ctx, root.ID, []string{"/data/a"})
	if err != nil {
		t.Fatalf("DeleteEntries() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("DeleteEntries() = %d, want 3", deleted)
	}

	// The sibling sharing a name prefix must survive.
	if _, err := s.GetEntry(ctx, root.ID, "/data/ab/other.txt"); err != nil {
		t.Errorf("prefix sibling was deleted: %v", err)
	}
}

func TestListChildrenOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/ls")

	dir := testEntry(root.ID, "/data/ls/zdir", 0, 1)
	dir.IsDir = true
	dir.Extension = ""
	entries := []FileEntry{
		testEntry(root.ID, "/data/ls/beta.txt", 1, 1),
		testEntry(root.ID, "/data/ls/Alpha.txt", 1, 1),
		dir,
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	children, err := s.ListChildren(ctx, root.ID, "/data/ls")
	if err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("ListChildren() returned %d entries, want 3", len(children))
	}
	if !children[0].IsDir {
		t.Errorf("first child = %q, want the directory first", children[0].Name)
	}
	if children[1].Name != "Alpha.txt" || children[2].Name != "beta.txt" {
		t.Errorf("file order = %q, %q; want case-insensitive name order", children[1].Name, children[2].Name)
	}
}

func TestSearchTruncation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/big")

	var entries []FileEntry
	for i := 0; i < SearchLimit+5; i++ {
		entries = append(entries, testEntry(root.ID, fmt.Sprintf("/data/big/file%04d.txt", i), 1, 1))
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	result, err := s.Search(ctx, SearchOptions{Keyword: ""})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(result.Items) != SearchLimit {
		t.Errorf("match-all returned %d items, want %d", len(result.Items), SearchLimit)
	}
	if !result.Truncated {
		t.Error("match-all over the ceiling should set Truncated")
	}

	result, err = s.Search(ctx, SearchOptions{Keyword: "", Limit: 10})
	if err != nil {
		t.Fatalf("Search(limit=10) failed: %v", err)
	}
	if len(result.Items) != 10 || !result.Truncated {
		t.Errorf("limit=10 returned %d items truncated=%v, want 10 truncated", len(result.Items), result.Truncated)
	}
}

func TestSearchFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rootA := newTestRoot(t, s, "/data/ra")
	rootB := newTestRoot(t, s, "/data/rb")

	mkv := testEntry(rootA.ID, "/data/ra/movie.mkv", 1, 1)
	mkv.Extension = "mkv"
	txt := testEntry(rootA.ID, "/data/ra/notes.txt", 1, 1)
	other := testEntry(rootB.ID, "/data/rb/movie2.mkv", 1, 1)
	other.Extension = "mkv"
	if err := s.UpsertEntries(ctx, []FileEntry{mkv, txt, other}); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	result, err := s.Search(ctx, SearchOptions{Keyword: "movie", Extensions: []string{"mkv"}, RootID: rootA.ID})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Path != "/data/ra/movie.mkv" {
		t.Errorf("filtered search = %+v, want just /data/ra/movie.mkv", result.Items)
	}

	// No match is an empty result, not an error.
	result, err = s.Search(ctx, SearchOptions{Keyword: "nosuchname"})
	if err != nil {
		t.Fatalf("Search(no match) failed: %v", err)
	}
	if len(result.Items) != 0 || result.Truncated {
		t.Errorf("no-match search = %d items truncated=%v, want empty", len(result.Items), result.Truncated)
	}
}

func TestSearchShortKeyword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/sh")

	entry := testEntry(root.ID, "/data/sh/ab.txt", 1, 1)
	if err := s.UpsertEntries(ctx, []FileEntry{entry}); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	// Below the trigram minimum the LIKE path still answers.
	result, err := s.Search(ctx, SearchOptions{Keyword: "ab"})
	if err != nil {
		t.Fatalf("Search(short) failed: %v", err)
	}
	if len(result.Items) != 1 {
		t.Errorf("short keyword returned %d items, want 1", len(result.Items))
	}
}

func TestPauseBlocksWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/pause")

	s.Pause()
	if !s.Paused() {
		t.Fatal("Paused() = false after Pause()")
	}

	err := s.UpsertEntries(ctx, []FileEntry{testEntry(root.ID, "/data/pause/x.txt", 1, 1)})
	if !errors.Is(err, ErrPaused) {
		t.Errorf("write while paused error = %v, want ErrPaused", err)
	}

	// Reads keep working.
	if _, err := s.ListRoots(ctx); err != nil {
		t.Errorf("read while paused failed: %v", err)
	}

	s.Resume()
	if err := s.UpsertEntries(ctx, []FileEntry{testEntry(root.ID, "/data/pause/x.txt", 1, 1)}); err != nil {
		t.Errorf("write after Resume() failed: %v", err)
	}
}

func TestDeleteRootCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/cascade")

	if err := s.UpsertEntries(ctx, []FileEntry{testEntry(root.ID, "/data/cascade/f.txt", 1, 1)}); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}
	if err := s.InsertScanError(ctx, root.ID, "/data/cascade/bad", "permission denied"); err != nil {
		t.Fatalf("InsertScanError() failed: %v", err)
	}

	has, err := s.HasIndexedContent(ctx, root.ID)
	if err != nil || !has {
		t.Fatalf("HasIndexedContent() = %v, %v; want true", has, err)
	}

	if err := s.DeleteRoot(ctx, root.ID); err != nil {
		t.Fatalf("DeleteRoot() failed: %v", err)
	}

	if _, err := s.GetEntry(ctx, root.ID, "/data/cascade/f.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("entry survived root deletion, err = %v", err)
	}
	errs, err := s.ListScanErrors(ctx, root.ID, true)
	if err != nil {
		t.Fatalf("ListScanErrors() failed: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("%d scan errors survived root deletion, want 0", len(errs))
	}
}

func TestScanErrorLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/errs")

	if err := s.InsertScanError(ctx, root.ID, "/data/errs/locked", "permission denied"); err != nil {
		t.Fatalf("InsertScanError() failed: %v", err)
	}

	errs, err := s.ListScanErrors(ctx, root.ID, false)
	if err != nil {
		t.Fatalf("ListScanErrors() failed: %v", err)
	}
	if len(errs) != 1 || errs[0].Path != "/data/errs/locked" {
		t.Fatalf("ListScanErrors() = %+v, want one error for /data/errs/locked", errs)
	}

	if err := s.ResolveScanError(ctx, errs[0].ID); err != nil {
		t.Fatalf("ResolveScanError() failed: %v", err)
	}
	errs, _ = s.ListScanErrors(ctx, root.ID, false)
	if len(errs) != 0 {
		t.Errorf("resolved error still listed as unresolved")
	}
	errs, _ = s.ListScanErrors(ctx, root.ID, true)
	if len(errs) != 1 {
		t.Errorf("resolved error missing from includeResolved view")
	}

	if err := s.ClearScanErrors(ctx, root.ID); err != nil {
		t.Fatalf("ClearScanErrors() failed: %v", err)
	}
	errs, _ = s.ListScanErrors(ctx, root.ID, true)
	if len(errs) != 0 {
		t.Errorf("ClearScanErrors() left %d errors", len(errs))
	}
}

func TestCalculateStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/stats")

	dir := testEntry(root.ID, "/data/stats/sub", 0, 1)
	dir.IsDir = true
	entries := []FileEntry{
		testEntry(root.ID, "/data/stats/a.txt", 1, 1),
		testEntry(root.ID, "/data/stats/b.txt", 1, 1),
		dir,
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	stats, err := s.CalculateStats(ctx)
	if err != nil {
		t.Fatalf("CalculateStats() failed: %v", err)
	}
	if stats.TotalFiles != 2 || stats.TotalDirs != 1 || stats.TotalRoots != 1 {
		t.Errorf("stats = %+v, want 2 files, 1 dir, 1 root", stats)
	}
	if stats.RootsByStatus["normal"] != 1 {
		t.Errorf("RootsByStatus = %v, want normal:1", stats.RootsByStatus)
	}
}

func TestExtensionCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := newTestRoot(t, s, "/data/ext")

	mk := func(path, ext string) FileEntry {
		e := testEntry(root.ID, path, 1, 1)
		e.Extension = ext
		return e
	}
	entries := []FileEntry{
		mk("/data/ext/a.mkv", "mkv"),
		mk("/data/ext/b.mkv", "mkv"),
		mk("/data/ext/c.txt", "txt"),
	}
	if err := s.UpsertEntries(ctx, entries); err != nil {
		t.Fatalf("UpsertEntries() failed: %v", err)
	}

	counts, err := s.ExtensionCounts(ctx)
	if err != nil {
		t.Fatalf("ExtensionCounts() failed: %v", err)
	}
	if len(counts) != 2 || counts[0].Extension != "mkv" || counts[0].Count != 2 {
		t.Errorf("ExtensionCounts() = %+v, want mkv:2 first", counts)
	}
}

func TestLikePrefix(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/a", `/data/a/`},
		{"/data/100%_done", `/data/100\%\_done/`},
		{`\\server\share`, `\\\\server\\share\\`},
	}
	for _, tt := range tests {
		if got := likePrefix(tt.path); got != tt.want {
			t.Errorf("likePrefix(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
