package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maskfab/plsc/pkg/plserr"
)

func TestPath(t *testing.T) {
	got := Path("/work/chip.pls")
	want := filepath.Join("/work", ".chip.plb")
	if got != want {
		t.Fatalf("cache path: got %q, want %q", got, want)
	}
	if Path("") != "" {
		t.Fatal("empty script path should give empty cache path")
	}
}

func touch(t *testing.T, path string, when time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}
}

func TestPathCached(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pls")
	now := time.Now()

	touch(t, src, now)
	if PathCached(src, time.Time{}) {
		t.Fatal("no cache file means not cached")
	}

	touch(t, Path(src), now.Add(time.Second))
	if !PathCached(src, time.Time{}) {
		t.Fatal("newer cache file should count as cached")
	}

	// source newer than cache
	touch(t, src, now.Add(2*time.Second))
	if PathCached(src, time.Time{}) {
		t.Fatal("stale cache must not count")
	}

	// floor newer than cache
	touch(t, src, now)
	if PathCached(src, now.Add(time.Hour)) {
		t.Fatal("a newer floor must invalidate the cache")
	}
}

func TestDepsFresh(t *testing.T) {
	dir := t.TempDir()
	child := filepath.Join(dir, "child.pls")
	now := time.Now()
	touch(t, child, now)
	touch(t, Path(child), now.Add(time.Second))

	deps := Deps{child: Deps{}}
	if !DepsFresh(deps) {
		t.Fatal("fresh dependency tree reported stale")
	}

	touch(t, child, now.Add(2*time.Second))
	if DepsFresh(deps) {
		t.Fatal("touched dependency reported fresh")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	type payload struct {
		Name  string
		Count int
	}
	path := filepath.Join(t.TempDir(), ".x.plb")
	in := payload{Name: "cell", Count: 3}
	if err := Write(path, in); err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := Read(path, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestReadErrorsAreCacheErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".bad.plb")
	if err := os.WriteFile(path, []byte("not gob"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out struct{ X int }
	err := Read(path, &out)
	if !plserr.IsKind(err, plserr.CacheError) {
		t.Fatalf("expected CacheError, got %v", err)
	}
	if !plserr.IsKind(Read(filepath.Join(t.TempDir(), "missing"), &out), plserr.CacheError) {
		t.Fatal("missing file should be a CacheError")
	}
}
