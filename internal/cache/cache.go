// Package cache persists compiled script snapshots next to their
// source and answers freshness queries over the recursive dependency
// tree.
package cache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maskfab/plsc/pkg/plserr"
)

// Deps maps a dependency path to the dependency tree of that file.
type Deps map[string]Deps

// Path returns the cache file location for a script:
// `<dir>/.<basename>.plb`.
func Path(scriptPath string) string {
	if scriptPath == "" {
		return ""
	}
	base := filepath.Base(scriptPath)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return filepath.Join(filepath.Dir(scriptPath), "."+base+".plb")
}

func mtime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// PathCached reports whether the script has a cache file newer than
// the script itself and newer than the given floor.
func PathCached(scriptPath string, newerThan time.Time) bool {
	cachePath := Path(scriptPath)
	if cachePath == "" {
		return false
	}
	cacheTime, ok := mtime(cachePath)
	if !ok {
		return false
	}
	srcTime, ok := mtime(scriptPath)
	if !ok {
		return false
	}
	return srcTime.Before(cacheTime) && newerThan.Before(cacheTime)
}

// DepsFresh reports whether every path in the dependency tree is still
// covered by its cache, with the newest mtime along each subtree as
// the freshness floor.
func DepsFresh(deps Deps) bool {
	return depsFresh(deps, time.Time{})
}

func depsFresh(deps Deps, newerThan time.Time) bool {
	newest := newerThan
	for p := range deps {
		t, ok := mtime(p)
		if !ok {
			return false
		}
		if t.After(newest) {
			newest = t
		}
	}
	for p := range deps {
		if !PathCached(p, newest) {
			return false
		}
	}
	for _, sub := range deps {
		if len(sub) > 0 && !depsFresh(sub, newest) {
			return false
		}
	}
	return true
}

// Write serializes the snapshot to the cache file.
func Write(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return plserr.Wrap(plserr.CacheError, err, "create cache %s", path)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return plserr.Wrap(plserr.CacheError, err, "encode cache %s", path)
	}
	return nil
}

// Read deserializes the snapshot from the cache file. Any failure is a
// recoverable CacheError: the caller recompiles.
func Read(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return plserr.Wrap(plserr.CacheError, err, "open cache %s", path)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return plserr.Wrap(plserr.CacheError, err, "decode cache %s", path)
	}
	return nil
}
