// Package watch rebuilds a script whenever it or one of its
// transitive dependencies changes on disk.
package watch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maskfab/plsc/internal/cache"
	"github.com/maskfab/plsc/pkg/script"
)

// Result is delivered after every rebuild attempt.
type Result struct {
	Script *script.Script
	Err    error
	// Changed is false when the rebuild produced the same script hash
	// as the previous one.
	Changed bool
}

// Loop watches the script and its dependency tree and sends a Result
// per rebuild. It returns when stop is closed.
func Loop(path string, opts script.Options, results chan<- Result, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	lastHash := ""
	rebuild := func() {
		started := time.Now()
		s, err := script.CompileFile(path, opts)
		if err != nil {
			results <- Result{Err: err}
			return
		}
		changed := s.Hash != lastHash
		lastHash = s.Hash
		fmt.Printf(" > render time: %s\n", time.Since(started).Round(time.Millisecond))
		results <- Result{Script: s, Changed: changed}
		resetWatches(watcher, path, s.Deps)
	}

	// watching directories survives editors that replace files
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	rebuild()

	var pending <-chan time.Time
	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(ev.Name) != ".pls" {
				continue
			}
			// debounce bursts of editor events
			pending = time.After(200 * time.Millisecond)
		case <-pending:
			pending = nil
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			results <- Result{Err: err}
		}
	}
}

func resetWatches(watcher *fsnotify.Watcher, root string, deps cache.Deps) {
	dirs := map[string]bool{filepath.Dir(root): true}
	collectDirs(deps, dirs)
	for dir := range dirs {
		_ = watcher.Add(dir)
	}
}

func collectDirs(deps cache.Deps, dirs map[string]bool) {
	for p, sub := range deps {
		dirs[filepath.Dir(p)] = true
		collectDirs(sub, dirs)
	}
}
