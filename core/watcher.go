package core

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// watchDebounce is the coalescing window for file change events.
// Editors tend to fire several writes per save.
const watchDebounce = 500 * time.Millisecond

// NewShaderWatcher starts a filesystem watcher that flips the dirty bit
// on registered shader slots. It never compiles anything itself, the
// render thread consumes the dirtiness on its next poll.
func NewShaderWatcher() (*ShaderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &ShaderWatcher{
		watcher: watcher,
		targets: make(map[string][]*ShaderSlot),
		dirs:    make(map[string]bool),
		done:    make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

// ShaderWatcher maps canonicalized source paths to the shader slots
// referencing them.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	targets map[string][]*ShaderSlot
	dirs    map[string]bool

	done chan struct{}
}

// Watch registers a file backed slot. Slots with embedded sources are
// skipped. The containing directory is watched, editors often replace
// files instead of writing them in place.
func (w *ShaderWatcher) Watch(slot *ShaderSlot) error {
	path := slot.Path()
	if path == "" {
		return nil
	}

	canonical, err := canonicalPath(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.targets[canonical] = append(w.targets[canonical], slot)

	dir := filepath.Dir(canonical)
	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	return nil
}

func (w *ShaderWatcher) run() {
	lastSeen := make(map[string]time.Time)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				close(w.done)
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			canonical, err := canonicalPath(event.Name)
			if err != nil {
				continue
			}
			if !debounce(lastSeen, canonical, time.Now(), watchDebounce) {
				continue
			}

			w.mu.Lock()
			slots := w.targets[canonical]
			w.mu.Unlock()
			for _, slot := range slots {
				slot.MarkDirty()
				log.WithField("shader", slot.Name()).Debug("Shader source changed")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				close(w.done)
				return
			}
			log.WithError(err).Error("Shader watcher error")
		}
	}
}

// Close stops the watcher and joins its goroutine.
func (w *ShaderWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

// debounce reports whether an event for path should pass, merging rapid
// repeats within the window into the first one.
func debounce(lastSeen map[string]time.Time, path string, now time.Time, window time.Duration) bool {
	if last, ok := lastSeen[path]; ok && now.Sub(last) < window {
		return false
	}
	lastSeen[path] = now
	return true
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
