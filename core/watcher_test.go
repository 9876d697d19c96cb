package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDebounceMergesRapidRepeats(t *testing.T) {
	lastSeen := make(map[string]time.Time)
	base := time.Now()

	if !debounce(lastSeen, "a.wgsl", base, watchDebounce) {
		t.Error("first event must pass")
	}
	if debounce(lastSeen, "a.wgsl", base.Add(100*time.Millisecond), watchDebounce) {
		t.Error("repeat inside the window must be merged")
	}
	if !debounce(lastSeen, "b.wgsl", base.Add(100*time.Millisecond), watchDebounce) {
		t.Error("events for other paths are independent")
	}
	if !debounce(lastSeen, "a.wgsl", base.Add(watchDebounce+time.Millisecond), watchDebounce) {
		t.Error("event past the window must pass")
	}
}

func TestDebounceBlockedEventDoesNotExtendWindow(t *testing.T) {
	lastSeen := make(map[string]time.Time)
	base := time.Now()

	debounce(lastSeen, "a.wgsl", base, watchDebounce)
	debounce(lastSeen, "a.wgsl", base.Add(400*time.Millisecond), watchDebounce)
	if !debounce(lastSeen, "a.wgsl", base.Add(watchDebounce+time.Millisecond), watchDebounce) {
		t.Error("merged events must not restart the window")
	}
}

func TestCanonicalPathResolvesRelative(t *testing.T) {
	got, err := canonicalPath("shaders/test.frag.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("canonicalPath returned %q, want an absolute path", got)
	}
}

func TestWatcherMarksSlotDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.frag.wgsl")
	if err := os.WriteFile(path, []byte(validFragment), 0o644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewShaderWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	slot := NewShaderSlot("panel", FragmentShaderType, path)
	if err := watcher.Watch(slot); err != nil {
		t.Fatal(err)
	}
	if slot.Dirty() {
		t.Fatal("fresh slot must not be dirty")
	}

	if err := os.WriteFile(path, []byte(validFragment+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "dirty bit", slot.Dirty)
}

func TestWatchSkipsEmbeddedSlots(t *testing.T) {
	watcher, err := NewShaderWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	slot, err := NewStaticShaderSlot("main.vert", VertexShaderType, "main.vert.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if err := watcher.Watch(slot); err != nil {
		t.Errorf("embedded slot registration failed: %s", err.Error())
	}
}
