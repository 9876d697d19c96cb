package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validFragment = `@fragment
fn main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 1.0, 1.0);
}
`

func writeShaderFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.frag.wgsl")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestReloadRequiresDirtyUnlessForced(t *testing.T) {
	jobs := make(chan *ShaderSlot, 4)
	slot := NewShaderSlot("test", FragmentShaderType, "unused.wgsl")
	slot.jobs = jobs

	if slot.Reload(nil, false) {
		t.Error("clean slot must not enqueue a compile")
	}
	if len(jobs) != 0 {
		t.Error("job enqueued for a clean slot")
	}

	slot.MarkDirty()
	if !slot.Reload(nil, false) {
		t.Error("dirty slot did not enqueue a compile")
	}
	if len(jobs) != 1 {
		t.Errorf("queue holds %d jobs, want 1", len(jobs))
	}
	if !slot.Compiling() {
		t.Error("slot not marked compiling after enqueue")
	}
}

func TestReloadIsNoOpWhileCompiling(t *testing.T) {
	jobs := make(chan *ShaderSlot, 4)
	slot := NewShaderSlot("test", FragmentShaderType, "unused.wgsl")
	slot.jobs = jobs

	slot.MarkDirty()
	slot.Reload(nil, false)

	// still compiling, nothing was consumed
	if !slot.Reload(nil, true) {
		t.Error("in-flight compile must report pending")
	}
	if len(jobs) != 1 {
		t.Errorf("queue holds %d jobs, want 1", len(jobs))
	}
}

func TestReloadDropsJobWhenQueueFull(t *testing.T) {
	jobs := make(chan *ShaderSlot, 1)
	blocker := NewShaderSlot("blocker", FragmentShaderType, "unused.wgsl")
	jobs <- blocker

	slot := NewShaderSlot("test", FragmentShaderType, "unused.wgsl")
	slot.jobs = jobs

	slot.MarkDirty()
	if slot.Reload(nil, false) {
		t.Error("full queue must drop the request")
	}
	if slot.Compiling() {
		t.Error("dropped request left the slot marked compiling")
	}
	if !slot.Dirty() {
		t.Error("dirty bit must survive a dropped request, it carries the retry")
	}
}

func TestReloadWithoutWorkerDoesNothing(t *testing.T) {
	slot := NewShaderSlot("test", FragmentShaderType, "unused.wgsl")
	slot.MarkDirty()
	if slot.Reload(nil, true) {
		t.Error("slot without a worker must not report pending")
	}
}

func TestCompilerCompilesValidSource(t *testing.T) {
	path := writeShaderFile(t, validFragment)

	compiler := NewShaderCompiler()
	defer compiler.Close()

	slot := NewShaderSlot("test", FragmentShaderType, path)
	slot.SetHotReload(compiler.Jobs())

	waitFor(t, "compilation", func() bool { return !slot.Compiling() })

	if !slot.ModuleReady() {
		t.Error("slot has no bytecode after a successful compile")
	}
	if slot.HasModule() {
		t.Error("module must only be created on the render thread")
	}
}

func TestFailedCompileKeepsPreviousBytecode(t *testing.T) {
	path := writeShaderFile(t, validFragment)

	compiler := NewShaderCompiler()
	defer compiler.Close()

	slot := NewShaderSlot("test", FragmentShaderType, path)
	slot.SetHotReload(compiler.Jobs())
	waitFor(t, "initial compilation", func() bool { return !slot.Compiling() })

	if !slot.ModuleReady() {
		t.Fatal("initial compile failed")
	}

	if err := os.WriteFile(path, []byte("definitely not wgsl {"), 0o644); err != nil {
		t.Fatal(err)
	}
	slot.MarkDirty()
	slot.Reload(nil, false)
	waitFor(t, "failed recompilation", func() bool { return !slot.Compiling() })

	if !slot.ModuleReady() {
		t.Error("failed compile discarded the previous bytecode")
	}
}

func TestSetHotReloadIsIdempotent(t *testing.T) {
	path := writeShaderFile(t, validFragment)

	compiler := NewShaderCompiler()
	defer compiler.Close()

	slot := NewShaderSlot("test", FragmentShaderType, path)
	slot.SetHotReload(compiler.Jobs())
	slot.SetHotReload(compiler.Jobs())

	waitFor(t, "compilation", func() bool { return !slot.Compiling() })
	if !slot.ModuleReady() {
		t.Error("slot has no bytecode after compile")
	}
}

func TestStaticShaderSlotFindsEmbeddedSource(t *testing.T) {
	slot, err := NewStaticShaderSlot("main.vert", VertexShaderType, "main.vert.wgsl")
	if err != nil {
		t.Fatal(err)
	}

	source, err := slot.readSource()
	if err != nil {
		t.Fatal(err)
	}
	if source == "" {
		t.Error("embedded source is empty")
	}
	if slot.Path() != "" {
		t.Error("static slots must not report a watchable path")
	}
}

func TestStaticShaderSlotUnknownFile(t *testing.T) {
	if _, err := NewStaticShaderSlot("nope", VertexShaderType, "nope.wgsl"); err == nil {
		t.Error("expected an error for a missing embedded shader")
	}
}
