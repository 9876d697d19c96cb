package core

import "testing"

func slotWithCode() *ShaderSlot {
	return &ShaderSlot{
		name:       "test",
		shaderType: FragmentShaderType,
		code:       []byte{0x03, 0x02, 0x23, 0x07},
	}
}

func TestPendingRebuildWhileWaiting(t *testing.T) {
	p := &Pipeline{
		waiting:  true,
		vertex:   slotWithCode(),
		fragment: &ShaderSlot{name: "test", shaderType: FragmentShaderType},
	}

	if p.pendingRebuild() {
		t.Error("rebuild attempted before both stages have bytecode")
	}

	p.fragment.code = []byte{0x03, 0x02, 0x23, 0x07}
	if !p.pendingRebuild() {
		t.Error("rebuild not pending with both stages compiled")
	}
}

func TestPendingRebuildAfterRecompile(t *testing.T) {
	p := &Pipeline{
		vertex:   slotWithCode(),
		fragment: slotWithCode(),
	}

	// fresh bytecode with no live module means a recompile landed
	if !p.needsRebuild() {
		t.Error("recompiled stage did not request a rebuild")
	}
}

func TestPendingRebuildIgnoresInFlightCompiles(t *testing.T) {
	fragment := slotWithCode()
	fragment.compiling = true
	p := &Pipeline{
		waiting:  true,
		vertex:   slotWithCode(),
		fragment: fragment,
	}

	if p.pendingRebuild() {
		t.Error("rebuild attempted while a compile is still in flight")
	}
}

func TestReadyTracksWaiting(t *testing.T) {
	p := &Pipeline{waiting: true}
	if p.Ready() {
		t.Error("waiting pipeline reports ready")
	}
	p.waiting = false
	if !p.Ready() {
		t.Error("built pipeline reports not ready")
	}
}
