package core

import (
	"errors"
	"testing"
)

func testRenderer() *VulkanRenderer {
	return &VulkanRenderer{requests: make(chan renderRequest, requestQueueSize)}
}

func TestHostMutationsQueueUntilFrame(t *testing.T) {
	v := testRenderer()
	v.pipelines = []*Pipeline{{Active: true}}

	v.TogglePipeline(0)
	if !v.pipelines[0].Active {
		t.Error("toggle applied outside the render thread")
	}
	if len(v.requests) != 1 {
		t.Errorf("queued %d requests, want 1", len(v.requests))
	}
}

func TestDrainRequestsAppliesInOrder(t *testing.T) {
	v := testRenderer()

	var order []int
	v.enqueue(func(*VulkanRenderer) error {
		order = append(order, 1)
		return nil
	})
	v.enqueue(func(*VulkanRenderer) error {
		order = append(order, 2)
		return nil
	})

	if err := v.drainRequests(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("requests ran as %v, want [1 2]", order)
	}
	if len(v.requests) != 0 {
		t.Error("queue not empty after drain")
	}
}

func TestDrainRequestsStopsOnError(t *testing.T) {
	v := testRenderer()
	boom := errors.New("boom")

	ran := false
	v.enqueue(func(*VulkanRenderer) error { return boom })
	v.enqueue(func(*VulkanRenderer) error {
		ran = true
		return nil
	})

	if err := v.drainRequests(); err != boom {
		t.Errorf("got %v, want the request error", err)
	}
	if ran {
		t.Error("later request ran after a failed one")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	v := testRenderer()
	for i := 0; i < requestQueueSize; i++ {
		v.enqueue(func(*VulkanRenderer) error { return nil })
	}

	v.TogglePipeline(0)
	if len(v.requests) != requestQueueSize {
		t.Errorf("queue grew to %d, want %d", len(v.requests), requestQueueSize)
	}
}

func TestReloadShadersRunsOnFrame(t *testing.T) {
	v := testRenderer()
	v.dc = &DeviceContext{}

	slot := NewShaderSlot("art", FragmentShaderType, "art.frag.wgsl")
	slot.jobs = make(chan *ShaderSlot, 1)
	v.artSlots = []*ShaderSlot{slot}

	v.ReloadShaders()
	if slot.Compiling() {
		t.Error("reload ran before the frame")
	}
	if err := v.drainRequests(); err != nil {
		t.Fatal(err)
	}
	if !slot.Compiling() {
		t.Error("reload not applied at the frame")
	}
}

func TestTeardownReleasesGeometries(t *testing.T) {
	freed := 0
	v := &VulkanRenderer{geometries: []Geometry{fakeGeometry(&freed)}}

	v.releaseGeometries()
	if freed != 1 {
		t.Errorf("free ran %d times, want 1", freed)
	}
	if v.geometries != nil {
		t.Error("geometry list not cleared")
	}
}

func TestTeardownPanicsOnLeakedGeometry(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on a still referenced geometry")
		}
	}()

	freed := 0
	geometry := fakeGeometry(&freed)
	geometry.Clone()

	v := &VulkanRenderer{geometries: []Geometry{geometry}}
	v.releaseGeometries()
}
