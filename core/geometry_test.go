package core

import (
	"sync"
	"testing"
)

func fakeGeometry(freeCount *int) Geometry {
	return Geometry{shared: &geometryShared{
		refs:       1,
		indexCount: 36,
		free:       func() { *freeCount++ },
	}}
}

func TestGeometryFreedExactlyOnce(t *testing.T) {
	freed := 0
	geometry := fakeGeometry(&freed)

	clone1 := geometry.Clone()
	clone2 := geometry.Clone()
	if refs := geometry.Refs(); refs != 3 {
		t.Errorf("refs is %d, want 3", refs)
	}

	clone1.Release()
	clone2.Release()
	if freed != 0 {
		t.Error("buffers freed while a handle is still live")
	}

	geometry.Release()
	if freed != 1 {
		t.Errorf("free ran %d times, want 1", freed)
	}
}

func TestGeometryClonesAlias(t *testing.T) {
	freed := 0
	geometry := fakeGeometry(&freed)
	clone := geometry.Clone()

	if geometry.shared != clone.shared {
		t.Error("clone does not alias the original buffers")
	}
	if clone.IndexCount() != geometry.IndexCount() {
		t.Error("clone reports a different index count")
	}

	clone.Release()
	geometry.Release()
}

func TestGeometryReleasePanicsWhenOverreleased(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on double release")
		}
	}()

	freed := 0
	geometry := fakeGeometry(&freed)
	geometry.Release()
	geometry.Release()
}

func TestGeometryClonePanicsAfterRelease(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on clone after release")
		}
	}()

	freed := 0
	geometry := fakeGeometry(&freed)
	geometry.Release()
	geometry.Clone()
}

func TestGeometryConcurrentClones(t *testing.T) {
	freed := 0
	geometry := fakeGeometry(&freed)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				geometry.Clone().Release()
			}
		}()
	}
	wg.Wait()

	if refs := geometry.Refs(); refs != 1 {
		t.Errorf("refs is %d after churn, want 1", refs)
	}
	geometry.Release()
	if freed != 1 {
		t.Errorf("free ran %d times, want 1", freed)
	}
}
