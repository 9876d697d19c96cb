package core

import (
	"testing"
	"unsafe"
)

// The uniform block is copied into the mapped buffer as raw memory, so
// the Go struct layout must line up with the WGSL declaration exactly.
func TestUniformBufferObjectLayout(t *testing.T) {
	var ubo UniformBufferObject

	offsets := map[string]uintptr{
		"Model":         unsafe.Offsetof(ubo.Model),
		"View":          unsafe.Offsetof(ubo.View),
		"Proj":          unsafe.Offsetof(ubo.Proj),
		"Resolution":    unsafe.Offsetof(ubo.Resolution),
		"TextureWeight": unsafe.Offsetof(ubo.TextureWeight),
		"Time":          unsafe.Offsetof(ubo.Time),
	}
	want := map[string]uintptr{
		"Model":         0,
		"View":          64,
		"Proj":          128,
		"Resolution":    192,
		"TextureWeight": 200,
		"Time":          204,
	}
	for field, offset := range want {
		if offsets[field] != offset {
			t.Errorf("%s sits at offset %d, want %d", field, offsets[field], offset)
		}
	}

	if size := unsafe.Sizeof(ubo); size != 208 {
		t.Errorf("uniform block is %d bytes, want 208", size)
	}
	if unsafe.Sizeof(ubo)%16 != 0 {
		t.Error("uniform block size must be 16 byte aligned")
	}
}

func TestPushConstantLayout(t *testing.T) {
	var pc pushConstant
	if size := unsafe.Sizeof(pc); size != 64 {
		t.Errorf("push constant block is %d bytes, want 64", size)
	}
}
