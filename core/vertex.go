package core

import (
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

// VertexFormat tags the closed set of vertex layouts a pipeline can be
// built against.
type VertexFormat int

const (
	// VertexFormatSimple carries only a position, used by the skybox.
	VertexFormatSimple VertexFormat = iota

	// VertexFormatColorCoords carries position, color and texture
	// coordinates, used by the model and the art panels.
	VertexFormatColorCoords
)

// VertexSimple is a position-only vertex.
type VertexSimple struct {
	Pos glm.Vec3
}

// VertexColorCoords is the full vertex layout.
type VertexColorCoords struct {
	Pos    glm.Vec3
	Color  glm.Vec3
	Coords glm.Vec2
}

// BindingDescriptions returns the vertex buffer binding for the format.
func (f VertexFormat) BindingDescriptions() []vk.VertexInputBindingDescription {
	var stride uint32
	switch f {
	case VertexFormatSimple:
		stride = uint32(unsafe.Sizeof(VertexSimple{}))
	default:
		stride = uint32(unsafe.Sizeof(VertexColorCoords{}))
	}
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    stride,
		InputRate: vk.VertexInputRateVertex,
	}}
}

// AttributeDescriptions returns the per-attribute layout for the format.
func (f VertexFormat) AttributeDescriptions() []vk.VertexInputAttributeDescription {
	if f == VertexFormatSimple {
		return []vk.VertexInputAttributeDescription{{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   0,
		}}
	}
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(VertexColorCoords{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(VertexColorCoords{}.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(VertexColorCoords{}.Coords)),
		},
	}
}

// VertexSimpleBytes reslices vertices into raw bytes for upload.
func VertexSimpleBytes(vertices []VertexSimple) []byte {
	size := len(vertices) * int(unsafe.Sizeof(VertexSimple{}))
	return *(*[]byte)(unsafe.Pointer(&sliceHeader{
		Data: (*sliceHeader)(unsafe.Pointer(&vertices)).Data,
		Len:  size,
		Cap:  size,
	}))
}

// VertexColorCoordsBytes reslices vertices into raw bytes for upload.
func VertexColorCoordsBytes(vertices []VertexColorCoords) []byte {
	size := len(vertices) * int(unsafe.Sizeof(VertexColorCoords{}))
	return *(*[]byte)(unsafe.Pointer(&sliceHeader{
		Data: (*sliceHeader)(unsafe.Pointer(&vertices)).Data,
		Len:  size,
		Cap:  size,
	}))
}
