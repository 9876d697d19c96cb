package core

import (
	"sync"
	"unsafe"

	"github.com/alexthill/shaderpixel/gfx/vkr"
	vk "github.com/goki/vulkan"
	log "github.com/sirupsen/logrus"
)

// Geometry is an immutable, reference counted vertex/index buffer pair.
// Pipelines share clones of one Geometry, the GPU memory is freed exactly
// once when the last clone gets released.
type Geometry struct {
	shared *geometryShared
}

type geometryShared struct {
	mu   sync.Mutex
	refs int

	vertexBuffer vkr.Buffer
	indexBuffer  vkr.Buffer
	indexCount   uint32

	free func()
}

// NewGeometry uploads vertex and index data to device local buffers
// and returns a Geometry with a reference count of one.
func (dc *DeviceContext) NewGeometry(vertexData []byte, indices []uint32) (Geometry, error) {
	vertexBuffer, err := dc.NewDeviceLocalBuffer(vertexData, vk.BufferUsageVertexBufferBit)
	if err != nil {
		return Geometry{}, err
	}

	indexData := *(*[]byte)(unsafe.Pointer(&sliceHeader{
		Data: (*sliceHeader)(unsafe.Pointer(&indices)).Data,
		Len:  len(indices) * 4,
		Cap:  len(indices) * 4,
	}))
	indexBuffer, err := dc.NewDeviceLocalBuffer(indexData, vk.BufferUsageIndexBufferBit)
	if err != nil {
		vertexBuffer.Release()
		return Geometry{}, err
	}

	shared := &geometryShared{
		refs:         1,
		vertexBuffer: vertexBuffer,
		indexBuffer:  indexBuffer,
		indexCount:   uint32(len(indices)),
	}
	shared.free = func() {
		shared.vertexBuffer.Release()
		shared.indexBuffer.Release()
	}
	return Geometry{shared: shared}, nil
}

// Clone increments the reference count and returns an aliasing handle.
// GPU memory is never duplicated.
func (g Geometry) Clone() Geometry {
	g.shared.mu.Lock()
	defer g.shared.mu.Unlock()
	if g.shared.refs == 0 {
		log.Panic("Clone() on a released Geometry")
	}
	g.shared.refs++
	return g
}

// Release decrements the reference count and frees the buffers when it
// reaches zero. Releasing an already fully released Geometry is a
// programming error and aborts.
func (g Geometry) Release() {
	g.shared.mu.Lock()
	defer g.shared.mu.Unlock()
	if g.shared.refs == 0 {
		log.Panic("Release() on a released Geometry")
	}
	g.shared.refs--
	if g.shared.refs == 0 {
		g.shared.free()
	}
}

// Refs returns the number of handles still holding the GPU buffers.
func (g Geometry) Refs() int {
	g.shared.mu.Lock()
	defer g.shared.mu.Unlock()
	return g.shared.refs
}

// VertexBuffer returns the vertex buffer handle.
func (g Geometry) VertexBuffer() vk.Buffer {
	return g.shared.vertexBuffer.Get()
}

// IndexBuffer returns the index buffer handle.
func (g Geometry) IndexBuffer() vk.Buffer {
	return g.shared.indexBuffer.Get()
}

// IndexCount returns the number of indices to draw.
func (g Geometry) IndexCount() uint32 {
	return g.shared.indexCount
}
