// Package vkr wraps the raw vulkan buffer, image and memory primitives
// with allocation and binding handled in one place.
package vkr

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// NewBuffer creates, configures, allocates and binds a new buffer.
// The actual size of the backing memory is reported by Mem().Len()
// and may be larger than requested.
func NewBuffer(dev vk.Device, size uint, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits, ma *MemoryAllocator) (Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(dev, &createInfo, nil, &buffer)); err != nil {
		return Buffer{}, fmt.Errorf("vk.CreateBuffer(): %s", err.Error())
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buffer, &req)
	req.Deref()

	memory, err := ma.Malloc(req, props)
	if err != nil {
		vk.DestroyBuffer(dev, buffer, nil)
		return Buffer{}, err
	}

	vk.BindBufferMemory(dev, buffer, memory.Get(), vk.DeviceSize(memory.Offset()))

	return Buffer{
		device: dev,
		buffer: buffer,
		memory: memory,
	}, nil
}

// Buffer implements a generic vulkan buffer.
type Buffer struct {
	device vk.Device
	buffer vk.Buffer

	memory Memory
}

// Mem returns the Memory that the buffer is based on.
func (b *Buffer) Mem() *Memory {
	return &b.memory
}

// Get returns the vulkan Buffer handle.
func (b *Buffer) Get() vk.Buffer {
	return b.buffer
}

// Release destroys the buffer and memory asociated with it.
func (b *Buffer) Release() {
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
}

// ImageOptions describes the image being created.
type ImageOptions struct {
	Width, Height uint32
	MipLevels     uint32
	Layers        uint32
	Format        vk.Format
	Tiling        vk.ImageTiling
	Usage         vk.ImageUsageFlagBits
	Samples       vk.SampleCountFlagBits
	Flags         vk.ImageCreateFlagBits
}

// NewImage creates a new vulkan image primitive with
// device local memory bound to it.
func NewImage(dev vk.Device, opts ImageOptions, ma *MemoryAllocator) (Image, error) {
	if opts.MipLevels == 0 {
		opts.MipLevels = 1
	}
	if opts.Layers == 0 {
		opts.Layers = 1
	}
	if opts.Samples == 0 {
		opts.Samples = vk.SampleCount1Bit
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  opts.Width,
			Height: opts.Height,
			Depth:  1,
		},
		MipLevels:     opts.MipLevels,
		ArrayLayers:   opts.Layers,
		Format:        opts.Format,
		Tiling:        opts.Tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(opts.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       opts.Samples,
		Flags:         vk.ImageCreateFlags(opts.Flags),
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(dev, &createInfo, nil, &image)); err != nil {
		return Image{}, fmt.Errorf("vk.CreateImage(): %s", err.Error())
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, image, &req)
	req.Deref()

	memory, err := ma.Malloc(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(dev, image, nil)
		return Image{}, err
	}

	vk.BindImageMemory(dev, image, memory.Get(), vk.DeviceSize(memory.Offset()))

	return Image{
		device: dev,
		image:  image,
		memory: memory,
		opts:   opts,
	}, nil
}

// Image implements and abstracts the vulkan image primitive.
type Image struct {
	device vk.Device
	image  vk.Image
	memory Memory
	opts   ImageOptions
}

// Get returns the vulkan Image handle.
func (i *Image) Get() vk.Image {
	return i.image
}

// Mem returns the underlying memory of the Image.
func (i *Image) Mem() *Memory {
	return &i.memory
}

// Options returns the options the image was created with.
func (i *Image) Options() ImageOptions {
	return i.opts
}

// Release destroys the image and frees its memory.
func (i *Image) Release() {
	vk.DestroyImage(i.device, i.image, nil)
	i.memory.Release()
}
