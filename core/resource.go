package core

import (
	"fmt"
	"unsafe"

	"github.com/alexthill/shaderpixel/gfx/vkr"
	vk "github.com/goki/vulkan"
)

// MipLevels returns the length of the full mip chain for an image
// of the given dimensions.
func MipLevels(width, height uint32) uint32 {
	levels := uint32(1)
	for min := min32(width, height); min > 1; min /= 2 {
		levels++
	}
	return levels
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func (dc *DeviceContext) beginSingleTimeCommands() (vk.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        dc.transientPool,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(dc.device, &cbai, commandBuffers)); err != nil {
		return nil, fmt.Errorf("vk.AllocateCommandBuffers(): %s", err.Error())
	}
	commandBuffer := commandBuffers[0]

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
		vk.FreeCommandBuffers(dc.device, dc.transientPool, 1, []vk.CommandBuffer{commandBuffer})
		return nil, fmt.Errorf("vk.BeginCommandBuffer(): %s", err.Error())
	}

	return commandBuffer, nil
}

func (dc *DeviceContext) endSingleTimeCommands(commandBuffer vk.CommandBuffer) error {
	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return fmt.Errorf("vk.EndCommandBuffer(): %s", err.Error())
	}

	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer},
	}

	if err := vk.Error(vk.QueueSubmit(dc.graphicsQueue, 1, []vk.SubmitInfo{si}, nil)); err != nil {
		return fmt.Errorf("vk.QueueSubmit(): %s", err.Error())
	}

	vk.QueueWaitIdle(dc.graphicsQueue)

	vk.FreeCommandBuffers(dc.device, dc.transientPool, 1, []vk.CommandBuffer{commandBuffer})
	return nil
}

// OneTimeCommands records commands through the callback and submits them,
// blocking until the queue goes idle. These calls live off the steady
// frame path, correctness wins over throughput.
func (dc *DeviceContext) OneTimeCommands(record func(vk.CommandBuffer)) error {
	cmd, err := dc.beginSingleTimeCommands()
	if err != nil {
		return err
	}
	record(cmd)
	return dc.endSingleTimeCommands(cmd)
}

// NewStagingBuffer creates a host visible buffer filled with data.
func (dc *DeviceContext) NewStagingBuffer(data []byte) (vkr.Buffer, error) {
	staging, err := vkr.NewBuffer(dc.device, uint(len(data)), vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit, dc.allocator)
	if err != nil {
		return vkr.Buffer{}, err
	}

	mapped := staging.Mem().Map()
	castMemory := *(*[]byte)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(mapped),
		Cap:  len(data),
		Len:  len(data),
	}))
	copy(castMemory, data)
	staging.Mem().Unmap()

	return staging, nil
}

// NewDeviceLocalBuffer stages data through a temporary host visible
// buffer and copies it into a new device local buffer. The staging
// buffer is destroyed before returning.
func (dc *DeviceContext) NewDeviceLocalBuffer(data []byte, usage vk.BufferUsageFlagBits) (vkr.Buffer, error) {
	staging, err := dc.NewStagingBuffer(data)
	if err != nil {
		return vkr.Buffer{}, err
	}
	defer staging.Release()

	buffer, err := vkr.NewBuffer(dc.device, uint(len(data)), usage|vk.BufferUsageTransferDstBit,
		vk.MemoryPropertyDeviceLocalBit, dc.allocator)
	if err != nil {
		return vkr.Buffer{}, err
	}

	if err := dc.OneTimeCommands(func(cmd vk.CommandBuffer) {
		bc := vk.BufferCopy{
			Size: vk.DeviceSize(len(data)),
		}
		vk.CmdCopyBuffer(cmd, staging.Get(), buffer.Get(), 1, []vk.BufferCopy{bc})
	}); err != nil {
		buffer.Release()
		return vkr.Buffer{}, err
	}

	return buffer, nil
}

// TransitionImageLayout inserts a pipeline barrier moving the image
// between the supported layout pairs.
func (dc *DeviceContext) TransitionImageLayout(img vk.Image, format vk.Format, old, new vk.ImageLayout, mipLevels, layers uint32) error {
	aspect := vk.ImageAspectColorBit
	if new == vk.ImageLayoutDepthStencilAttachmentOptimal {
		aspect = vk.ImageAspectDepthBit
		if hasStencilComponent(format) {
			aspect |= vk.ImageAspectStencilBit
		}
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     layers,
			AspectMask:     vk.ImageAspectFlags(aspect),
		},
	}

	var srcStage, dstStage vk.PipelineStageFlags
	switch {
	case old == vk.ImageLayoutUndefined && new == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case old == vk.ImageLayoutTransferDstOptimal && new == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case old == vk.ImageLayoutUndefined && new == vk.ImageLayoutDepthStencilAttachmentOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	case old == vk.ImageLayoutUndefined && new == vk.ImageLayoutColorAttachmentOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dstStage = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	default:
		return fmt.Errorf("unsupported layout transition %d -> %d", old, new)
	}

	return dc.OneTimeCommands(func(cmd vk.CommandBuffer) {
		vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	})
}

func hasStencilComponent(format vk.Format) bool {
	return format == vk.FormatD32SfloatS8Uint || format == vk.FormatD24UnormS8Uint
}

// CopyBufferToImage copies every layer of an image from a buffer, with
// each layer packed at layerSize intervals.
func (dc *DeviceContext) CopyBufferToImage(buf vk.Buffer, img vk.Image, width, height, layers uint32, layerSize vk.DeviceSize) error {
	regions := make([]vk.BufferImageCopy, layers)
	for layer := uint32(0); layer < layers; layer++ {
		regions[layer] = vk.BufferImageCopy{
			BufferOffset: layerSize * vk.DeviceSize(layer),
			ImageOffset:  vk.Offset3D{},
			ImageExtent: vk.Extent3D{
				Width:  width,
				Height: height,
				Depth:  1,
			},
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: layer,
				LayerCount:     1,
			},
		}
	}

	return dc.OneTimeCommands(func(cmd vk.CommandBuffer) {
		vk.CmdCopyBufferToImage(cmd, buf, img, vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)
	})
}

// GenerateMipmaps fills the mip chain of an image with a cascade of
// blits, each level downsampled from the one above it. The image must be
// in TransferDstOptimal layout on every level, it ends up
// ShaderReadOnlyOptimal. Fails when the device cannot blit the format
// with linear filtering, there is no runtime recovery from that.
func (dc *DeviceContext) GenerateMipmaps(img vk.Image, format vk.Format, width, height, mipLevels, layers uint32) error {
	if !dc.FormatSupportsLinearBlit(format) {
		return fmt.Errorf("vulkan error: format %d does not support linear blitting", format)
	}

	return dc.OneTimeCommands(func(cmd vk.CommandBuffer) {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			Image:               img,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseArrayLayer: 0,
				LayerCount:     layers,
				LevelCount:     1,
			},
		}

		mipWidth := int32(width)
		mipHeight := int32(height)
		for level := uint32(1); level < mipLevels; level++ {
			nextWidth := mipWidth
			if nextWidth > 1 {
				nextWidth /= 2
			}
			nextHeight := mipHeight
			if nextHeight > 1 {
				nextHeight /= 2
			}

			barrier.SubresourceRange.BaseMipLevel = level - 1
			barrier.OldLayout = vk.ImageLayoutTransferDstOptimal
			barrier.NewLayout = vk.ImageLayoutTransferSrcOptimal
			barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
			barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
			vk.CmdPipelineBarrier(cmd,
				vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

			blit := vk.ImageBlit{
				SrcOffsets: [2]vk.Offset3D{{}, {X: mipWidth, Y: mipHeight, Z: 1}},
				SrcSubresource: vk.ImageSubresourceLayers{
					AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
					MipLevel:       level - 1,
					BaseArrayLayer: 0,
					LayerCount:     layers,
				},
				DstOffsets: [2]vk.Offset3D{{}, {X: nextWidth, Y: nextHeight, Z: 1}},
				DstSubresource: vk.ImageSubresourceLayers{
					AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
					MipLevel:       level,
					BaseArrayLayer: 0,
					LayerCount:     layers,
				},
			}
			vk.CmdBlitImage(cmd,
				img, vk.ImageLayoutTransferSrcOptimal,
				img, vk.ImageLayoutTransferDstOptimal,
				1, []vk.ImageBlit{blit}, vk.FilterLinear)

			barrier.OldLayout = vk.ImageLayoutTransferSrcOptimal
			barrier.NewLayout = vk.ImageLayoutShaderReadOnlyOptimal
			barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferReadBit)
			barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
			vk.CmdPipelineBarrier(cmd,
				vk.PipelineStageFlags(vk.PipelineStageTransferBit),
				vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
				0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

			mipWidth = nextWidth
			mipHeight = nextHeight
		}

		// The last level was never blitted from, transition it too.
		barrier.SubresourceRange.BaseMipLevel = mipLevels - 1
		barrier.OldLayout = vk.ImageLayoutTransferDstOptimal
		barrier.NewLayout = vk.ImageLayoutShaderReadOnlyOptimal
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		vk.CmdPipelineBarrier(cmd,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	})
}
