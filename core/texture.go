package core

import (
	"errors"
	"fmt"
	"image"

	vk "github.com/goki/vulkan"

	"github.com/alexthill/shaderpixel/gfx/vkr"
)

const texelSize = 4 // R8G8B8A8

func newImageView(dev vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags, mipLevels uint32, viewType vk.ImageViewType, layers uint32) (vk.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: mipLevels,
			LayerCount: layers,
		},
	}

	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(dev, &ivci, nil, &view)); err != nil {
		return vk.NullImageView, errors.New("vk.CreateImageView(): " + err.Error())
	}
	return view, nil
}

// Texture bundles a GPU image with its view and, for sampled textures,
// a sampler. Render targets carry no sampler.
type Texture struct {
	image     vkr.Image
	view      vk.ImageView
	sampler   vk.Sampler
	mipLevels uint32
}

// View returns the image view handle.
func (t *Texture) View() vk.ImageView {
	return t.view
}

// Sampler returns the sampler handle, null for render targets.
func (t *Texture) Sampler() vk.Sampler {
	return t.sampler
}

// MipLevels returns the number of mip levels in the image.
func (t *Texture) MipLevels() uint32 {
	return t.mipLevels
}

// Destroy releases the sampler, view and image.
func (t *Texture) Destroy(dev vk.Device) {
	if t.sampler != vk.NullSampler {
		vk.DestroySampler(dev, t.sampler, nil)
		t.sampler = vk.NullSampler
	}
	if t.view != vk.NullImageView {
		vk.DestroyImageView(dev, t.view, nil)
		t.view = vk.NullImageView
	}
	t.image.Release()
}

func (dc *DeviceContext) createTextureSampler(mipLevels uint32) (vk.Sampler, error) {
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           16,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MinLod:                  0,
		MaxLod:                  float32(mipLevels),
	}

	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(dc.device, &sci, nil, &sampler)); err != nil {
		return vk.NullSampler, errors.New("vk.CreateSampler(): " + err.Error())
	}
	return sampler, nil
}

// NewTexture uploads a 2D image with a full mip chain and creates the
// sampled-image view and sampler for it.
func (dc *DeviceContext) NewTexture(img image.Image) (*Texture, error) {
	bounds := img.Bounds()
	width := uint32(bounds.Dx())
	height := uint32(bounds.Dy())
	mipLevels := MipLevels(width, height)

	pixels := GetPixels(img)
	staging, err := dc.NewStagingBuffer(pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	gpuImage, err := vkr.NewImage(dc.device, vkr.ImageOptions{
		Width:     width,
		Height:    height,
		MipLevels: mipLevels,
		Format:    vk.FormatR8g8b8a8Unorm,
		Tiling:    vk.ImageTilingOptimal,
		Usage:     vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
	}, dc.allocator)
	if err != nil {
		return nil, err
	}

	if err := dc.TransitionImageLayout(gpuImage.Get(), vk.FormatR8g8b8a8Unorm, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, mipLevels, 1); err != nil {
		gpuImage.Release()
		return nil, err
	}
	if err := dc.CopyBufferToImage(staging.Get(), gpuImage.Get(), width, height, 1, 0); err != nil {
		gpuImage.Release()
		return nil, err
	}
	// GenerateMipmaps leaves every level in ShaderReadOnlyOptimal.
	if err := dc.GenerateMipmaps(gpuImage.Get(), vk.FormatR8g8b8a8Unorm, width, height, mipLevels, 1); err != nil {
		gpuImage.Release()
		return nil, err
	}

	view, err := newImageView(dc.device, gpuImage.Get(), vk.FormatR8g8b8a8Unorm, vk.ImageAspectFlags(vk.ImageAspectColorBit), mipLevels, vk.ImageViewType2d, 1)
	if err != nil {
		gpuImage.Release()
		return nil, err
	}

	sampler, err := dc.createTextureSampler(mipLevels)
	if err != nil {
		vk.DestroyImageView(dc.device, view, nil)
		gpuImage.Release()
		return nil, err
	}

	return &Texture{
		image:     gpuImage,
		view:      view,
		sampler:   sampler,
		mipLevels: mipLevels,
	}, nil
}

// NewCubemapTexture uploads six equally sized face images into one
// cube-compatible image. Faces are ordered +X, -X, +Y, -Y, +Z, -Z.
func (dc *DeviceContext) NewCubemapTexture(faces [6]image.Image) (*Texture, error) {
	bounds := faces[0].Bounds()
	width := uint32(bounds.Dx())
	height := uint32(bounds.Dy())

	layerSize := vk.DeviceSize(width) * vk.DeviceSize(height) * texelSize
	pixels := make([]uint8, 0, int(layerSize)*6)
	for idx, face := range faces {
		fb := face.Bounds()
		if uint32(fb.Dx()) != width || uint32(fb.Dy()) != height {
			return nil, fmt.Errorf("cubemap face %d is %dx%d, want %dx%d", idx, fb.Dx(), fb.Dy(), width, height)
		}
		pixels = append(pixels, GetPixels(face)...)
	}

	staging, err := dc.NewStagingBuffer(pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	gpuImage, err := vkr.NewImage(dc.device, vkr.ImageOptions{
		Width:  width,
		Height: height,
		Layers: 6,
		Format: vk.FormatR8g8b8a8Unorm,
		Tiling: vk.ImageTilingOptimal,
		Usage:  vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
		Flags:  vk.ImageCreateCubeCompatibleBit,
	}, dc.allocator)
	if err != nil {
		return nil, err
	}

	if err := dc.TransitionImageLayout(gpuImage.Get(), vk.FormatR8g8b8a8Unorm, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 1, 6); err != nil {
		gpuImage.Release()
		return nil, err
	}
	if err := dc.CopyBufferToImage(staging.Get(), gpuImage.Get(), width, height, 6, layerSize); err != nil {
		gpuImage.Release()
		return nil, err
	}
	if err := dc.TransitionImageLayout(gpuImage.Get(), vk.FormatR8g8b8a8Unorm, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, 1, 6); err != nil {
		gpuImage.Release()
		return nil, err
	}

	view, err := newImageView(dc.device, gpuImage.Get(), vk.FormatR8g8b8a8Unorm, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1, vk.ImageViewTypeCube, 6)
	if err != nil {
		gpuImage.Release()
		return nil, err
	}

	sampler, err := dc.createTextureSampler(1)
	if err != nil {
		vk.DestroyImageView(dc.device, view, nil)
		gpuImage.Release()
		return nil, err
	}

	return &Texture{
		image:     gpuImage,
		view:      view,
		sampler:   sampler,
		mipLevels: 1,
	}, nil
}

// NewColorTarget creates the multisampled color attachment matching the
// swapchain format. Lazily allocated and transient where the driver
// supports it.
func (dc *DeviceContext) NewColorTarget(format vk.Format, extent vk.Extent2D, samples vk.SampleCountFlagBits) (*Texture, error) {
	gpuImage, err := vkr.NewImage(dc.device, vkr.ImageOptions{
		Width:   extent.Width,
		Height:  extent.Height,
		Format:  format,
		Tiling:  vk.ImageTilingOptimal,
		Usage:   vk.ImageUsageTransientAttachmentBit | vk.ImageUsageColorAttachmentBit,
		Samples: samples,
	}, dc.allocator)
	if err != nil {
		return nil, err
	}

	if err := dc.TransitionImageLayout(gpuImage.Get(), format, vk.ImageLayoutUndefined, vk.ImageLayoutColorAttachmentOptimal, 1, 1); err != nil {
		gpuImage.Release()
		return nil, err
	}

	view, err := newImageView(dc.device, gpuImage.Get(), format, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1, vk.ImageViewType2d, 1)
	if err != nil {
		gpuImage.Release()
		return nil, err
	}

	return &Texture{
		image:     gpuImage,
		view:      view,
		mipLevels: 1,
	}, nil
}

// NewDepthTarget creates the depth attachment for the render pass.
func (dc *DeviceContext) NewDepthTarget(extent vk.Extent2D, samples vk.SampleCountFlagBits) (*Texture, error) {
	format := dc.depthFormat

	gpuImage, err := vkr.NewImage(dc.device, vkr.ImageOptions{
		Width:   extent.Width,
		Height:  extent.Height,
		Format:  format,
		Tiling:  vk.ImageTilingOptimal,
		Usage:   vk.ImageUsageDepthStencilAttachmentBit,
		Samples: samples,
	}, dc.allocator)
	if err != nil {
		return nil, err
	}

	if err := dc.TransitionImageLayout(gpuImage.Get(), format, vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal, 1, 1); err != nil {
		gpuImage.Release()
		return nil, err
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	view, err := newImageView(dc.device, gpuImage.Get(), format, aspect, 1, vk.ImageViewType2d, 1)
	if err != nil {
		gpuImage.Release()
		return nil, err
	}

	return &Texture{
		image:     gpuImage,
		view:      view,
		mipLevels: 1,
	}, nil
}
