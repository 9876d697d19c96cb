package core

import (
	"testing"

	qt "github.com/frankban/quicktest"
	vk "github.com/goki/vulkan"
)

func TestChooseSurfaceFormat(t *testing.T) {
	c := qt.New(t)

	format, colorSpace := chooseSurfaceFormat([]vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	})
	c.Assert(format, qt.Equals, vk.FormatB8g8r8a8Unorm)
	c.Assert(colorSpace, qt.Equals, vk.ColorSpaceSrgbNonlinear)

	// without the preferred pair the first entry wins
	format, colorSpace = chooseSurfaceFormat([]vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	})
	c.Assert(format, qt.Equals, vk.FormatR8g8b8a8Srgb)
	c.Assert(colorSpace, qt.Equals, vk.ColorSpaceSrgbNonlinear)
}

func TestChoosePresentMode(t *testing.T) {
	c := qt.New(t)

	mode := choosePresentMode([]vk.PresentMode{
		vk.PresentModeFifo,
		vk.PresentModeMailbox,
		vk.PresentModeImmediate,
	})
	c.Assert(mode, qt.Equals, vk.PresentModeMailbox)

	mode = choosePresentMode([]vk.PresentMode{
		vk.PresentModeImmediate,
		vk.PresentModeFifoRelaxed,
	})
	c.Assert(mode, qt.Equals, vk.PresentModeFifo)
}

func TestChooseImageCount(t *testing.T) {
	c := qt.New(t)

	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}
	c.Assert(chooseImageCount(caps, 0), qt.Equals, uint32(3))
	c.Assert(chooseImageCount(caps, 5), qt.Equals, uint32(5))
	c.Assert(chooseImageCount(caps, 16), qt.Equals, uint32(8))

	// MaxImageCount of zero means unbounded
	caps = vk.SurfaceCapabilities{MinImageCount: 2}
	c.Assert(chooseImageCount(caps, 16), qt.Equals, uint32(16))

	caps = vk.SurfaceCapabilities{MinImageCount: 4, MaxImageCount: 8}
	c.Assert(chooseImageCount(caps, 2), qt.Equals, uint32(5))
}

func TestChooseExtent(t *testing.T) {
	c := qt.New(t)

	caps := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 1280, Height: 720},
	}
	c.Assert(chooseExtent(caps, 800, 600), qt.Equals, vk.Extent2D{Width: 1280, Height: 720})

	caps = vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	c.Assert(chooseExtent(caps, 1280, 720), qt.Equals, vk.Extent2D{Width: 1280, Height: 720})
	c.Assert(chooseExtent(caps, 16, 8192), qt.Equals, vk.Extent2D{Width: 64, Height: 4096})
}
