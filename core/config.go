package core

import (
	"strconv"

	"github.com/gobuffalo/envy"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Instance InstanceConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the interval between window event
	// polls in milliseconds
	EventPollDelay int
}

// InstanceConfiguration is used to configure the Vulkan instance
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize    uint32
	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// ShaderArtDirectory holds the hot-reloadable WGSL sources
	// for the shader art pipelines
	ShaderArtDirectory string

	// AssetDirectory holds models and textures, either loose
	// or inside a pak archive
	AssetDirectory string

	// Multisampling enables MSAA at the highest usable sample count
	Multisampling bool
}

// ConfigurationFromEnv populates overridable settings from the
// environment on top of the defaults passed in.
func ConfigurationFromEnv(cfg Configuration) Configuration {
	if w, err := strconv.ParseUint(envy.Get("SHADERPIXEL_WIDTH", ""), 10, 32); err == nil && w > 0 {
		cfg.Renderer.ScreenWidth = uint32(w)
	}
	if h, err := strconv.ParseUint(envy.Get("SHADERPIXEL_HEIGHT", ""), 10, 32); err == nil && h > 0 {
		cfg.Renderer.ScreenHeight = uint32(h)
	}
	if dir := envy.Get("SHADERPIXEL_SHADER_DIR", ""); dir != "" {
		cfg.Renderer.ShaderArtDirectory = dir
	}
	if dir := envy.Get("SHADERPIXEL_ASSET_DIR", ""); dir != "" {
		cfg.Renderer.AssetDirectory = dir
	}
	if msaa, err := strconv.ParseBool(envy.Get("SHADERPIXEL_MSAA", "")); err == nil {
		cfg.Renderer.Multisampling = msaa
	}
	return cfg
}
