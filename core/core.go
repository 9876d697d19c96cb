package core

import (
	"image"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

// Instance describes a Vulkan instance and supporting methods.
// Once created it is ready to use.
type Instance interface {
	// PhysicalDevicesInfo returns a struct for each Physical Device
	// along with info about those devices
	PhysicalDevicesInfo() []PhysicalDeviceInfo

	// AvailableDevices returns handles of Physical Devices
	// from the Vulkan API
	AvailableDevices() []vk.PhysicalDevice

	// SetSurface sets the window surface for rendering
	SetSurface(unsafe.Pointer)

	// Surface returns the window surface, if it's not set
	// it should return a valid but empty surface
	Surface() vk.Surface

	// Extensions returns the instance extensions enabled at creation
	Extensions() []string

	// Inner returns the inner handle of the underlying API
	Inner() interface{}

	// Destroy destroys internal members
	Destroy()
}

// Renderer describes the rendering machinery.
// It's created only with internal values set,
// it needs to be initialised with Initialise() before use.
type Renderer interface {
	// Initialise sets up the full rendering pipeline
	Initialise() error

	// DrawFrame renders and presents one frame. The returned flag
	// signals that the swapchain went out of date and Resize must
	// be called before the next frame
	DrawFrame(elapsed float32) (bool, error)

	// Resize recreates the swapchain and everything that depends
	// on it for the new surface size
	Resize(width, height uint32) error

	// TogglePipeline flips a pipeline in or out of command recording.
	// Applied at the start of the next frame, safe from any goroutine
	TogglePipeline(id int)

	// ReloadShaders forces recompilation of every hot-reloadable
	// shader. Applied at the start of the next frame
	ReloadShaders()

	// LoadNewTexture swaps the model texture for a new decoded image.
	// The upload happens on the render thread at the start of the
	// next frame, a failed upload keeps the current texture
	LoadNewTexture(img image.Image)

	// SetUniformInputs updates the host-side uniform values
	// written each frame
	SetUniformInputs(model, view glm.Mat4, textureWeight float32)

	// Destroy waits for the device to idle and releases every
	// GPU object in dependency order
	Destroy()
}

// Destroyable is any GPU-backed object with explicit teardown.
type Destroyable interface {
	Destroy()
}

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

// Well known pipeline slots. Art pipelines follow after PipelineArt.
const (
	PipelineMain = iota
	PipelineSkybox
	PipelineArt
)

// PhysicalDeviceInfo describes one Physical Device reported by the API
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint
}
