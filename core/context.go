package core

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/alexthill/shaderpixel/gfx/vkr"
	vk "github.com/goki/vulkan"
	log "github.com/sirupsen/logrus"
)

// DefaultVulkanApplicationInfo application info describes a Vulkan application
var DefaultVulkanApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("ShaderPixel"),
	PEngineName:        safeString("ShaderPixel"),
}

// NewVulkanInstance creates a Vulkan instance
func NewVulkanInstance(appInfo *vk.ApplicationInfo, procAddr unsafe.Pointer, cfg InstanceConfiguration) (Instance, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.InstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	/* Create instance */
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     safeStrings(cfg.Layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, errors.New("vk.CreateInstance(): " + err.Error())
	}
	vk.InitInstance(instance)

	/* Enumerate devices */
	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		return nil, errors.New("core.enumerateDevices(): " + err.Error())
	}

	return &VulkanInstance{
		configuration:    cfg,
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// VulkanInstance describes a Vulkan API Instance
type VulkanInstance struct {
	configuration InstanceConfiguration

	availableDevices []vk.PhysicalDevice
	surface          vk.Surface
	instance         vk.Instance
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %s", err)
	}
	return availableDevices, nil
}

// PhysicalDevicesInfo implements interface
func (v VulkanInstance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	infos := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i, device := range v.availableDevices {
		infos[i] = describePhysicalDevice(device)
	}
	return infos
}

func describePhysicalDevice(device vk.PhysicalDevice) PhysicalDeviceInfo {
	var info PhysicalDeviceInfo

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	info.ID = int(props.DeviceID)
	info.VendorID = int(props.VendorID)
	info.DriverVersion = int(props.DriverVersion)
	info.Name = vk.ToString(props.DeviceName[:])

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(device, &memory)
	memory.Deref()
	for heap := uint32(0); heap < memory.MemoryHeapCount; heap++ {
		memory.MemoryHeaps[heap].Deref()
		info.Memory += uint(memory.MemoryHeaps[heap].Size)
	}

	var extensionCount uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, nil)); err != nil {
		info.Invalid = true
		return info
	}
	extensions := make([]vk.ExtensionProperties, extensionCount)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &extensionCount, extensions)); err != nil {
		info.Invalid = true
		return info
	}
	for _, ext := range extensions {
		ext.Deref()
		info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	var layerCount uint32
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &layerCount, nil)); err != nil {
		info.Invalid = true
		return info
	}
	layers := make([]vk.LayerProperties, layerCount)
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(device, &layerCount, layers)); err != nil {
		info.Invalid = true
		return info
	}
	for _, layer := range layers {
		layer.Deref()
		info.Layers = append(info.Layers, vk.ToString(layer.LayerName[:]))
	}

	return info
}

// Summary condenses the device description into log fields.
func (i PhysicalDeviceInfo) Summary() log.Fields {
	return log.Fields{
		"name":       i.Name,
		"vendorID":   i.VendorID,
		"memoryMiB":  i.Memory >> 20,
		"extensions": len(i.Extensions),
	}
}

// SetSurface implements interface
func (v *VulkanInstance) SetSurface(pSurface unsafe.Pointer) {
	v.surface = vk.SurfaceFromPointer(uintptr(pSurface))
}

// Surface implements interface
func (v VulkanInstance) Surface() vk.Surface {
	if v.surface == nil {
		return vk.NullSurface
	}
	return v.surface
}

// Inner implements interface
func (v *VulkanInstance) Inner() interface{} {
	return v.instance
}

// Extensions implements interface
func (v VulkanInstance) Extensions() []string {
	return v.configuration.Extensions
}

// AvailableDevices implements interface
func (v VulkanInstance) AvailableDevices() []vk.PhysicalDevice {
	return v.availableDevices
}

// Destroy implements interface
func (v VulkanInstance) Destroy() {
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}

// NewDeviceContext picks the most suitable physical device, creates the
// logical device with its queues and command pools. The context owns and
// outlives every other GPU object, it is destroyed last.
func NewDeviceContext(instance Instance, cfg RendererConfiguration) (*DeviceContext, error) {
	dc := &DeviceContext{
		surface: instance.Surface(),
	}

	if err := dc.pickPhysicalDevice(instance.AvailableDevices(), cfg.DeviceExtensions); err != nil {
		return nil, err
	}

	if err := dc.createLogicalDevice(cfg.DeviceExtensions); err != nil {
		return nil, err
	}

	allocator, err := vkr.NewMemoryAllocator(dc.device, dc.physicalDevice)
	if err != nil {
		return nil, err
	}
	dc.allocator = allocator

	if err := dc.createCommandPools(); err != nil {
		return nil, err
	}

	depthFormat, err := dc.FindDepthFormat()
	if err != nil {
		return nil, err
	}
	dc.depthFormat = depthFormat

	return dc, nil
}

// DeviceContext owns the logical device, its queues and the capability
// queries every other component builds on.
type DeviceContext struct {
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	device         vk.Device

	graphicsQueue       vk.Queue
	presentQueue        vk.Queue
	graphicsFamilyIndex uint32
	presentFamilyIndex  uint32

	allocator *vkr.MemoryAllocator

	commandPool   vk.CommandPool
	transientPool vk.CommandPool

	depthFormat vk.Format
}

// Device returns the logical device handle.
func (dc *DeviceContext) Device() vk.Device {
	return dc.device
}

// PhysicalDevice returns the picked physical device handle.
func (dc *DeviceContext) PhysicalDevice() vk.PhysicalDevice {
	return dc.physicalDevice
}

// Allocator returns the memory allocator for the logical device.
func (dc *DeviceContext) Allocator() *vkr.MemoryAllocator {
	return dc.allocator
}

// GraphicsQueue returns the graphics queue handle.
func (dc *DeviceContext) GraphicsQueue() vk.Queue {
	return dc.graphicsQueue
}

// PresentQueue returns the present queue handle.
func (dc *DeviceContext) PresentQueue() vk.Queue {
	return dc.presentQueue
}

// GraphicsFamilyIndex returns the graphics queue family index.
func (dc *DeviceContext) GraphicsFamilyIndex() uint32 {
	return dc.graphicsFamilyIndex
}

// CommandPool returns the long lived command pool.
func (dc *DeviceContext) CommandPool() vk.CommandPool {
	return dc.commandPool
}

// DepthFormat returns the depth attachment format picked at device
// creation.
func (dc *DeviceContext) DepthFormat() vk.Format {
	return dc.depthFormat
}

// WaitIdle blocks until the logical device finishes all queued work.
func (dc *DeviceContext) WaitIdle() {
	vk.DeviceWaitIdle(dc.device)
}

func (dc *DeviceContext) pickPhysicalDevice(devices []vk.PhysicalDevice, extensions []string) error {
	if len(devices) == 0 {
		return errors.New("vulkan error: no physical devices available")
	}

	bestScore := -1
	for _, device := range devices {
		graphicsIdx, presentIdx, ok := findQueueFamilies(device, dc.surface)
		if !ok {
			continue
		}
		if !deviceSupportsExtensions(device, extensions) {
			continue
		}
		if !surfaceIsUsable(device, dc.surface) {
			continue
		}

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(device, &features)
		features.Deref()
		if features.SamplerAnisotropy != vk.True {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &props)
		props.Deref()

		score := deviceTypeScore(props.DeviceType)
		if score > bestScore {
			bestScore = score
			dc.physicalDevice = device
			dc.graphicsFamilyIndex = graphicsIdx
			dc.presentFamilyIndex = presentIdx
			log.WithField("device", vk.ToString(props.DeviceName[:])).Debug("Physical device candidate")
		}
	}

	if bestScore < 0 {
		return errors.New("vulkan error: could not find a suitable physical device")
	}
	return nil
}

// Discrete GPUs win over integrated ones, anything else comes last.
func deviceTypeScore(deviceType vk.PhysicalDeviceType) int {
	switch deviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 2
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 1
	default:
		return 0
	}
}

func findQueueFamilies(device vk.PhysicalDevice, surface vk.Surface) (graphics, present uint32, ok bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	var graphicsFound, presentFound bool
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if !graphicsFound && queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			graphics = i
			graphicsFound = true
		}

		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supportsPresent)
		if !presentFound && supportsPresent.B() {
			present = i
			presentFound = true
		}

		if graphicsFound && presentFound {
			break
		}
	}
	return graphics, present, graphicsFound && presentFound
}

func deviceSupportsExtensions(device vk.PhysicalDevice, required []string) bool {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, available)); err != nil {
		return false
	}

	names := make(map[string]struct{}, count)
	for _, ext := range available {
		ext.Deref()
		names[vk.ToString(ext.ExtensionName[:])] = struct{}{}
	}
	for _, req := range required {
		if _, ok := names[req]; !ok {
			return false
		}
	}
	return true
}

func surfaceIsUsable(device vk.PhysicalDevice, surface vk.Surface) bool {
	var formatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)); err != nil {
		return false
	}
	var presentModeCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &presentModeCount, nil)); err != nil {
		return false
	}
	return formatCount > 0 && presentModeCount > 0
}

func (dc *DeviceContext) createLogicalDevice(extensions []string) error {
	familyIndices := []uint32{dc.graphicsFamilyIndex}
	if dc.presentFamilyIndex != dc.graphicsFamilyIndex {
		familyIndices = append(familyIndices, dc.presentFamilyIndex)
	}

	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(familyIndices))
	for _, idx := range familyIndices {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: idx,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		})
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: vk.True,
		}},
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(dc.physicalDevice, &dci, nil, &device)); err != nil {
		return errors.New("vk.CreateDevice(): " + err.Error())
	}
	dc.device = device

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(device, dc.graphicsFamilyIndex, 0, &graphicsQueue)
	dc.graphicsQueue = graphicsQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(device, dc.presentFamilyIndex, 0, &presentQueue)
	dc.presentQueue = presentQueue

	return nil
}

func (dc *DeviceContext) createCommandPools() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: dc.graphicsFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(dc.device, &cpci, nil, &commandPool)); err != nil {
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	dc.commandPool = commandPool

	// One-time copies and transitions go through a transient pool.
	tpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: dc.graphicsFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var transientPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(dc.device, &tpci, nil, &transientPool)); err != nil {
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	dc.transientPool = transientPool

	return nil
}

// FindSupportedFormat returns the first format among the candidates that
// the physical device supports for the given tiling and features.
func (dc *DeviceContext) FindSupportedFormat(candidates []vk.Format, tiling vk.ImageTiling, features vk.FormatFeatureFlagBits) (vk.Format, error) {
	for _, format := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(dc.physicalDevice, format, &props)
		props.Deref()

		if tiling == vk.ImageTilingLinear && props.LinearTilingFeatures&vk.FormatFeatureFlags(features) == vk.FormatFeatureFlags(features) {
			return format, nil
		}
		if tiling == vk.ImageTilingOptimal && props.OptimalTilingFeatures&vk.FormatFeatureFlags(features) == vk.FormatFeatureFlags(features) {
			return format, nil
		}
	}
	return vk.FormatUndefined, errors.New("vulkan error: no supported format among candidates")
}

// FindDepthFormat picks the depth attachment format for the device.
func (dc *DeviceContext) FindDepthFormat() (vk.Format, error) {
	return dc.FindSupportedFormat(
		[]vk.Format{vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint},
		vk.ImageTilingOptimal,
		vk.FormatFeatureDepthStencilAttachmentBit,
	)
}

// MaxUsableSampleCount returns the highest MSAA sample count usable for
// both color and depth framebuffers.
func (dc *DeviceContext) MaxUsableSampleCount() vk.SampleCountFlagBits {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(dc.physicalDevice, &props)
	props.Deref()
	props.Limits.Deref()

	counts := props.Limits.FramebufferColorSampleCounts & props.Limits.FramebufferDepthSampleCounts
	for _, count := range []vk.SampleCountFlagBits{
		vk.SampleCount64Bit,
		vk.SampleCount32Bit,
		vk.SampleCount16Bit,
		vk.SampleCount8Bit,
		vk.SampleCount4Bit,
		vk.SampleCount2Bit,
	} {
		if counts&vk.SampleCountFlags(count) != 0 {
			return count
		}
	}
	return vk.SampleCount1Bit
}

// FormatSupportsLinearBlit reports whether the device can blit the format
// with linear filtering, a requirement for mipmap generation.
func (dc *DeviceContext) FormatSupportsLinearBlit(format vk.Format) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(dc.physicalDevice, format, &props)
	props.Deref()
	return props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit) != 0
}

// Destroy releases the command pools and the logical device.
// The caller must make sure every dependent object is gone first.
func (dc *DeviceContext) Destroy() {
	vk.DestroyCommandPool(dc.device, dc.transientPool, nil)
	vk.DestroyCommandPool(dc.device, dc.commandPool, nil)
	vk.DestroyDevice(dc.device, nil)
}
