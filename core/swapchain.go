package core

import (
	"errors"

	vk "github.com/goki/vulkan"
)

// SwapchainProperties is the negotiated surface configuration, shared
// with pipeline and render target creation.
type SwapchainProperties struct {
	Format      vk.Format
	ColorSpace  vk.ColorSpace
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	ImageCount  uint32
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.Format, vk.ColorSpace) {
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f.Format, f.ColorSpace
		}
	}
	return formats[0].Format, formats[0].ColorSpace
}

func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	// Fifo is the only mode the implementation must support.
	return vk.PresentModeFifo
}

func chooseImageCount(capabilities vk.SurfaceCapabilities, requested uint32) uint32 {
	count := capabilities.MinImageCount + 1
	if requested > count {
		count = requested
	}
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	if count < capabilities.MinImageCount {
		count = capabilities.MinImageCount
	}
	return count
}

func chooseExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	// MaxUint32 in CurrentExtent means the surface lets the swapchain
	// decide.
	if capabilities.CurrentExtent.Width != vk.MaxUint32 {
		return capabilities.CurrentExtent
	}
	extent := vk.Extent2D{Width: width, Height: height}
	if extent.Width < capabilities.MinImageExtent.Width {
		extent.Width = capabilities.MinImageExtent.Width
	}
	if extent.Width > capabilities.MaxImageExtent.Width {
		extent.Width = capabilities.MaxImageExtent.Width
	}
	if extent.Height < capabilities.MinImageExtent.Height {
		extent.Height = capabilities.MinImageExtent.Height
	}
	if extent.Height > capabilities.MaxImageExtent.Height {
		extent.Height = capabilities.MaxImageExtent.Height
	}
	return extent
}

// Swapchain bundles the presentation chain with its render pass,
// per-image framebuffers and the multisampled color and depth targets.
type Swapchain struct {
	dc      *DeviceContext
	surface vk.Surface
	samples vk.SampleCountFlagBits

	props        SwapchainProperties
	swapchain    vk.Swapchain
	images       []vk.Image
	views        []vk.ImageView
	renderPass   vk.RenderPass
	framebuffers []vk.Framebuffer

	colorTarget *Texture
	depthTarget *Texture
}

// NewSwapchain negotiates the surface configuration and builds the
// initial presentation chain at the given framebuffer size.
func NewSwapchain(dc *DeviceContext, surface vk.Surface, requestedImages, width, height uint32, samples vk.SampleCountFlagBits) (*Swapchain, error) {
	s := &Swapchain{
		dc:      dc,
		surface: surface,
		samples: samples,
	}
	if err := s.create(requestedImages, width, height, nil); err != nil {
		return nil, err
	}
	if err := s.createRenderPass(); err != nil {
		return nil, err
	}
	if err := s.createTargets(); err != nil {
		return nil, err
	}
	if err := s.createFramebuffers(); err != nil {
		return nil, err
	}
	return s, nil
}

// Properties returns the negotiated surface configuration.
func (s *Swapchain) Properties() SwapchainProperties {
	return s.props
}

// Handle returns the raw swapchain for acquire and present calls.
func (s *Swapchain) Handle() vk.Swapchain {
	return s.swapchain
}

// RenderPass returns the render pass matching the swapchain format.
func (s *Swapchain) RenderPass() vk.RenderPass {
	return s.renderPass
}

// Framebuffers returns one framebuffer per swapchain image.
func (s *Swapchain) Framebuffers() []vk.Framebuffer {
	return s.framebuffers
}

// ImageCount returns the number of presentation images actually
// created, which may exceed the requested count.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

func (s *Swapchain) create(requestedImages, width, height uint32, oldSwapchain vk.Swapchain) error {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(s.dc.PhysicalDevice(), s.surface, &surfaceCapabilities)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()
	surfaceCapabilities.MinImageExtent.Deref()
	surfaceCapabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(s.dc.PhysicalDevice(), s.surface, &formatCount, nil)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(num): " + err.Error())
	}
	formats := make([]vk.SurfaceFormat, formatCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(s.dc.PhysicalDevice(), s.surface, &formatCount, formats)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(formats): " + err.Error())
	}
	for i := range formats {
		formats[i].Deref()
	}

	var modeCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(s.dc.PhysicalDevice(), s.surface, &modeCount, nil)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfacePresentModes(num): " + err.Error())
	}
	modes := make([]vk.PresentMode, modeCount)
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(s.dc.PhysicalDevice(), s.surface, &modeCount, modes)); err != nil {
		return errors.New("vk.GetPhysicalDeviceSurfacePresentModes(modes): " + err.Error())
	}

	s.props.Format, s.props.ColorSpace = chooseSurfaceFormat(formats)
	s.props.PresentMode = choosePresentMode(modes)
	s.props.ImageCount = chooseImageCount(surfaceCapabilities, requestedImages)
	s.props.Extent = chooseExtent(surfaceCapabilities, width, height)

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		if surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	var swapchain vk.Swapchain
	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surface,
		MinImageCount:    s.props.ImageCount,
		ImageFormat:      s.props.Format,
		ImageColorSpace:  s.props.ColorSpace,
		ImageExtent:      s.props.Extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      s.props.PresentMode,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldSwapchain,
	}

	if err := vk.Error(vk.CreateSwapchain(s.dc.Device(), &scci, nil, &swapchain)); err != nil {
		return errors.New("vk.CreateSwapchain(): " + err.Error())
	}
	s.swapchain = swapchain

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(s.dc.Device(), s.swapchain, &numImages, nil)); err != nil {
		return errors.New("vk.GetSwapchainImages(num): " + err.Error())
	}
	s.images = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(s.dc.Device(), s.swapchain, &numImages, s.images)); err != nil {
		return errors.New("vk.GetSwapchainImages(images): " + err.Error())
	}

	s.views = make([]vk.ImageView, len(s.images))
	for idx, image := range s.images {
		view, err := newImageView(s.dc.Device(), image, s.props.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1, vk.ImageViewType2d, 1)
		if err != nil {
			return err
		}
		s.views[idx] = view
	}
	return nil
}

func (s *Swapchain) createRenderPass() error {
	attachments := []vk.AttachmentDescription{
		{
			Format:         s.props.Format,
			Samples:        s.samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		},
		{
			Format:         s.dc.DepthFormat(),
			Samples:        s.samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
		{
			Format:         s.props.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
	}

	colorRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}
	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	resolveRef := vk.AttachmentReference{
		Attachment: 2,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
		PResolveAttachments:     []vk.AttachmentReference{resolveRef},
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(s.dc.Device(), &rpci, nil, &renderPass)); err != nil {
		return errors.New("vk.CreateRenderPass(): " + err.Error())
	}
	s.renderPass = renderPass
	return nil
}

func (s *Swapchain) createTargets() error {
	colorTarget, err := s.dc.NewColorTarget(s.props.Format, s.props.Extent, s.samples)
	if err != nil {
		return err
	}
	s.colorTarget = colorTarget

	depthTarget, err := s.dc.NewDepthTarget(s.props.Extent, s.samples)
	if err != nil {
		s.colorTarget.Destroy(s.dc.Device())
		s.colorTarget = nil
		return err
	}
	s.depthTarget = depthTarget
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	s.framebuffers = make([]vk.Framebuffer, len(s.views))
	for idx, view := range s.views {
		fbci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      s.renderPass,
			AttachmentCount: 3,
			PAttachments:    []vk.ImageView{s.colorTarget.View(), s.depthTarget.View(), view},
			Width:           s.props.Extent.Width,
			Height:          s.props.Extent.Height,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(s.dc.Device(), &fbci, nil, &framebuffer)); err != nil {
			return errors.New("vk.CreateFramebuffer(): " + err.Error())
		}
		s.framebuffers[idx] = framebuffer
	}
	return nil
}

// cleanup releases everything but keeps the old swapchain handle for
// the recreation chain. Targets first, then framebuffers, then the
// render pass and views.
func (s *Swapchain) cleanup(keepRenderPass bool) {
	dev := s.dc.Device()
	if s.depthTarget != nil {
		s.depthTarget.Destroy(dev)
		s.depthTarget = nil
	}
	if s.colorTarget != nil {
		s.colorTarget.Destroy(dev)
		s.colorTarget = nil
	}
	for _, framebuffer := range s.framebuffers {
		vk.DestroyFramebuffer(dev, framebuffer, nil)
	}
	s.framebuffers = nil
	if !keepRenderPass && s.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(dev, s.renderPass, nil)
		s.renderPass = vk.NullRenderPass
	}
	for _, view := range s.views {
		vk.DestroyImageView(dev, view, nil)
	}
	s.views = nil
}

// Recreate rebuilds the presentation chain at a new framebuffer size.
// The caller must have waited for the device to go idle. The render
// pass is rebuilt too since the surface format may change.
func (s *Swapchain) Recreate(width, height uint32) error {
	s.cleanup(false)

	oldSwapchain := s.swapchain
	if err := s.create(s.props.ImageCount, width, height, oldSwapchain); err != nil {
		return err
	}
	vk.DestroySwapchain(s.dc.Device(), oldSwapchain, nil)

	if err := s.createRenderPass(); err != nil {
		return err
	}
	if err := s.createTargets(); err != nil {
		return err
	}
	return s.createFramebuffers()
}

// Destroy releases all swapchain resources.
func (s *Swapchain) Destroy() {
	s.cleanup(false)
	if s.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.dc.Device(), s.swapchain, nil)
		s.swapchain = vk.NullSwapchain
	}
}
