package core

import (
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/alexthill/shaderpixel/gfx/vkr"
)

// maxFramesInFlight is the depth of the frame synchronisation ring.
const maxFramesInFlight = 2

// requestQueueSize bounds the host mutation queue. The event loop never
// blocks on the renderer, overflow drops the request.
const requestQueueSize = 16

// renderRequest is a deferred device-graph mutation. Everything that
// touches pipelines, descriptors or queues from outside the frame loop
// goes through the request queue and runs on the render thread.
type renderRequest func(*VulkanRenderer) error

// UniformBufferObject is the per-frame uniform block shared by every
// pipeline. Field order matches the shader-side layout.
type UniformBufferObject struct {
	Model         glm.Mat4
	View          glm.Mat4
	Proj          glm.Mat4
	Resolution    glm.Vec2
	TextureWeight float32
	Time          float32
}

// MeshData is uploaded vertex and index data plus its vertex layout.
type MeshData struct {
	VertexData []byte
	Indices    []uint32
	Format     VertexFormat
}

// Scene carries the decoded assets the renderer uploads during
// Initialise. Loading and decoding happen outside the renderer.
type Scene struct {
	MainMesh    MeshData
	MainTexture image.Image

	SkyboxMesh  MeshData
	SkyboxFaces [6]image.Image

	// QuadMesh and CubeMesh are the canvases the shader art pipelines
	// draw on, flat panels and boxes respectively.
	QuadMesh MeshData
	CubeMesh MeshData

	ArtShaders []ArtShader
}

type frameSync struct {
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       vk.Fence
}

// NewVulkanRenderer creates a not yet initialised Vulkan API renderer
func NewVulkanRenderer(instance Instance, cfg RendererConfiguration, scene Scene) (Renderer, error) {
	return &VulkanRenderer{
		configuration: cfg,
		instance:      instance,
		scene:         scene,
		surfaceWidth:  cfg.ScreenWidth,
		surfaceHeight: cfg.ScreenHeight,
		requests:      make(chan renderRequest, requestQueueSize),
		model:         glm.Ident4(),
		view:          glm.Ident4(),
		textureWeight: 1,
	}, nil
}

// VulkanRenderer is a Vulkan API renderer
type VulkanRenderer struct {
	Destroyable
	Renderer

	configuration RendererConfiguration
	instance      Instance
	scene         Scene

	surfaceWidth  uint32
	surfaceHeight uint32

	dc        *DeviceContext
	swapchain *Swapchain
	samples   vk.SampleCountFlagBits

	descriptorSetLayout  vk.DescriptorSetLayout
	descriptorPool       vk.DescriptorPool
	descriptorSets       []vk.DescriptorSet
	skyboxDescriptorSets []vk.DescriptorSet
	uniformBuffers       []vkr.Buffer

	texture       *Texture
	skyboxTexture *Texture

	compiler *ShaderCompiler
	watcher  *ShaderWatcher

	staticSlots []*ShaderSlot
	artSlots    []*ShaderSlot

	artVertex2D *ShaderSlot
	artVertex3D *ShaderSlot

	// geometries holds the base handle of every uploaded geometry,
	// pipelines draw through clones.
	geometries []Geometry

	pipelines      []*Pipeline
	commandBuffers []vk.CommandBuffer

	requests chan renderRequest

	sync       [maxFramesInFlight]frameSync
	frameIndex int
	imageIndex uint32

	model         glm.Mat4
	view          glm.Mat4
	textureWeight float32
}

// Initialise implements interface
func (v *VulkanRenderer) Initialise() error {
	dc, err := NewDeviceContext(v.instance, v.configuration)
	if err != nil {
		return err
	}
	v.dc = dc

	v.samples = vk.SampleCount1Bit
	if v.configuration.Multisampling {
		v.samples = dc.MaxUsableSampleCount()
	}
	log.WithField("samples", v.samples).Debug("Multisampling configured")

	swapchain, err := NewSwapchain(dc, v.instance.Surface(), v.configuration.SwapchainSize, v.surfaceWidth, v.surfaceHeight, v.samples)
	if err != nil {
		return err
	}
	v.swapchain = swapchain

	if err := v.createDescriptorSetLayout(); err != nil {
		return err
	}

	texture, err := dc.NewTexture(v.scene.MainTexture)
	if err != nil {
		return err
	}
	v.texture = texture

	skyboxTexture, err := dc.NewCubemapTexture(v.scene.SkyboxFaces)
	if err != nil {
		return err
	}
	v.skyboxTexture = skyboxTexture

	if err := v.createUniformBuffers(); err != nil {
		return err
	}
	if err := v.createDescriptorSets(); err != nil {
		return err
	}

	v.compiler = NewShaderCompiler()
	watcher, err := NewShaderWatcher()
	if err != nil {
		return err
	}
	v.watcher = watcher

	if err := v.createShaderSlots(); err != nil {
		return err
	}
	if err := v.createGeometries(); err != nil {
		return err
	}
	if err := v.createPipelines(); err != nil {
		return err
	}

	if err := v.createCommandBuffers(); err != nil {
		return err
	}
	if err := v.recordCommandBuffers(); err != nil {
		return err
	}

	return v.createSyncObjects()
}

func (v *VulkanRenderer) createDescriptorSetLayout() error {
	// Bindings match the WGSL side, textures and samplers are separate.
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 3,
		PBindings: []vk.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
			},
			{
				Binding:         1,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampledImage,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
			{
				Binding:         2,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampler,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			},
		},
	}

	var descriptorSetLayout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(v.dc.Device(), &dslci, nil, &descriptorSetLayout)); err != nil {
		return errors.New("vk.CreateDescriptorSetLayout(): " + err.Error())
	}
	v.descriptorSetLayout = descriptorSetLayout
	return nil
}

func (v *VulkanRenderer) createUniformBuffers() error {
	count := v.swapchain.ImageCount()
	v.uniformBuffers = make([]vkr.Buffer, 0, count)
	for i := 0; i < count; i++ {
		buffer, err := vkr.NewBuffer(v.dc.Device(), uint(unsafe.Sizeof(UniformBufferObject{})),
			vk.BufferUsageUniformBufferBit,
			vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit, v.dc.Allocator())
		if err != nil {
			return err
		}
		v.uniformBuffers = append(v.uniformBuffers, buffer)
	}
	return nil
}

func (v *VulkanRenderer) destroyUniformBuffers() {
	for idx := range v.uniformBuffers {
		v.uniformBuffers[idx].Release()
	}
	v.uniformBuffers = nil
}

func (v *VulkanRenderer) createDescriptorSets() error {
	count := uint32(v.swapchain.ImageCount())

	dpci := vk.DescriptorPoolCreateInfo{
		SType:   vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets: count * 2,
		PPoolSizes: []vk.DescriptorPoolSize{
			{
				Type:            vk.DescriptorTypeUniformBuffer,
				DescriptorCount: count * 2,
			},
			{
				Type:            vk.DescriptorTypeSampledImage,
				DescriptorCount: count * 2,
			},
			{
				Type:            vk.DescriptorTypeSampler,
				DescriptorCount: count * 2,
			},
		},
		PoolSizeCount: 3,
	}

	var descriptorPool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(v.dc.Device(), &dpci, nil, &descriptorPool)); err != nil {
		return errors.New("vk.CreateDescriptorPool(): " + err.Error())
	}
	v.descriptorPool = descriptorPool

	allocate := func() ([]vk.DescriptorSet, error) {
		layouts := make([]vk.DescriptorSetLayout, count)
		for i := range layouts {
			layouts[i] = v.descriptorSetLayout
		}
		dsai := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     v.descriptorPool,
			DescriptorSetCount: count,
			PSetLayouts:        layouts,
		}
		sets := make([]vk.DescriptorSet, count)
		if err := vk.Error(vk.AllocateDescriptorSets(v.dc.Device(), &dsai, &sets[0])); err != nil {
			return nil, errors.New("vk.AllocateDescriptorSets(): " + err.Error())
		}
		return sets, nil
	}

	sets, err := allocate()
	if err != nil {
		return err
	}
	v.descriptorSets = sets

	skyboxSets, err := allocate()
	if err != nil {
		return err
	}
	v.skyboxDescriptorSets = skyboxSets

	v.writeDescriptorSets(v.descriptorSets, v.texture)
	v.writeDescriptorSets(v.skyboxDescriptorSets, v.skyboxTexture)
	return nil
}

func (v *VulkanRenderer) writeDescriptorSets(sets []vk.DescriptorSet, texture *Texture) {
	for idx, set := range sets {
		writes := []vk.WriteDescriptorSet{
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      0,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				PBufferInfo: []vk.DescriptorBufferInfo{{
					Buffer: v.uniformBuffers[idx].Get(),
					Offset: 0,
					Range:  vk.DeviceSize(unsafe.Sizeof(UniformBufferObject{})),
				}},
			},
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      1,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampledImage,
				PImageInfo: []vk.DescriptorImageInfo{{
					ImageView:   texture.View(),
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}},
			},
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      2,
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampler,
				PImageInfo: []vk.DescriptorImageInfo{{
					Sampler: texture.Sampler(),
				}},
			},
		}
		vk.UpdateDescriptorSets(v.dc.Device(), uint32(len(writes)), writes, 0, nil)
	}
}

func (v *VulkanRenderer) createShaderSlots() error {
	static := []struct {
		name       string
		shaderType ShaderType
		file       string
		dst        **ShaderSlot
	}{
		{"main.vert", VertexShaderType, "main.vert.wgsl", nil},
		{"main.frag", FragmentShaderType, "main.frag.wgsl", nil},
		{"cube.vert", VertexShaderType, "cube.vert.wgsl", nil},
		{"cube.frag", FragmentShaderType, "cube.frag.wgsl", nil},
		{"art2d.vert", VertexShaderType, "art2d.vert.wgsl", &v.artVertex2D},
		{"art3d.vert", VertexShaderType, "art3d.vert.wgsl", &v.artVertex3D},
	}

	for _, s := range static {
		slot, err := NewStaticShaderSlot(s.name, s.shaderType, s.file)
		if err != nil {
			return err
		}
		if err := slot.Ensure(v.dc.Device()); err != nil {
			return err
		}
		v.staticSlots = append(v.staticSlots, slot)
		if s.dst != nil {
			*s.dst = slot
		}
	}
	return nil
}

// staticSlot finds an already compiled embedded shader by name.
func (v *VulkanRenderer) staticSlot(name string) *ShaderSlot {
	for _, slot := range v.staticSlots {
		if slot.Name() == name {
			return slot
		}
	}
	log.WithField("shader", name).Panic("Unknown static shader")
	return nil
}

func (v *VulkanRenderer) createGeometries() error {
	// scene order: main, skybox, quad, cube
	for _, mesh := range []MeshData{v.scene.MainMesh, v.scene.SkyboxMesh, v.scene.QuadMesh, v.scene.CubeMesh} {
		geometry, err := v.dc.NewGeometry(mesh.VertexData, mesh.Indices)
		if err != nil {
			return err
		}
		v.geometries = append(v.geometries, geometry)
	}
	return nil
}

// artShaderList merges the configured shader art entries with every
// fragment source found in the art directory. Unconfigured files become
// flat panels with an identity model matrix.
func (v *VulkanRenderer) artShaderList() ([]ArtShader, error) {
	arts := append([]ArtShader{}, v.scene.ArtShaders...)

	dir := v.configuration.ShaderArtDirectory
	if dir == "" {
		return arts, nil
	}

	files, shaderTypes, err := loadShaderFilesFromDirectory(dir)
	if err != nil {
		return nil, err
	}

	configured := make(map[string]bool, len(arts))
	for _, art := range arts {
		canonical, err := canonicalPath(art.FragmentPath)
		if err != nil {
			return nil, err
		}
		configured[canonical] = true
	}

	for idx, file := range files {
		if shaderTypes[idx] != FragmentShaderType {
			continue
		}
		canonical, err := canonicalPath(file)
		if err != nil {
			return nil, err
		}
		if configured[canonical] {
			continue
		}
		name := strings.SplitN(filepath.Base(file), ".", 2)[0]
		arts = append(arts, ArtShader{
			Name:         name,
			FragmentPath: file,
			Model:        glm.Ident4(),
		})
	}
	return arts, nil
}

func (v *VulkanRenderer) createPipelines() error {
	props := v.swapchain.Properties()
	renderPass := v.swapchain.RenderPass()

	mainPipeline, err := NewPipeline(v.dc, PipelineOptions{
		Name:     "main",
		Vertex:   v.staticSlot("main.vert"),
		Fragment: v.staticSlot("main.frag"),
		Geometry: v.geometries[PipelineMain].Clone(),
		Format:   v.scene.MainMesh.Format,
		CullMode: vk.CullModeBackBit,
		Active:   true,
	}, props, v.samples, renderPass, v.descriptorSetLayout)
	if err != nil {
		return err
	}
	v.pipelines = append(v.pipelines, mainPipeline)

	skyboxPipeline, err := NewPipeline(v.dc, PipelineOptions{
		Name:     "skybox",
		Vertex:   v.staticSlot("cube.vert"),
		Fragment: v.staticSlot("cube.frag"),
		Geometry: v.geometries[PipelineSkybox].Clone(),
		Format:   v.scene.SkyboxMesh.Format,
		CullMode: vk.CullModeFrontBit,
		Active:   true,
	}, props, v.samples, renderPass, v.descriptorSetLayout)
	if err != nil {
		return err
	}
	v.pipelines = append(v.pipelines, skyboxPipeline)

	arts, err := v.artShaderList()
	if err != nil {
		return err
	}

	for _, art := range arts {
		fragment := NewShaderSlot(art.Name, FragmentShaderType, art.FragmentPath)
		fragment.SetHotReload(v.compiler.Jobs())
		if err := v.watcher.Watch(fragment); err != nil {
			return err
		}
		v.artSlots = append(v.artSlots, fragment)

		vertex := v.artVertex2D
		canvas := v.geometries[2]
		if art.Is3D {
			vertex = v.artVertex3D
			canvas = v.geometries[3]
		}

		pipeline, err := NewPipeline(v.dc, PipelineOptions{
			Name:      art.Name,
			Vertex:    vertex,
			Fragment:  fragment,
			Geometry:  canvas.Clone(),
			Format:    v.scene.QuadMesh.Format,
			CullMode:  vk.CullModeBackBit,
			PushModel: true,
			Model:     art.Model,
			Active:    true,
		}, props, v.samples, renderPass, v.descriptorSetLayout)
		if err != nil {
			return err
		}
		v.pipelines = append(v.pipelines, pipeline)
	}
	return nil
}

func (v *VulkanRenderer) createCommandBuffers() error {
	count := uint32(v.swapchain.ImageCount())
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        v.dc.CommandPool(),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}

	commandBuffers := make([]vk.CommandBuffer, count)
	if err := vk.Error(vk.AllocateCommandBuffers(v.dc.Device(), &cbai, commandBuffers)); err != nil {
		return errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}
	v.commandBuffers = commandBuffers
	return nil
}

func (v *VulkanRenderer) freeCommandBuffers() {
	if len(v.commandBuffers) == 0 {
		return
	}
	vk.FreeCommandBuffers(v.dc.Device(), v.dc.CommandPool(), uint32(len(v.commandBuffers)), v.commandBuffers)
	v.commandBuffers = nil
}

// recordCommandBuffers records one draw list per swapchain image.
// Pipelines still waiting for shaders or toggled off are skipped, the
// caller must have made the GPU idle beforehand.
func (v *VulkanRenderer) recordCommandBuffers() error {
	props := v.swapchain.Properties()
	framebuffers := v.swapchain.Framebuffers()

	for idx, commandBuffer := range v.commandBuffers {
		cbbi := vk.CommandBufferBeginInfo{
			SType: vk.StructureTypeCommandBufferBeginInfo,
			Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
		}
		if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &cbbi)); err != nil {
			return fmt.Errorf("vk.BeginCommandBuffer()[%d]: %s", idx, err.Error())
		}

		clearValues := make([]vk.ClearValue, 2)
		clearValues[0].SetColor([]float32{0, 0, 0, 1})
		clearValues[1].SetDepthStencil(1, 0)

		rpbi := vk.RenderPassBeginInfo{
			SType:       vk.StructureTypeRenderPassBeginInfo,
			RenderPass:  v.swapchain.RenderPass(),
			Framebuffer: framebuffers[idx],
			RenderArea: vk.Rect2D{
				Offset: vk.Offset2D{X: 0, Y: 0},
				Extent: props.Extent,
			},
			ClearValueCount: 2,
			PClearValues:    clearValues,
		}
		vk.CmdBeginRenderPass(commandBuffer, &rpbi, vk.SubpassContentsInline)

		for pipelineID, pipeline := range v.pipelines {
			if !pipeline.Active || !pipeline.Ready() {
				continue
			}
			set := v.descriptorSets[idx]
			if pipelineID == PipelineSkybox {
				set = v.skyboxDescriptorSets[idx]
			}
			pipeline.BindAndDraw(commandBuffer, set)
		}

		vk.CmdEndRenderPass(commandBuffer)
		if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
			return fmt.Errorf("vk.EndCommandBuffer()[%d]: %s", idx, err.Error())
		}
	}
	return nil
}

func (v *VulkanRenderer) createSyncObjects() error {
	for i := range v.sync {
		sci := vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}
		if err := vk.Error(vk.CreateSemaphore(v.dc.Device(), &sci, nil, &v.sync[i].imageAvailable)); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}
		if err := vk.Error(vk.CreateSemaphore(v.dc.Device(), &sci, nil, &v.sync[i].renderFinished)); err != nil {
			return errors.New("vk.CreateSemaphore(): " + err.Error())
		}

		// Created signaled so the first wait on each ring slot passes.
		fci := vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}
		if err := vk.Error(vk.CreateFence(v.dc.Device(), &fci, nil, &v.sync[i].inFlight)); err != nil {
			return errors.New("vk.CreateFence(): " + err.Error())
		}
	}
	return nil
}

// pollPipelines requests compiles for watcher-marked shaders and
// rebuilds every pipeline whose new bytecode landed. Rebuilds are
// batched behind a single device idle. Returns whether command buffers
// were re-recorded.
func (v *VulkanRenderer) pollPipelines() (bool, error) {
	for _, pipeline := range v.pipelines {
		if pipeline.Dirty() {
			pipeline.Reload(v.dc.Device(), false)
		}
	}

	var pending []*Pipeline
	for _, pipeline := range v.pipelines {
		if pipeline.pendingRebuild() {
			pending = append(pending, pipeline)
		}
	}
	if len(pending) == 0 {
		return false, nil
	}

	v.dc.WaitIdle()

	props := v.swapchain.Properties()
	for _, pipeline := range pending {
		if err := pipeline.Recreate(v.dc, props, v.samples, v.swapchain.RenderPass(), v.descriptorSetLayout); err != nil {
			return false, err
		}
		if pipeline.Ready() {
			log.WithField("pipeline", pipeline.Name()).Info("Pipeline rebuilt")
		}
	}

	if err := v.recordCommandBuffers(); err != nil {
		return false, err
	}
	return true, nil
}

func (v *VulkanRenderer) updateUniformBuffer(imageIndex uint32, elapsed float32) {
	props := v.swapchain.Properties()
	aspect := float32(props.Extent.Width) / float32(props.Extent.Height)

	proj := glm.Perspective(glm.DegToRad(75), aspect, 0.1, 200)
	// Vulkan clip space Y points down.
	proj[5] *= -1

	ubo := UniformBufferObject{
		Model:         v.model,
		View:          v.view,
		Proj:          proj,
		Resolution:    glm.Vec2{float32(props.Extent.Width), float32(props.Extent.Height)},
		TextureWeight: v.textureWeight,
		Time:          elapsed,
	}

	mem := v.uniformBuffers[imageIndex].Mem()
	mapped := mem.Map()
	*(*UniformBufferObject)(mapped) = ubo
	mem.Unmap()
}

// enqueue hands a request to the render thread for the next frame.
func (v *VulkanRenderer) enqueue(req renderRequest) {
	select {
	case v.requests <- req:
	default:
		log.Warn("Render request dropped, queue full")
	}
}

// drainRequests applies queued host mutations. Runs at the top of the
// frame, before any command buffer of the new frame is touched.
func (v *VulkanRenderer) drainRequests() error {
	for {
		select {
		case req := <-v.requests:
			if err := req(v); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// DrawFrame implements interface
func (v *VulkanRenderer) DrawFrame(elapsed float32) (bool, error) {
	if err := v.drainRequests(); err != nil {
		return false, err
	}
	if _, err := v.pollPipelines(); err != nil {
		return false, err
	}

	sync := &v.sync[v.frameIndex]
	vk.WaitForFences(v.dc.Device(), 1, []vk.Fence{sync.inFlight}, vk.True, math.MaxUint64)

	result := vk.AcquireNextImage(v.dc.Device(), v.swapchain.Handle(), math.MaxUint64, sync.imageAvailable, nil, &v.imageIndex)
	if result == vk.ErrorOutOfDate {
		// The fence stays signaled, Resize and the next frame start clean.
		return true, nil
	}
	if result != vk.Success && result != vk.Suboptimal {
		return false, errors.New("vk.AcquireNextImage(): " + vk.Error(result).Error())
	}

	vk.ResetFences(v.dc.Device(), 1, []vk.Fence{sync.inFlight})

	v.updateUniformBuffer(v.imageIndex, elapsed)

	submit := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sync.imageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{v.commandBuffers[v.imageIndex]},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{sync.renderFinished},
	}}

	if err := vk.Error(vk.QueueSubmit(v.dc.GraphicsQueue(), 1, submit, sync.inFlight)); err != nil {
		// The fence was already reset and nothing will signal it, a
		// retried frame would wait on this slot forever.
		log.WithError(err).Panic("vk.QueueSubmit()")
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sync.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{v.swapchain.Handle()},
		PImageIndices:      []uint32{v.imageIndex},
	}

	outOfDate := false
	presentResult := vk.QueuePresent(v.dc.PresentQueue(), &presentInfo)
	switch {
	case presentResult == vk.ErrorOutOfDate || presentResult == vk.Suboptimal:
		outOfDate = true
	case presentResult != vk.Success:
		return false, errors.New("vk.QueuePresent(): " + vk.Error(presentResult).Error())
	}

	v.frameIndex = (v.frameIndex + 1) % maxFramesInFlight
	return outOfDate, nil
}

// Resize implements interface
func (v *VulkanRenderer) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		log.WithFields(log.Fields{"width": width, "height": height}).Panic("Resize() with zero dimension")
	}
	v.surfaceWidth = width
	v.surfaceHeight = height

	v.dc.WaitIdle()

	for _, pipeline := range v.pipelines {
		pipeline.DestroyPipeline(v.dc.Device())
	}

	if err := v.swapchain.Recreate(width, height); err != nil {
		return err
	}

	// The image count can change with the surface, rebuild everything
	// sized by it.
	v.destroyUniformBuffers()
	vk.DestroyDescriptorPool(v.dc.Device(), v.descriptorPool, nil)
	if err := v.createUniformBuffers(); err != nil {
		return err
	}
	if err := v.createDescriptorSets(); err != nil {
		return err
	}

	props := v.swapchain.Properties()
	for _, pipeline := range v.pipelines {
		if err := pipeline.Recreate(v.dc, props, v.samples, v.swapchain.RenderPass(), v.descriptorSetLayout); err != nil {
			return err
		}
	}

	v.freeCommandBuffers()
	if err := v.createCommandBuffers(); err != nil {
		return err
	}
	return v.recordCommandBuffers()
}

// TogglePipeline implements interface
func (v *VulkanRenderer) TogglePipeline(id int) {
	v.enqueue(func(v *VulkanRenderer) error {
		if id < 0 || id >= len(v.pipelines) {
			log.WithField("pipeline", id).Warn("TogglePipeline() out of range")
			return nil
		}
		v.dc.WaitIdle()
		v.pipelines[id].Active = !v.pipelines[id].Active
		return v.recordCommandBuffers()
	})
}

// ReloadShaders implements interface
func (v *VulkanRenderer) ReloadShaders() {
	v.enqueue(func(v *VulkanRenderer) error {
		for _, slot := range v.artSlots {
			slot.Reload(v.dc.Device(), true)
		}
		return nil
	})
}

// LoadNewTexture implements interface
func (v *VulkanRenderer) LoadNewTexture(img image.Image) {
	v.enqueue(func(v *VulkanRenderer) error {
		// Upload before swapping, a failed upload keeps the current
		// texture on screen.
		texture, err := v.dc.NewTexture(img)
		if err != nil {
			log.WithError(err).Error("Texture swap failed")
			return nil
		}

		v.dc.WaitIdle()
		old := v.texture
		v.texture = texture
		v.writeDescriptorSets(v.descriptorSets, v.texture)
		old.Destroy(v.dc.Device())
		log.Info("Texture swapped")
		return nil
	})
}

// SetUniformInputs implements interface
func (v *VulkanRenderer) SetUniformInputs(model, view glm.Mat4, textureWeight float32) {
	v.model = model
	v.view = view
	v.textureWeight = textureWeight
}

// releaseGeometries drops the renderer's base handles. Every pipeline
// clone must be gone by now, a still referenced geometry at teardown is
// a programming error and aborts.
func (v *VulkanRenderer) releaseGeometries() {
	for _, geometry := range v.geometries {
		if refs := geometry.Refs(); refs != 1 {
			log.WithField("refs", refs).Panic("Geometry still referenced at teardown")
		}
		geometry.Release()
	}
	v.geometries = nil
}

// Destroy implements interface
func (v *VulkanRenderer) Destroy() {
	v.dc.WaitIdle()

	if v.watcher != nil {
		if err := v.watcher.Close(); err != nil {
			log.WithError(err).Warn("Shader watcher close failed")
		}
	}
	if v.compiler != nil {
		v.compiler.Close()
	}

	for i := range v.sync {
		vk.DestroySemaphore(v.dc.Device(), v.sync[i].imageAvailable, nil)
		vk.DestroySemaphore(v.dc.Device(), v.sync[i].renderFinished, nil)
		vk.DestroyFence(v.dc.Device(), v.sync[i].inFlight, nil)
	}

	v.freeCommandBuffers()

	for _, pipeline := range v.pipelines {
		pipeline.Destroy(v.dc.Device())
	}
	v.pipelines = nil

	v.releaseGeometries()

	for _, slot := range v.artSlots {
		slot.Destroy(v.dc.Device())
	}
	for _, slot := range v.staticSlots {
		slot.Destroy(v.dc.Device())
	}

	if v.texture != nil {
		v.texture.Destroy(v.dc.Device())
	}
	if v.skyboxTexture != nil {
		v.skyboxTexture.Destroy(v.dc.Device())
	}

	vk.DestroyDescriptorPool(v.dc.Device(), v.descriptorPool, nil)
	vk.DestroyDescriptorSetLayout(v.dc.Device(), v.descriptorSetLayout, nil)
	v.destroyUniformBuffers()

	v.swapchain.Destroy()
	v.dc.Destroy()
}
