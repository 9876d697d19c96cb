package core

import (
	"errors"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	log "github.com/sirupsen/logrus"
)

type pushConstant struct {
	Model glm.Mat4
}

// PipelineOptions configures a new Pipeline.
type PipelineOptions struct {
	Name     string
	Vertex   *ShaderSlot
	Fragment *ShaderSlot

	// Geometry is optional, full-screen effects draw without one. The
	// pipeline takes ownership of the handle and releases it on Destroy.
	Geometry Geometry

	Format   VertexFormat
	CullMode vk.CullModeFlagBits

	// PushModel enables the model matrix push constant range.
	PushModel bool
	Model     glm.Mat4

	Active bool
}

// NewPipeline constructs a pipeline in the waiting-for-shaders state and
// immediately attempts to build it.
func NewPipeline(dc *DeviceContext, opts PipelineOptions, props SwapchainProperties, samples vk.SampleCountFlagBits, renderPass vk.RenderPass, descriptorLayout vk.DescriptorSetLayout) (*Pipeline, error) {
	p := &Pipeline{
		name:      opts.Name,
		vertex:    opts.Vertex,
		fragment:  opts.Fragment,
		geometry:  opts.Geometry,
		format:    opts.Format,
		cullMode:  opts.CullMode,
		pushModel: opts.PushModel,
		model:     opts.Model,
		Active:    opts.Active,
		waiting:   true,
	}
	if err := p.Recreate(dc, props, samples, renderPass, descriptorLayout); err != nil {
		return nil, err
	}
	return p, nil
}

// Pipeline is one graphics pipeline: fixed-function state, two shader
// slots, optional geometry and an optional per-draw model matrix. Its
// lifecycle is independent of every other pipeline.
type Pipeline struct {
	// Active excludes the pipeline from command recording when false,
	// without destroying anything.
	Active bool

	name     string
	vertex   *ShaderSlot
	fragment *ShaderSlot
	geometry Geometry

	format    VertexFormat
	cullMode  vk.CullModeFlagBits
	pushModel bool
	model     glm.Mat4

	pipeline vk.Pipeline
	layout   vk.PipelineLayout
	waiting  bool
}

// Name returns the pipeline name used in logs.
func (p *Pipeline) Name() string {
	return p.name
}

// WaitingForShaders reports whether the GPU pipeline could not be built
// yet because a shader slot has no live module.
func (p *Pipeline) WaitingForShaders() bool {
	return p.waiting
}

// Ready reports that the GPU pipeline exists and can be bound.
func (p *Pipeline) Ready() bool {
	return !p.waiting
}

// SetModel replaces the per-draw model matrix payload.
func (p *Pipeline) SetModel(model glm.Mat4) {
	p.model = model
}

// Geometry returns the pipeline's geometry handle, which may be empty.
func (p *Pipeline) Geometry() Geometry {
	return p.geometry
}

// Reload requests recompilation on both shader slots. Returns whether
// any compilation is now pending. The GPU pipeline keeps drawing with
// the old code until the new bytecode lands.
func (p *Pipeline) Reload(dev vk.Device, forced bool) bool {
	reloading := p.vertex.Reload(dev, forced)
	reloading = p.fragment.Reload(dev, forced) || reloading
	return reloading
}

// Dirty reports whether either shader slot was marked by the watcher.
func (p *Pipeline) Dirty() bool {
	return p.vertex.Dirty() || p.fragment.Dirty()
}

// needsRebuild is true when a finished background compile left fresh
// bytecode that no module consumed yet. Waiting pipelines are excluded,
// a stage readying up one at a time must not trigger rebuild attempts
// until both are there.
func (p *Pipeline) needsRebuild() bool {
	if p.waiting {
		return false
	}
	pending := func(s *ShaderSlot) bool {
		return !s.HasModule() && s.ModuleReady()
	}
	return pending(p.vertex) || pending(p.fragment)
}

// pendingRebuild reports that a rebuild attempt would make progress,
// either because new bytecode landed or because a waiting pipeline's
// shaders became ready.
func (p *Pipeline) pendingRebuild() bool {
	if p.waiting {
		return p.vertex.ModuleReady() && p.fragment.ModuleReady()
	}
	return p.needsRebuild()
}

// Poll drives the state machine from the render thread: when a
// background compile completed or the pipeline is still waiting, it
// attempts a rebuild. Returns whether the GPU pipeline changed and
// command buffers need re-recording.
func (p *Pipeline) Poll(dc *DeviceContext, props SwapchainProperties, samples vk.SampleCountFlagBits, renderPass vk.RenderPass, descriptorLayout vk.DescriptorSetLayout) (bool, error) {
	if !p.pendingRebuild() {
		return false, nil
	}

	dc.WaitIdle()
	if err := p.Recreate(dc, props, samples, renderPass, descriptorLayout); err != nil {
		return false, err
	}
	return p.Ready(), nil
}

// Recreate destroys any existing GPU pipeline and builds a new one
// against the given render pass, as long as both shader slots can
// produce a module. Otherwise the pipeline stays waiting. Idempotent,
// safe to call every frame.
func (p *Pipeline) Recreate(dc *DeviceContext, props SwapchainProperties, samples vk.SampleCountFlagBits, renderPass vk.RenderPass, descriptorLayout vk.DescriptorSetLayout) error {
	p.DestroyPipeline(dc.Device())
	p.waiting = true

	if !p.vertex.ModuleReady() || !p.fragment.ModuleReady() {
		return nil
	}

	vertModule, err := p.vertex.Module(dc.Device())
	if err != nil {
		log.WithError(err).WithField("pipeline", p.name).Error("Vertex module load failed")
		return nil
	}
	fragModule, err := p.fragment.Module(dc.Device())
	if err != nil {
		log.WithError(err).WithField("pipeline", p.name).Error("Fragment module load failed")
		return nil
	}

	if err := p.createLayout(dc.Device(), descriptorLayout); err != nil {
		return err
	}
	if err := p.createPipeline(dc.Device(), vertModule, fragModule, props, samples, renderPass); err != nil {
		vk.DestroyPipelineLayout(dc.Device(), p.layout, nil)
		p.layout = vk.NullPipelineLayout
		return err
	}

	p.waiting = false
	return nil
}

func (p *Pipeline) createLayout(dev vk.Device, descriptorLayout vk.DescriptorSetLayout) error {
	var pcr []vk.PushConstantRange
	if p.pushModel {
		pcr = append(pcr, vk.PushConstantRange{
			Offset:     0,
			Size:       uint32(unsafe.Sizeof(pushConstant{})),
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		})
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{descriptorLayout},
		PushConstantRangeCount: uint32(len(pcr)),
		PPushConstantRanges:    pcr,
	}

	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(dev, &plci, nil, &layout)); err != nil {
		return errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}
	p.layout = layout
	return nil
}

func (p *Pipeline) createPipeline(dev vk.Device, vertModule, fragModule vk.ShaderModule, props SwapchainProperties, samples vk.SampleCountFlagBits, renderPass vk.RenderPass) error {
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  safeString("main"),
		},
	}

	vertexAttributeDescriptions := p.format.AttributeDescriptions()
	vertexBindingDescriptions := p.format.BindingDescriptions()

	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(props.Extent.Width),
		Height:   float32(props.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: props.Extent,
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexAttributeDescriptionCount: uint32(len(vertexAttributeDescriptions)),
			PVertexAttributeDescriptions:    vertexAttributeDescriptions,
			VertexBindingDescriptionCount:   uint32(len(vertexBindingDescriptions)),
			PVertexBindingDescriptions:      vertexBindingDescriptions,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			PViewports:    []vk.Viewport{viewport},
			ScissorCount:  1,
			PScissors:     []vk.Rect2D{scissor},
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(p.cullMode),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       vk.True,
			DepthWriteEnable:      vk.True,
			DepthCompareOp:        vk.CompareOpLess,
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: samples,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask:      0xF,
				BlendEnable:         vk.True,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorOne,
				DstAlphaBlendFactor: vk.BlendFactorZero,
				AlphaBlendOp:        vk.BlendOpAdd,
			}},
		},
		Layout:     p.layout,
		RenderPass: renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(dev, nil, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	p.pipeline = pipelines[0]
	return nil
}

// BindAndDraw records the pipeline's draw into the command buffer.
// Calling this while waiting for shaders is a programmer error, the
// frame engine filters on Active and Ready before recording.
func (p *Pipeline) BindAndDraw(cmd vk.CommandBuffer, descriptorSet vk.DescriptorSet) {
	if p.waiting {
		log.WithField("pipeline", p.name).Panic("BindAndDraw() while waiting for shaders")
	}

	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, p.pipeline)
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, p.layout, 0, 1, []vk.DescriptorSet{descriptorSet}, 0, nil)

	if p.pushModel {
		pc := pushConstant{Model: p.model}
		vk.CmdPushConstants(cmd, p.layout, vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, uint32(unsafe.Sizeof(pushConstant{})), unsafe.Pointer(&pc))
	}

	if p.geometry.shared != nil {
		vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{p.geometry.VertexBuffer()}, []vk.DeviceSize{0})
		vk.CmdBindIndexBuffer(cmd, p.geometry.IndexBuffer(), 0, vk.IndexTypeUint32)
		vk.CmdDrawIndexed(cmd, p.geometry.IndexCount(), 1, 0, 0, 0)
	} else {
		vk.CmdDraw(cmd, 3, 1, 0, 0)
	}
}

// DestroyPipeline releases only the GPU pipeline and layout, used
// during swapchain recreation before the rebuild.
func (p *Pipeline) DestroyPipeline(dev vk.Device) {
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(dev, p.pipeline, nil)
		p.pipeline = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(dev, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
	p.waiting = true
}

// Destroy releases the GPU pipeline and this pipeline's geometry clone.
// Shader slots are shared between pipelines and destroyed by their
// owner.
func (p *Pipeline) Destroy(dev vk.Device) {
	p.DestroyPipeline(dev)
	if p.geometry.shared != nil {
		p.geometry.Release()
		p.geometry = Geometry{}
	}
}
