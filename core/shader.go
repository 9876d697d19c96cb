package core

import (
	"errors"
	"fmt"
	"os"
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/packr"
	"github.com/gogpu/naga"
	vk "github.com/goki/vulkan"
	log "github.com/sirupsen/logrus"
)

// staticShaders holds the WGSL sources for the always-present passes,
// embedded at build time.
var staticShaders = packr.NewBox("../assets/shaders")

// ArtShader describes one shader art panel of the gallery.
type ArtShader struct {
	Name         string
	FragmentPath string
	Is3D         bool
	Model        glm.Mat4
}

// NewShaderSlot creates a hot-reloadable compilation unit backed by a
// WGSL source file.
func NewShaderSlot(name string, shaderType ShaderType, path string) *ShaderSlot {
	return &ShaderSlot{
		name:       name,
		shaderType: shaderType,
		path:       path,
	}
}

// NewStaticShaderSlot creates a compilation unit backed by an embedded
// WGSL source. Static slots never hot-reload.
func NewStaticShaderSlot(name string, shaderType ShaderType, file string) (*ShaderSlot, error) {
	source, err := staticShaders.FindString(file)
	if err != nil {
		return nil, fmt.Errorf("embedded shader %s: %s", file, err.Error())
	}
	return &ShaderSlot{
		name:       name,
		shaderType: shaderType,
		source:     source,
	}, nil
}

// ShaderSlot holds one stage's source locator, its latest compiled
// bytecode and the live GPU module. The slot is shared between the
// render thread and the compile worker, all mutable fields sit behind
// one RWMutex that is never held across a GPU call or the compiler.
type ShaderSlot struct {
	mu sync.RWMutex

	name       string
	shaderType ShaderType

	// exactly one of path/source is set
	path   string
	source string

	code      []byte
	module    vk.ShaderModule
	compiling bool
	dirty     bool

	jobs chan<- *ShaderSlot
}

// Name returns the slot name used in logs.
func (s *ShaderSlot) Name() string {
	return s.name
}

// Type implements interface
func (s *ShaderSlot) Type() ShaderType {
	return s.shaderType
}

// Path returns the watched source path, empty for embedded slots.
func (s *ShaderSlot) Path() string {
	return s.path
}

// SetHotReload connects the slot to the compile worker and enqueues the
// initial compilation. Calling it again is a no-op.
func (s *ShaderSlot) SetHotReload(jobs chan<- *ShaderSlot) {
	s.mu.Lock()
	if s.jobs != nil {
		s.mu.Unlock()
		return
	}
	s.jobs = jobs
	s.compiling = true
	s.mu.Unlock()

	jobs <- s
}

// MarkDirty flags that the source changed on disk. The watcher only
// marks dirtiness, compilation is triggered by the render thread's
// Reload polling.
func (s *ShaderSlot) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Dirty reports whether the source changed since the last compile job
// was started.
func (s *ShaderSlot) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Compiling reports whether a compile job is in flight for this slot.
func (s *ShaderSlot) Compiling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiling
}

// Reload enqueues a compile job when the slot is dirty, or always when
// forced. While a job is in flight the call is a no-op that reports
// true, the dirty bit left by a mid-compile change gets picked up by a
// later poll. The live module is destroyed here, on the render thread,
// decoupling its lifetime from the job. Returns whether a compilation
// is (still) pending.
func (s *ShaderSlot) Reload(dev vk.Device, forced bool) bool {
	s.mu.Lock()

	if s.compiling {
		s.mu.Unlock()
		return true
	}
	if !s.dirty && !forced {
		s.mu.Unlock()
		return false
	}
	if s.jobs == nil {
		s.mu.Unlock()
		return false
	}

	if s.module != vk.NullShaderModule {
		vk.DestroyShaderModule(dev, s.module, nil)
		s.module = vk.NullShaderModule
	}
	s.compiling = true

	select {
	case s.jobs <- s:
		s.mu.Unlock()
		return true
	default:
		// queue full, the dirty bit keeps the request alive
		s.compiling = false
		s.mu.Unlock()
		return false
	}
}

// compile runs on the worker. The dirty bit is cleared when the job
// starts, not when it was requested, so a change landing mid-compile
// re-marks the slot. On failure the previous bytecode stays in place.
func (s *ShaderSlot) compile() {
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()

	source, err := s.readSource()
	if err == nil {
		var code []byte
		code, err = naga.Compile(source)
		if err == nil {
			s.mu.Lock()
			s.code = code
			s.compiling = false
			s.mu.Unlock()
			log.WithField("shader", s.name).Debug("Shader compiled")
			return
		}
	}

	s.mu.Lock()
	s.compiling = false
	s.mu.Unlock()
	log.WithError(err).WithField("shader", s.name).Error("Shader compilation failed")
}

func (s *ShaderSlot) readSource() (string, error) {
	if s.path == "" {
		return s.source, nil
	}
	contents, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	return string(contents), nil
}

// Ensure synchronously compiles the source and loads a module when the
// slot never compiled before. Blocking is acceptable here, it only runs
// at startup.
func (s *ShaderSlot) Ensure(dev vk.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.code == nil {
		source, err := s.readSource()
		if err != nil {
			return err
		}
		code, err := naga.Compile(source)
		if err != nil {
			return fmt.Errorf("naga.Compile(%s): %s", s.name, err.Error())
		}
		s.code = code
	}
	return s.loadModuleLocked(dev)
}

// Module returns the live GPU module, creating it lazily from the
// latest bytecode. Module creation stays on the render thread, module
// handles are device objects like everything else the frame touches.
func (s *ShaderSlot) Module(dev vk.Device) (vk.ShaderModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.module != vk.NullShaderModule {
		return s.module, nil
	}
	if err := s.loadModuleLocked(dev); err != nil {
		return vk.NullShaderModule, err
	}
	return s.module, nil
}

func (s *ShaderSlot) loadModuleLocked(dev vk.Device) error {
	if s.code == nil {
		return errors.New("shader " + s.name + ": no bytecode compiled")
	}

	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(s.code)),
		PCode:    SliceUint32(s.code),
	}

	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(dev, &smci, nil, &module)); err != nil {
		return fmt.Errorf("vk.CreateShaderModule(%s): %s", s.name, err.Error())
	}
	s.module = module
	return nil
}

// HasModule reports whether a live module exists right now.
func (s *ShaderSlot) HasModule() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.module != vk.NullShaderModule
}

// ModuleReady reports whether a module either exists or can be created
// from compiled bytecode without waiting.
func (s *ShaderSlot) ModuleReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.module != vk.NullShaderModule || (s.code != nil && !s.compiling)
}

// Destroy releases the live module. The compiled bytecode stays so the
// module can be rebuilt, which happens on every pipeline recreation.
func (s *ShaderSlot) Destroy(dev vk.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.module != vk.NullShaderModule {
		vk.DestroyShaderModule(dev, s.module, nil)
		s.module = vk.NullShaderModule
	}
}

// NewShaderCompiler starts the single background compilation worker.
// It is the only goroutine allowed to invoke the WGSL compiler.
func NewShaderCompiler() *ShaderCompiler {
	c := &ShaderCompiler{
		jobs: make(chan *ShaderSlot, 64),
		done: make(chan struct{}),
	}
	go c.run()
	return c
}

// ShaderCompiler owns the compile job queue and its worker goroutine.
type ShaderCompiler struct {
	jobs chan *ShaderSlot
	done chan struct{}
}

// Jobs returns the send side of the work queue.
func (c *ShaderCompiler) Jobs() chan<- *ShaderSlot {
	return c.jobs
}

// run consumes jobs until Close. A failed compile never stops the
// worker, the error is logged on the slot.
func (c *ShaderCompiler) run() {
	for slot := range c.jobs {
		slot.compile()
	}
	close(c.done)
}

// Close drains the queue and joins the worker.
func (c *ShaderCompiler) Close() {
	close(c.jobs)
	<-c.done
}
