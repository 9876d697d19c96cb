package main

import (
	"flag"
	"image"
	"image/color"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"sync/atomic"
	"unsafe"

	_ "image/jpeg"
	_ "image/png"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/alexthill/shaderpixel/core"
)

func init() {
	runtime.LockOSThread()
}

// Essential globals
var (
	vkInstance core.Instance
	vkRenderer core.Renderer
	sdlWindow  *sdl.Window
	sdlSurface unsafe.Pointer

	frameCounter int64

	// pendingResize packs the latest window size as width<<32|height,
	// zero when no resize is outstanding.
	pendingResize atomic.Int64
)

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	verbose      = flag.Bool("v", false, "Verbose logging")
)

var configuration = core.Configuration{
	Time: core.TimeConfiguration{
		FramesPerSecond: 120,
		EventPollDelay:  10,
	},
	Renderer: core.RendererConfiguration{
		ScreenWidth:   1280,
		ScreenHeight:  720,
		SwapchainSize: 3,
		DeviceExtensions: []string{
			"VK_KHR_swapchain",
		},
		ShaderArtDirectory: "./shaders",
		AssetDirectory:     "./assets",
		Multisampling:      true,
	},
}

func newWindow() *sdl.Window {
	window, err := sdl.CreateWindow("ShaderPixel",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(configuration.Renderer.ScreenWidth),
		int32(configuration.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		panic(err)
	}
	return window
}

func main() {
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("No .env file loaded")
	}
	configuration = core.ConfigurationFromEnv(configuration)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			panic(err)
		}
		if err := trace.Start(f); err != nil {
			panic(err)
		}
		defer trace.Stop()
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow = newWindow()
	defer sdlWindow.Destroy()

	{
		cfg := core.InstanceConfiguration{
			DebugMode:  *debug,
			Extensions: sdlWindow.VulkanGetInstanceExtensions(),
			Layers:     []string{},
		}

		if vi, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg); err != nil {
			panic(err)
		} else {
			vkInstance = vi
		}
		defer vkInstance.Destroy()
	}

	log.WithField("extensions", vkInstance.Extensions()).Debug("Vulkan instance ready")
	for _, info := range vkInstance.PhysicalDevicesInfo() {
		log.WithFields(info.Summary()).Debug("Physical device")
	}

	if srf, err := sdlWindow.VulkanCreateSurface(vkInstance.Inner()); err != nil {
		panic(err)
	} else {
		sdlSurface = srf
		vkInstance.SetSurface(sdlSurface)
	}

	assets, err := openAssets(configuration.Renderer.AssetDirectory)
	if err != nil {
		panic(err)
	}
	defer assets.Close()

	scene := buildScene(assets, configuration.Renderer.ShaderArtDirectory)

	var rendererErr error
	vkRenderer, rendererErr = core.NewVulkanRenderer(vkInstance, configuration.Renderer, scene)
	if rendererErr != nil {
		panic(rendererErr)
	}

	if err := vkRenderer.Initialise(); err != nil {
		panic(err)
	}
	defer vkRenderer.Destroy()

	runLoops(assets)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			panic(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			panic(err)
		}
	}
}

// uniformState is everything the event loop changes and the draw loop
// consumes each frame.
type uniformState struct {
	mu sync.Mutex

	textureWeight float32
	weightTarget  float32
}

func runLoops(assets *assetSource) {
	timeService := core.NewTime(configuration.Time)
	cam := newCamera()
	state := &uniformState{
		textureWeight: 1,
		weightTarget:  1,
	}

	done := make(chan struct{})
	quit := make(chan struct{}, 1)

	programSync := sync.WaitGroup{}

	/* Renderer loop */
	programSync.Add(1)
	go func() {
		defer programSync.Done()
	DrawLoop:
		for {
			select {
			case <-done:
				break DrawLoop
			case <-timeService.FpsTicker().C:
				if !handlePendingResize() {
					continue DrawLoop
				}

				state.mu.Lock()
				weight := stepWeight(state)
				state.mu.Unlock()

				vkRenderer.SetUniformInputs(glm.Ident4(), cam.View(), weight)

				outOfDate, err := vkRenderer.DrawFrame(timeService.Elapsed())
				if err != nil {
					log.WithError(err).Error("Draw failed")
					quit <- struct{}{}
					break DrawLoop
				}
				if outOfDate {
					width, height := sdlWindow.VulkanGetDrawableSize()
					pendingResize.Store(int64(width)<<32 | int64(height))
				}
				atomic.AddInt64(&frameCounter, 1)
			}
		}
	}()

	/* Event loop */
	keysDown := map[sdl.Keycode]bool{}
	mouseGrabbed := false
	fullscreen := false

EventLoop:
	for {
		select {
		case <-quit:
			break EventLoop
		case <-timeService.EventTicker().C:
			moveCamera(cam, keysDown, float32(configuration.Time.EventPollDelay)/1000)

			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.QuitEvent:
					break EventLoop
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						pendingResize.Store(int64(et.Data1)<<32 | int64(et.Data2))
					}
				case *sdl.MouseMotionEvent:
					if mouseGrabbed {
						cam.Rotate(float32(et.XRel), float32(et.YRel))
					}
				case *sdl.MouseWheelEvent:
					cam.Scroll(float32(et.Y))
				case *sdl.KeyboardEvent:
					if et.Type == sdl.KEYUP {
						delete(keysDown, et.Keysym.Sym)
						continue
					}
					if et.Repeat > 0 {
						continue
					}
					switch et.Keysym.Sym {
					case sdl.K_ESCAPE:
						break EventLoop
					case sdl.K_LCTRL:
						mouseGrabbed = !mouseGrabbed
						sdl.SetRelativeMouseMode(mouseGrabbed)
					case sdl.K_RCTRL:
						log.Info("Forcing shader reload")
						vkRenderer.ReloadShaders()
					case sdl.K_b:
						vkRenderer.TogglePipeline(core.PipelineSkybox)
					case sdl.K_f:
						if fullscreen {
							sdlWindow.SetFullscreen(0)
						} else {
							sdlWindow.SetFullscreen(sdl.WINDOW_FULLSCREEN_DESKTOP)
						}
						fullscreen = !fullscreen
					case sdl.K_l:
						cam.Reset()
					case sdl.K_t:
						state.mu.Lock()
						state.weightTarget = 1 - state.weightTarget
						state.mu.Unlock()
					case sdl.K_i:
						if img, name, err := assets.NextTexture(); err != nil {
							log.WithError(err).Warn("No new texture to load")
						} else {
							vkRenderer.LoadNewTexture(img)
							// fade the fresh texture in if it was faded out
							state.mu.Lock()
							state.weightTarget = 1
							state.mu.Unlock()
							log.WithField("texture", name).Info("Texture swap requested")
						}
					default:
						keysDown[et.Keysym.Sym] = true
					}
				}
			}
		}
	}

	close(done)
	programSync.Wait()
	log.WithField("frames", atomic.LoadInt64(&frameCounter)).Info("Event loop exited")
}

// stepWeight eases the texture weight toward its target. Held under the
// state lock.
func stepWeight(state *uniformState) float32 {
	const fadeStep = 0.02
	switch {
	case state.textureWeight < state.weightTarget-fadeStep:
		state.textureWeight += fadeStep
	case state.textureWeight > state.weightTarget+fadeStep:
		state.textureWeight -= fadeStep
	default:
		state.textureWeight = state.weightTarget
	}
	return state.textureWeight
}

// handlePendingResize applies the newest window size before the next
// frame. Returns false while the window is minimized.
func handlePendingResize() bool {
	packed := pendingResize.Swap(0)
	if packed == 0 {
		return true
	}
	width := uint32(packed >> 32)
	height := uint32(packed & 0xffffffff)
	if width == 0 || height == 0 {
		// Minimized, keep the resize pending and skip the frame.
		pendingResize.CompareAndSwap(0, packed)
		return false
	}
	if err := vkRenderer.Resize(width, height); err != nil {
		log.WithError(err).Error("Swapchain recreation failed")
	}
	return true
}

func moveCamera(cam *camera, keysDown map[sdl.Keycode]bool, dt float32) {
	step := cam.Speed() * dt
	var forward, right, up float32
	if keysDown[sdl.K_w] {
		forward += step
	}
	if keysDown[sdl.K_s] {
		forward -= step
	}
	if keysDown[sdl.K_d] {
		right += step
	}
	if keysDown[sdl.K_a] {
		right -= step
	}
	if keysDown[sdl.K_SPACE] {
		up += step
	}
	if keysDown[sdl.K_LSHIFT] {
		up -= step
	}
	if forward != 0 || right != 0 || up != 0 {
		cam.Move(forward, right, up)
	}
}

// placeholderImage is used whenever an asset is missing, so the program
// still comes up with an empty asset directory.
func placeholderImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			px := c
			if (x/8+y/8)%2 == 0 {
				px = color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: 255}
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img
}
