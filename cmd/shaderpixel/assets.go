package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"

	"github.com/alexthill/shaderpixel/core"
	"github.com/alexthill/shaderpixel/model"
	"github.com/alexthill/shaderpixel/utility/pak"
)

// openAssets reads assets either from a loose directory or, when the
// path ends in .pak, from a memory mapped archive.
func openAssets(path string) (*assetSource, error) {
	if strings.HasSuffix(path, ".pak") {
		reader, err := mmap.Open(path)
		if err != nil {
			return nil, err
		}
		archive, err := pak.Open(reader)
		if err != nil {
			reader.Close()
			return nil, err
		}
		return &assetSource{archive: archive, closer: reader}, nil
	}
	return &assetSource{dir: path}, nil
}

type assetSource struct {
	archive *pak.Archive
	closer  io.Closer
	dir     string

	mu         sync.Mutex
	textureIdx int
}

func (a *assetSource) ReadAll(name string) ([]byte, error) {
	if a.archive != nil {
		return a.archive.ReadAll(name)
	}
	return os.ReadFile(filepath.Join(a.dir, name))
}

// Names lists every asset, with paths relative to the source root.
func (a *assetSource) Names() []string {
	if a.archive != nil {
		return a.archive.Names()
	}

	var names []string
	filepath.Walk(a.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(a.dir, path); err == nil {
			names = append(names, rel)
		}
		return nil
	})
	return names
}

func (a *assetSource) Close() {
	if a.closer != nil {
		a.closer.Close()
	}
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// NextTexture cycles through the image assets outside the skybox
// directory, decoding the next one on every call.
func (a *assetSource) NextTexture() (image.Image, string, error) {
	var candidates []string
	for _, name := range a.Names() {
		if isImageName(name) && !strings.HasPrefix(name, "skybox") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, "", errors.New("no image assets found")
	}
	sort.Strings(candidates)

	a.mu.Lock()
	if a.textureIdx >= len(candidates) {
		a.textureIdx = 0
	}
	name := candidates[a.textureIdx]
	a.textureIdx++
	a.mu.Unlock()

	img, err := a.decodeImage(name)
	if err != nil {
		return nil, "", err
	}
	return img, name, nil
}

func (a *assetSource) decodeImage(name string) (image.Image, error) {
	data, err := a.ReadAll(name)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// buildScene assembles the renderer inputs from the asset source.
// Missing assets degrade to built-in primitives and checkerboards
// instead of failing.
func buildScene(assets *assetSource, shaderDir string) core.Scene {
	scene := core.Scene{
		QuadMesh:   model.Quad().Data(),
		CubeMesh:   model.Cube().Data(),
		SkyboxMesh: model.Skybox(),
		ArtShaders: galleryArtShaders(shaderDir),
	}

	mainMesh := model.Cube()
	if data, err := assets.ReadAll("suzanne.obj"); err != nil {
		log.WithError(err).Warn("Model asset missing, using a cube")
	} else if mesh, err := model.LoadOBJ(bytes.NewReader(data)); err != nil {
		log.WithError(err).Warn("Model failed to parse, using a cube")
	} else {
		mainMesh = mesh
	}
	mainMesh.Normalize()
	scene.MainMesh = mainMesh.Data()

	if img, err := assets.decodeImage("texture.png"); err != nil {
		log.WithError(err).Warn("Texture asset missing, using a checkerboard")
		scene.MainTexture = placeholderImage(color.RGBA{R: 200, G: 160, B: 60, A: 255})
	} else {
		scene.MainTexture = img
	}

	faces := [...]string{"right", "left", "top", "bottom", "front", "back"}
	fallbacks := [...]color.RGBA{
		{R: 120, G: 60, B: 60, A: 255},
		{R: 60, G: 120, B: 60, A: 255},
		{R: 60, G: 60, B: 120, A: 255},
		{R: 120, G: 120, B: 60, A: 255},
		{R: 120, G: 60, B: 120, A: 255},
		{R: 60, G: 120, B: 120, A: 255},
	}
	for idx, face := range faces {
		img, err := assets.decodeImage(filepath.Join("skybox", face+".png"))
		if err != nil {
			log.WithField("face", face).Debug("Skybox face missing, using a flat color")
			img = placeholderImage(fallbacks[idx])
		}
		scene.SkyboxFaces[idx] = img
	}

	return scene
}

// galleryArtShaders places the known shader art pieces on a carousel
// around the origin, each panel facing inward. Pieces whose source file
// is missing are dropped, the renderer picks up any extra files in the
// shader directory by itself.
func galleryArtShaders(dir string) []core.ArtShader {
	known := []core.ArtShader{
		{Name: "mandelbrot", FragmentPath: filepath.Join(dir, "mandelbrot.frag.wgsl")},
		{Name: "plasma", FragmentPath: filepath.Join(dir, "plasma.frag.wgsl")},
		{Name: "raymarch", FragmentPath: filepath.Join(dir, "raymarch.frag.wgsl"), Is3D: true},
	}

	var arts []core.ArtShader
	for _, art := range known {
		if _, err := os.Stat(art.FragmentPath); err != nil {
			log.WithField("shader", art.Name).Debug("Art shader source missing")
			continue
		}
		arts = append(arts, art)
	}

	const radius = 4
	for idx := range arts {
		angle := float32(idx) * 2 * math.Pi / float32(len(arts))
		arts[idx].Model = glm.HomogRotate3DY(angle).
			Mul4(glm.Translate3D(0, 0, -radius)).
			Mul4(glm.Scale3D(2, 2, 2))
	}
	return arts
}
