package core

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestSliceUint32(t *testing.T) {
	got := SliceUint32([]byte{0x01, 0x00, 0x00, 0x00, 0x78, 0x56, 0x34, 0x12})
	if len(got) != 2 {
		t.Fatalf("got %d words, want 2", len(got))
	}
	if got[0] != 1 || got[1] != 0x12345678 {
		t.Errorf("got %#x, want [0x1 0x12345678]", got)
	}
}

func TestGetPixelsFlipsRows(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(0, 1, color.RGBA{B: 255, A: 255})

	pix := GetPixels(img)
	if len(pix) != 8 {
		t.Fatalf("got %d bytes, want 8", len(pix))
	}
	if pix[2] != 255 {
		t.Error("bottom row did not move to the top")
	}
	if pix[4] != 255 {
		t.Error("top row did not move to the bottom")
	}
}

func TestGetPixelsConvertsToRGBA(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 128})

	pix := GetPixels(img)
	if len(pix) != 8 {
		t.Fatalf("got %d bytes, want 8", len(pix))
	}
	if pix[3] != 255 {
		t.Error("alpha channel not opaque after conversion")
	}
}

func TestLoadShaderFilesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"mandelbrot.frag.wgsl",
		"canvas.vert.wgsl",
		"notes.txt",
		"single.wgsl",
		"too.many.frag.wgsl",
		"mystery.geom.wgsl",
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("fn main() {}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	shaders, types, err := loadShaderFilesFromDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(shaders) != 2 || len(types) != 2 {
		t.Fatalf("got %d shaders, want 2: %v", len(shaders), shaders)
	}

	byName := make(map[string]ShaderType)
	for i, path := range shaders {
		byName[filepath.Base(path)] = types[i]
	}
	if byName["mandelbrot.frag.wgsl"] != FragmentShaderType {
		t.Error("fragment stage not recognized")
	}
	if byName["canvas.vert.wgsl"] != VertexShaderType {
		t.Error("vertex stage not recognized")
	}
}

var sliced []uint32

func benchmarkSliceUint32(size int, b *testing.B) {
	data := make([]byte, size)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		sliced = SliceUint32(data)
	}
}

func BenchmarkSliceUint32Small(b *testing.B)  { benchmarkSliceUint32(1<<10, b) }
func BenchmarkSliceUint32Medium(b *testing.B) { benchmarkSliceUint32(1<<16, b) }
func BenchmarkSliceUint32Big(b *testing.B)    { benchmarkSliceUint32(1<<22, b) }
