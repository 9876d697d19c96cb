package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := png.Encode(file, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
}

func TestNextTextureCyclesFromFirst(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "a.png"))
	if err := os.MkdirAll(filepath.Join(dir, "skybox"), 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "skybox", "front.png"))

	assets, err := openAssets(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer assets.Close()

	for i, want := range []string{"a.png", "b.png", "a.png"} {
		_, name, err := assets.NextTexture()
		if err != nil {
			t.Fatal(err)
		}
		if name != want {
			t.Errorf("call %d returned %s, want %s", i, name, want)
		}
	}
}

func TestNextTextureWithoutImages(t *testing.T) {
	assets, err := openAssets(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer assets.Close()

	if _, _, err := assets.NextTexture(); err == nil {
		t.Error("expected an error with no image assets")
	}
}
