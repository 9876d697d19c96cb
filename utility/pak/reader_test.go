package pak_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/alexthill/shaderpixel/utility/pak"
)

func TestOpenMmap(t *testing.T) {
	builder := pak.NewBuilder(pak.Header{
		Author:      "shaderpixel",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err := builder.Add("shaders/mandelbrot.frag.wgsl", bytes.NewReader([]byte(testString1))); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "assets.pak")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := builder.WriteTo(file); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := pak.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	contents, err := ar.ReadAll("shaders/mandelbrot.frag.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != testString1 {
		t.Error("mmap read does not match written contents")
	}
}
