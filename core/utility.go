package core

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/image/draw"
)

const shaderSuffix = ".wgsl"

// loadShaderFilesFromDirectory gets the list of files that hold shader
// sources. It is important that the file name does not contain more than
// two dots, the first is always the name of the shader, the second is the
// stage, and the extension marks the file as WGSL source.
// All shader files will be loaded.
func loadShaderFilesFromDirectory(dir string) ([]string, []ShaderType, error) {
	var (
		shaders     []string
		shaderTypes []ShaderType
	)
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if strings.HasSuffix(f.Name(), shaderSuffix) {
			shader := strings.TrimSuffix(f.Name(), shaderSuffix)
			nodes := strings.Split(shader, ".")

			if len(nodes) != 2 {
				return nil
			}

			suffix := nodes[len(nodes)-1]
			switch suffix {
			case "frag":
				shaderTypes = append(shaderTypes, FragmentShaderType)
				shaders = append(shaders, path)
			case "vert":
				shaderTypes = append(shaderTypes, VertexShaderType)
				shaders = append(shaders, path)
			default:
				return nil
			}
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return shaders, shaderTypes, nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// SliceUint32 reslices bytes into a uint32, that is used
// to submit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, fmt.Sprintf("%s\x00", s))
	}
	return safe
}

// GetPixels transforms a given image into the right arrangement of pixels
// by drawing the decoded image onto a controlled RGBA canvas. Texture
// sampling addresses rows bottom-up, so the rows are flipped on the way.
func GetPixels(img image.Image) []uint8 {
	bounds := img.Bounds()
	newImg := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(newImg, newImg.Bounds(), img, bounds.Min, draw.Src)

	row := make([]uint8, newImg.Stride)
	for top, bottom := 0, newImg.Rect.Dy()-1; top < bottom; top, bottom = top+1, bottom-1 {
		topRow := newImg.Pix[top*newImg.Stride : (top+1)*newImg.Stride]
		bottomRow := newImg.Pix[bottom*newImg.Stride : (bottom+1)*newImg.Stride]
		copy(row, topRow)
		copy(topRow, bottomRow)
		copy(bottomRow, row)
	}
	return newImg.Pix
}
