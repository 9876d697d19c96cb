package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/alexthill/shaderpixel/core"
)

// LoadOBJFile reads a Wavefront OBJ model from disk.
func LoadOBJFile(path string) (*Mesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadOBJ(file)
}

// LoadOBJ parses a Wavefront OBJ model. Positions and texture
// coordinates are kept, faces with more than three corners are
// triangulated as a fan. A face corner missing texture coordinates gets
// them projected from its position.
func LoadOBJ(r io.Reader) (*Mesh, error) {
	var (
		positions []glm.Vec3
		texCoords []glm.Vec2
	)

	mesh := &Mesh{}
	seen := make(map[[2]int]uint32)

	corner := func(posIdx, texIdx int) (uint32, error) {
		posIdx, err := resolveIndex(posIdx, len(positions))
		if err != nil {
			return 0, err
		}
		hasTex := texIdx != 0
		if hasTex {
			if texIdx, err = resolveIndex(texIdx, len(texCoords)); err != nil {
				return 0, err
			}
		} else {
			texIdx = -1
		}

		key := [2]int{posIdx, texIdx}
		if idx, ok := seen[key]; ok {
			return idx, nil
		}

		pos := positions[posIdx]
		coords := glm.Vec2{pos[0] + 0.5, pos[1] + 0.5}
		if hasTex {
			coords = texCoords[texIdx]
		}

		idx := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, core.VertexColorCoords{
			Pos:    pos,
			Color:  glm.Vec3{1, 1, 1},
			Coords: coords,
		})
		seen[key] = idx
		return idx, nil
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			vec, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %s", lineNo, err.Error())
			}
			positions = append(positions, glm.Vec3{vec[0], vec[1], vec[2]})
		case "vt":
			vec, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %s", lineNo, err.Error())
			}
			texCoords = append(texCoords, glm.Vec2{vec[0], vec[1]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: face with %d corners", lineNo, len(fields)-1)
			}
			var face []uint32
			for _, ref := range fields[1:] {
				posIdx, texIdx, err := parseFaceRef(ref)
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %s", lineNo, err.Error())
				}
				idx, err := corner(posIdx, texIdx)
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %s", lineNo, err.Error())
				}
				face = append(face, idx)
			}
			for i := 2; i < len(face); i++ {
				mesh.Indices = append(mesh.Indices, face[0], face[i-1], face[i])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(mesh.Indices) == 0 {
		return nil, fmt.Errorf("obj: no faces found")
	}
	return mesh, nil
}

// resolveIndex turns a one-based, possibly negative OBJ index into a
// zero-based slice index.
func resolveIndex(idx, count int) (int, error) {
	if idx < 0 {
		idx = count + idx + 1
	}
	if idx < 1 || idx > count {
		return 0, fmt.Errorf("index %d out of range", idx)
	}
	return idx - 1, nil
}

// parseFaceRef splits a face corner reference of the form "v", "v/vt",
// "v//vn" or "v/vt/vn". A zero texture index means none was given.
func parseFaceRef(ref string) (int, int, error) {
	parts := strings.Split(ref, "/")
	posIdx, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad face reference %q", ref)
	}

	texIdx := 0
	if len(parts) > 1 && parts[1] != "" {
		if texIdx, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, fmt.Errorf("bad face reference %q", ref)
		}
	}
	return posIdx, texIdx, nil
}

func parseFloats(fields []string, want int) ([]float32, error) {
	if len(fields) < want {
		return nil, fmt.Errorf("got %d values, want %d", len(fields), want)
	}
	out := make([]float32, want)
	for i := 0; i < want; i++ {
		val, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", fields[i])
		}
		out[i] = float32(val)
	}
	return out, nil
}
