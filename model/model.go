package model

import (
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/alexthill/shaderpixel/core"
)

// Mesh is a loaded model held in memory, ready for upload.
type Mesh struct {
	Vertices []core.VertexColorCoords
	Indices  []uint32
}

// Bounds returns the axis aligned extents of the mesh.
func (m *Mesh) Bounds() (min, max glm.Vec3) {
	if len(m.Vertices) == 0 {
		return glm.Vec3{}, glm.Vec3{}
	}
	min = m.Vertices[0].Pos
	max = m.Vertices[0].Pos
	for _, vertex := range m.Vertices[1:] {
		for axis := 0; axis < 3; axis++ {
			if vertex.Pos[axis] < min[axis] {
				min[axis] = vertex.Pos[axis]
			}
			if vertex.Pos[axis] > max[axis] {
				max[axis] = vertex.Pos[axis]
			}
		}
	}
	return min, max
}

// Normalize centers the mesh on the origin and scales it so the largest
// extent becomes one, then turns it a quarter turn to face the camera.
func (m *Mesh) Normalize() {
	min, max := m.Bounds()

	center := min.Add(max).Mul(0.5)
	extent := max.Sub(min)
	largest := extent[0]
	if extent[1] > largest {
		largest = extent[1]
	}
	if extent[2] > largest {
		largest = extent[2]
	}
	scale := float32(1)
	if largest > 0 {
		scale = 1 / largest
	}

	rotation := glm.Rotate3DY(glm.DegToRad(-90))
	for idx := range m.Vertices {
		pos := m.Vertices[idx].Pos.Sub(center).Mul(scale)
		m.Vertices[idx].Pos = rotation.Mul3x1(pos)
	}
}

// Data packs the mesh for geometry upload.
func (m *Mesh) Data() core.MeshData {
	return core.MeshData{
		VertexData: core.VertexColorCoordsBytes(m.Vertices),
		Indices:    m.Indices,
		Format:     core.VertexFormatColorCoords,
	}
}

// Quad builds a unit panel in the XY plane facing +Z, used as the
// canvas for flat shader art.
func Quad() *Mesh {
	white := glm.Vec3{1, 1, 1}
	return &Mesh{
		Vertices: []core.VertexColorCoords{
			{Pos: glm.Vec3{-0.5, -0.5, 0}, Color: white, Coords: glm.Vec2{0, 0}},
			{Pos: glm.Vec3{0.5, -0.5, 0}, Color: white, Coords: glm.Vec2{1, 0}},
			{Pos: glm.Vec3{0.5, 0.5, 0}, Color: white, Coords: glm.Vec2{1, 1}},
			{Pos: glm.Vec3{-0.5, 0.5, 0}, Color: white, Coords: glm.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// Cube builds a unit cube with outward faces, the canvas for volumetric
// shader art.
func Cube() *Mesh {
	white := glm.Vec3{1, 1, 1}
	corners := []glm.Vec3{
		{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5},
		{0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5},
		{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5},
		{0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
	}

	mesh := &Mesh{}
	for _, corner := range corners {
		mesh.Vertices = append(mesh.Vertices, core.VertexColorCoords{
			Pos:    corner,
			Color:  white,
			Coords: glm.Vec2{corner[0] + 0.5, corner[1] + 0.5},
		})
	}
	mesh.Indices = []uint32{
		4, 5, 6, 6, 7, 4, // front
		1, 0, 3, 3, 2, 1, // back
		0, 4, 7, 7, 3, 0, // left
		5, 1, 2, 2, 6, 5, // right
		3, 7, 6, 6, 2, 3, // top
		0, 1, 5, 5, 4, 0, // bottom
	}
	return mesh
}

// Skybox builds the position-only cube drawn around the camera. The
// winding matches front-face culling so the inside is visible.
func Skybox() core.MeshData {
	cube := Cube()
	vertices := make([]core.VertexSimple, len(cube.Vertices))
	for idx, vertex := range cube.Vertices {
		vertices[idx] = core.VertexSimple{Pos: vertex.Pos}
	}
	return core.MeshData{
		VertexData: core.VertexSimpleBytes(vertices),
		Indices:    cube.Indices,
		Format:     core.VertexFormatSimple,
	}
}
