package model_test

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/alexthill/shaderpixel/core"
	"github.com/alexthill/shaderpixel/model"
)

const triangleOBJ = `# a single triangle
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
f 1/1 2/2 3/3
`

func TestLoadOBJTriangle(t *testing.T) {
	c := qt.New(t)

	mesh, err := model.LoadOBJ(strings.NewReader(triangleOBJ))
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Vertices, qt.HasLen, 3)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2})
	c.Assert(mesh.Vertices[1].Pos, qt.Equals, glm.Vec3{1, 0, 0})
	c.Assert(mesh.Vertices[2].Coords, qt.Equals, glm.Vec2{0, 1})
}

func TestLoadOBJQuadTriangulation(t *testing.T) {
	c := qt.New(t)

	mesh, err := model.LoadOBJ(strings.NewReader(`
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
`))
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Vertices, qt.HasLen, 4)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2, 0, 2, 3})
}

func TestLoadOBJNegativeIndices(t *testing.T) {
	c := qt.New(t)

	mesh, err := model.LoadOBJ(strings.NewReader(`
v 0 0 0
v 1 0 0
v 0 1 0
f -3 -2 -1
`))
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2})
}

func TestLoadOBJSharedCorners(t *testing.T) {
	c := qt.New(t)

	mesh, err := model.LoadOBJ(strings.NewReader(`
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3
f 3 4 1
`))
	c.Assert(err, qt.IsNil)

	// corners shared between faces reuse vertices
	c.Assert(mesh.Vertices, qt.HasLen, 4)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2, 2, 3, 0})
}

func TestLoadOBJMissingTexCoords(t *testing.T) {
	c := qt.New(t)

	mesh, err := model.LoadOBJ(strings.NewReader(`
v -0.5 -0.5 0
v 0.5 -0.5 0
v 0.5 0.5 0
f 1//1 2//2 3//3
`))
	c.Assert(err, qt.IsNil)

	// positions project onto texture space when no vt is referenced
	c.Assert(mesh.Vertices[0].Coords, qt.Equals, glm.Vec2{0, 0})
	c.Assert(mesh.Vertices[2].Coords, qt.Equals, glm.Vec2{1, 1})
}

func TestLoadOBJErrors(t *testing.T) {
	c := qt.New(t)

	_, err := model.LoadOBJ(strings.NewReader("v 0 0 0\n"))
	c.Assert(err, qt.ErrorMatches, "obj: no faces found")

	_, err = model.LoadOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n"))
	c.Assert(err, qt.ErrorMatches, `obj line 2: index 2 out of range`)

	_, err = model.LoadOBJ(strings.NewReader("v zero 0 0\n"))
	c.Assert(err, qt.ErrorMatches, `obj line 1: bad value "zero"`)

	_, err = model.LoadOBJ(strings.NewReader("f a b c\n"))
	c.Assert(err, qt.ErrorMatches, `obj line 1: bad face reference "a"`)
}

func TestNormalize(t *testing.T) {
	c := qt.New(t)

	mesh, err := model.LoadOBJ(strings.NewReader(`
v 2 0 0
v 6 0 0
v 6 2 0
v 2 2 0
f 1 2 3 4
`))
	c.Assert(err, qt.IsNil)
	mesh.Normalize()

	min, max := mesh.Bounds()
	for axis := 0; axis < 3; axis++ {
		c.Assert(min[axis] >= -0.501, qt.IsTrue)
		c.Assert(max[axis] <= 0.501, qt.IsTrue)
	}

	// the largest extent shrinks to exactly one
	extent := max.Sub(min)
	largest := extent[0]
	for axis := 1; axis < 3; axis++ {
		if extent[axis] > largest {
			largest = extent[axis]
		}
	}
	if largest < 0.999 || largest > 1.001 {
		c.Errorf("largest extent is %f, want 1", largest)
	}
}

func TestQuad(t *testing.T) {
	c := qt.New(t)

	quad := model.Quad()
	c.Assert(quad.Vertices, qt.HasLen, 4)
	c.Assert(quad.Indices, qt.HasLen, 6)

	data := quad.Data()
	c.Assert(data.Format, qt.Equals, core.VertexFormatColorCoords)
	c.Assert(data.VertexData, qt.HasLen, 4*8*4)
}

func TestCube(t *testing.T) {
	c := qt.New(t)

	cube := model.Cube()
	c.Assert(cube.Vertices, qt.HasLen, 8)
	c.Assert(cube.Indices, qt.HasLen, 36)

	min, max := cube.Bounds()
	c.Assert(min, qt.Equals, glm.Vec3{-0.5, -0.5, -0.5})
	c.Assert(max, qt.Equals, glm.Vec3{0.5, 0.5, 0.5})
}

func TestSkybox(t *testing.T) {
	c := qt.New(t)

	data := model.Skybox()
	c.Assert(data.Format, qt.Equals, core.VertexFormatSimple)
	c.Assert(data.Indices, qt.HasLen, 36)
	c.Assert(data.VertexData, qt.HasLen, 8*3*4)
}
