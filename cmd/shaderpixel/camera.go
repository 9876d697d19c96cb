package main

import (
	"math"
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"
)

const (
	moveSpeed        = 2.5 // units per second
	mouseSensitivity = 0.15
	pitchLimit       = 89.0
)

func newCamera() *camera {
	return &camera{
		position: glm.Vec3{0, 0, 3},
		yaw:      -90,
	}
}

// camera holds a free-flight first person camera. The event loop moves
// it while the draw loop reads the view matrix, so it locks.
type camera struct {
	mu sync.Mutex

	position   glm.Vec3
	yaw, pitch float32

	// scrollLines scales movement speed exponentially, one wheel line
	// per step.
	scrollLines float32
}

// Reset puts the camera back at its starting pose and speed.
func (c *camera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.position = glm.Vec3{0, 0, 3}
	c.yaw = -90
	c.pitch = 0
	c.scrollLines = 0
}

// Scroll accumulates mouse wheel lines into the speed scale.
func (c *camera) Scroll(lines float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrollLines += lines
}

// Speed returns the current movement speed in units per second.
func (c *camera) Speed() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return moveSpeed * float32(math.Pow(1.25, float64(c.scrollLines)))
}

func (c *camera) direction() glm.Vec3 {
	yaw := float64(glm.DegToRad(c.yaw))
	pitch := float64(glm.DegToRad(c.pitch))
	return glm.Vec3{
		float32(math.Cos(yaw) * math.Cos(pitch)),
		float32(math.Sin(pitch)),
		float32(math.Sin(yaw) * math.Cos(pitch)),
	}.Normalize()
}

// Move translates the camera in its own reference frame.
func (c *camera) Move(forward, right, up float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.direction()
	sideways := dir.Cross(glm.Vec3{0, 1, 0}).Normalize()
	c.position = c.position.
		Add(dir.Mul(forward)).
		Add(sideways.Mul(right)).
		Add(glm.Vec3{0, up, 0})
}

// Rotate applies a relative mouse motion to yaw and pitch.
func (c *camera) Rotate(dx, dy float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.yaw += dx * mouseSensitivity
	c.pitch -= dy * mouseSensitivity
	if c.pitch > pitchLimit {
		c.pitch = pitchLimit
	}
	if c.pitch < -pitchLimit {
		c.pitch = -pitchLimit
	}
}

// View returns the current look-at matrix.
func (c *camera) View() glm.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.direction()
	return glm.LookAtV(c.position, c.position.Add(dir), glm.Vec3{0, 1, 0})
}
