// Package sim holds the bouncing-ball simulation: a pure per-frame advance
// function over an explicit State, a run/pause capture machine around it, and
// a frame clock that drives the machine.
package sim

import (
	"fmt"
	"math"

	"github.com/OCAP2/bouncelog/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Defaults match the room the web client renders.
const (
	DefaultRoomSize   = 100.0
	DefaultBallRadius = 5.0
)

// DefaultVelocity is the per-frame displacement the ball starts with.
var DefaultVelocity = mgl64.Vec3{1, 2, 1.5}

// Room is the cube the ball bounces in, centered on the origin.
type Room struct {
	HalfSize   float64
	BallRadius float64
}

// DefaultRoom returns the 100-unit cube with a radius 5 ball.
func DefaultRoom() Room {
	return Room{HalfSize: DefaultRoomSize / 2, BallRadius: DefaultBallRadius}
}

// Limit is the largest absolute coordinate the ball center may reach before
// its velocity on that axis is reflected.
func (r Room) Limit() float64 {
	return r.HalfSize - r.BallRadius
}

// State is the transient simulation state of one client session.
type State struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Phase    Phase

	// LastCaptured is set on every RUNNING -> PAUSED transition.
	LastCaptured *core.Position3D
}

// NewState returns a running state at the origin with the given velocity.
func NewState(velocity mgl64.Vec3) State {
	return State{Velocity: velocity, Phase: PhaseRunning}
}

// Advance moves the ball one frame and reflects velocity on every axis whose
// coordinate reached the room limit. Displacement is per frame, not time
// scaled, and there is no sub-stepping: a single frame may overshoot the limit
// by up to one velocity step before the reflected velocity brings it back.
func Advance(room Room, s State) State {
	s.Position = s.Position.Add(s.Velocity)

	limit := room.Limit()
	for axis := 0; axis < 3; axis++ {
		if math.Abs(s.Position[axis]) >= limit {
			s.Velocity[axis] = -s.Velocity[axis]
		}
	}
	return s
}

// ToPosition converts a simulation vector to a core position.
func ToPosition(v mgl64.Vec3) core.Position3D {
	return core.Position3D{X: v.X(), Y: v.Y(), Z: v.Z()}
}

// FormatPosition renders the textual position readout.
func FormatPosition(p core.Position3D) string {
	return fmt.Sprintf("x: %.2f, y: %.2f, z: %.2f", p.X, p.Y, p.Z)
}
