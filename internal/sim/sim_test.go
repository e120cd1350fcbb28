package sim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestRoom_Limit(t *testing.T) {
	assert.Equal(t, 45.0, DefaultRoom().Limit())
}

func TestAdvance_MovesByVelocity(t *testing.T) {
	s := NewState(mgl64.Vec3{1, 2, 1.5})
	s = Advance(DefaultRoom(), s)

	assert.Equal(t, mgl64.Vec3{1, 2, 1.5}, s.Position)
	assert.Equal(t, mgl64.Vec3{1, 2, 1.5}, s.Velocity)
}

func TestAdvance_ReflectsPerAxis(t *testing.T) {
	tests := []struct {
		name     string
		position mgl64.Vec3
		velocity mgl64.Vec3
		wantVel  mgl64.Vec3
	}{
		{"x wall", mgl64.Vec3{44, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{-1, 1, 1}},
		{"negative y wall", mgl64.Vec3{0, -44, 0}, mgl64.Vec3{1, -2, 1}, mgl64.Vec3{1, 2, 1}},
		{"z overshoot", mgl64.Vec3{0, 0, 44}, mgl64.Vec3{0, 0, 1.5}, mgl64.Vec3{0, 0, -1.5}},
		{"corner", mgl64.Vec3{44, 44, -44}, mgl64.Vec3{1, 1, -1}, mgl64.Vec3{-1, -1, 1}},
		{"inside", mgl64.Vec3{10, 10, 10}, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{Position: tt.position, Velocity: tt.velocity}
			got := Advance(DefaultRoom(), s)
			assert.Equal(t, tt.wantVel, got.Velocity)
			assert.Equal(t, tt.position.Add(tt.velocity), got.Position)
		})
	}
}

func TestAdvance_StaysWithinOneStepOfLimit(t *testing.T) {
	room := DefaultRoom()
	velocities := []mgl64.Vec3{
		{1, 2, 1.5},
		{3.7, -0.3, 2.2},
		{-4.9, 4.9, 0.01},
	}

	for _, v := range velocities {
		s := NewState(v)
		for i := 0; i < 20000; i++ {
			s = Advance(room, s)
			for axis := 0; axis < 3; axis++ {
				bound := room.Limit() + math.Abs(v[axis])
				if math.Abs(s.Position[axis]) > bound+1e-9 {
					t.Fatalf("velocity %v frame %d axis %d: |%f| exceeds %f", v, i, axis, s.Position[axis], bound)
				}
			}
		}
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	s := State{Position: mgl64.Vec3{44.5, 0, 0}, Velocity: mgl64.Vec3{1, 0, 0}}
	_ = Advance(DefaultRoom(), s)
	assert.Equal(t, mgl64.Vec3{44.5, 0, 0}, s.Position)
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, s.Velocity)
}

func TestFormatPosition(t *testing.T) {
	got := FormatPosition(ToPosition(mgl64.Vec3{1, -2.346, 10.004}))
	assert.Equal(t, "x: 1.00, y: -2.35, z: 10.00", got)
}
