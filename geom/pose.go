package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Scene axes: +Y is up and an unrotated agent looks down -Z.
var (
	Up      = mgl64.Vec3{0, 1, 0}
	Forward = mgl64.Vec3{0, 0, -1}
)

// Pose is the agent's position and unit orientation in world space.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// NewPose returns a pose at position with the identity orientation.
func NewPose(position mgl64.Vec3) Pose {
	return Pose{
		Position:    position,
		Orientation: mgl64.QuatIdent(),
	}
}

// Heading is the forward vector of the pose in world space.
func (p Pose) Heading() mgl64.Vec3 {
	return p.Orientation.Rotate(Forward)
}

// Yaw returns the heading angle about +Y in degrees, 0 facing -Z, positive turning left.
func (p Pose) Yaw() float64 {
	return YawOf(p.Orientation)
}

func (p Pose) String() string {
	return fmt.Sprintf("pos=(%.3f, %.3f, %.3f) yaw=%.1f°",
		p.Position.X(), p.Position.Y(), p.Position.Z(), p.Yaw())
}

// Bounds is the axis-aligned extent of a scene.
type Bounds struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Width is the extent along X.
func (b Bounds) Width() float64 { return b.Max.X() - b.Min.X() }

// Depth is the extent along Z.
func (b Bounds) Depth() float64 { return b.Max.Z() - b.Min.Z() }

// Center returns the midpoint of the bounds.
func (b Bounds) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// ContainsXZ reports whether (x, z) lies inside the horizontal footprint.
func (b Bounds) ContainsXZ(x, z float64) bool {
	return x >= b.Min.X() && x <= b.Max.X() && z >= b.Min.Z() && z <= b.Max.Z()
}

// Validate rejects bounds with zero or negative horizontal extent.
func (b Bounds) Validate() error {
	if !(b.Width() > 0) || !(b.Depth() > 0) {
		return fmt.Errorf("degenerate scene bounds: min=%v max=%v", b.Min, b.Max)
	}
	return nil
}

// YawQuat is a rotation of deg degrees about the vertical axis.
func YawQuat(deg float64) mgl64.Quat {
	return mgl64.QuatRotate(mgl64.DegToRad(deg), Up)
}

// Compose left-multiplies rot onto q and renormalizes the result.
func Compose(rot, q mgl64.Quat) mgl64.Quat {
	return rot.Mul(q).Normalize()
}

// Slerp interpolates along the shorter arc between a and b.
func Slerp(a, b mgl64.Quat, t float64) mgl64.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	if t <= 0 {
		return a.Normalize()
	}
	if t >= 1 {
		return b.Normalize()
	}
	return mgl64.QuatSlerp(a, b, t).Normalize()
}

// AngleBetween returns the rotation angle in degrees separating a and b.
func AngleBetween(a, b mgl64.Quat) float64 {
	d := math.Abs(a.Normalize().Dot(b.Normalize()))
	if d > 1 {
		d = 1
	}
	return mgl64.RadToDeg(2 * math.Acos(d))
}

// YawOf returns the heading angle of q in degrees.
func YawOf(q mgl64.Quat) float64 {
	h := q.Rotate(Forward)
	return mgl64.RadToDeg(math.Atan2(-h.X(), -h.Z()))
}

// FacingQuat returns the yaw-only orientation looking along (dx, dz).
// ok is false when the direction is too short to define a heading.
func FacingQuat(dx, dz float64) (q mgl64.Quat, ok bool) {
	if math.Hypot(dx, dz) < 1e-6 {
		return mgl64.QuatIdent(), false
	}
	return mgl64.QuatRotate(math.Atan2(-dx, -dz), Up).Normalize(), true
}
