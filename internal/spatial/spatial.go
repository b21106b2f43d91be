// Package spatial holds the small vector and rotation value types used for
// object placement.
package spatial

import "math"

// Vec3 is a three component vector.
type Vec3 struct {
	X, Y, Z float64
}

// Zero and One are the common scale/position identities.
var (
	Zero = Vec3{}
	One  = Vec3{X: 1, Y: 1, Z: 1}
)

// V3 constructs a Vec3.
func V3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Mul scales every component by s.
func (v Vec3) Mul(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Scale multiplies component-wise.
func (v Vec3) Scale(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

// DivSafe divides component-wise, treating zero divisors as zero results.
func (v Vec3) DivSafe(o Vec3) Vec3 {
	div := func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return a / b
	}
	return Vec3{div(v.X, o.X), div(v.Y, o.Y), div(v.Z, o.Z)}
}

// ApproxEqual compares with an absolute tolerance.
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps && math.Abs(v.Z-o.Z) <= eps
}

// Quat is a unit quaternion rotation.
type Quat struct {
	W, X, Y, Z float64
}

// Identity is the no-op rotation.
var Identity = Quat{W: 1}

// AxisAngle builds a rotation of rad radians around axis.
func AxisAngle(axis Vec3, rad float64) Quat {
	n := math.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if n == 0 {
		return Identity
	}
	s := math.Sin(rad/2) / n
	return Quat{W: math.Cos(rad / 2), X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

// Mul composes q then o (q*o).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// Inverse returns the conjugate, which is the inverse for unit quaternions.
func (q Quat) Inverse() Quat { return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z} }

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	p := Quat{X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Inverse())
	return Vec3{r.X, r.Y, r.Z}
}

// ApproxEqual compares two rotations, treating q and -q as equal.
func (q Quat) ApproxEqual(o Quat, eps float64) bool {
	same := math.Abs(q.W-o.W) <= eps && math.Abs(q.X-o.X) <= eps && math.Abs(q.Y-o.Y) <= eps && math.Abs(q.Z-o.Z) <= eps
	flip := math.Abs(q.W+o.W) <= eps && math.Abs(q.X+o.X) <= eps && math.Abs(q.Y+o.Y) <= eps && math.Abs(q.Z+o.Z) <= eps
	return same || flip
}
