// Package vecmath implements the float32 vector and quaternion operations
// that compiled kernels see, with the same memory layout as the vec3<float>
// and quat<float> types declared in generated kernel sources.
package vecmath

import "math"

// Vec3 matches struct vec3<float> { float x, y, z; }.
type Vec3 struct {
	X, Y, Z float32
}

// Quat matches struct quat<float> { float s; vec3<float> v; }.
type Quat struct {
	S float32
	V Vec3
}

func V(x, y, z float32) Vec3 { return Vec3{x, y, z} }

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Neg() Vec3       { return Vec3{-a.X, -a.Y, -a.Z} }

func (a Vec3) Scale(f float32) Vec3 { return Vec3{a.X * f, a.Y * f, a.Z * f} }

func Dot(a, b Vec3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func Cross(a, b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

func (a Vec3) Norm() float32 { return float32(math.Sqrt(float64(Dot(a, a)))) }

// Component returns the i-th coordinate (0, 1 or 2).
func (a Vec3) Component(i int) float32 {
	switch i {
	case 0:
		return a.X
	case 1:
		return a.Y
	default:
		return a.Z
	}
}

func (a Vec3) IsFinite() bool {
	return finite(a.X) && finite(a.Y) && finite(a.Z)
}

// Min returns the component-wise minimum.
func Min(a, b Vec3) Vec3 {
	return Vec3{min(a.X, b.X), min(a.Y, b.Y), min(a.Z, b.Z)}
}

// Max returns the component-wise maximum.
func Max(a, b Vec3) Vec3 {
	return Vec3{max(a.X, b.X), max(a.Y, b.Y), max(a.Z, b.Z)}
}

// Identity is the unit quaternion with no rotation.
func Identity() Quat { return Quat{S: 1} }

func Q(s, x, y, z float32) Quat { return Quat{S: s, V: Vec3{x, y, z}} }

// Mul is the Hamilton product a*b.
func (a Quat) Mul(b Quat) Quat {
	return Quat{
		S: a.S*b.S - Dot(a.V, b.V),
		V: b.V.Scale(a.S).Add(a.V.Scale(b.S)).Add(Cross(a.V, b.V)),
	}
}

func (a Quat) Conj() Quat { return Quat{S: a.S, V: a.V.Neg()} }

func (a Quat) Norm2() float32 { return a.S*a.S + Dot(a.V, a.V) }

// Normalized returns a unit quaternion, or the identity for a zero quaternion.
func (a Quat) Normalized() Quat {
	n2 := a.Norm2()
	if n2 == 0 {
		return Identity()
	}
	inv := float32(1 / math.Sqrt(float64(n2)))
	return Quat{S: a.S * inv, V: a.V.Scale(inv)}
}

// Rotate applies the rotation described by unit quaternion q to v.
func Rotate(q Quat, v Vec3) Vec3 {
	w := q.V
	return v.Scale(q.S*q.S - Dot(w, w)).
		Add(Cross(w, v).Scale(2 * q.S)).
		Add(w.Scale(2 * Dot(w, v)))
}

func (a Quat) IsFinite() bool {
	return finite(a.S) && a.V.IsFinite()
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
