package timewarp

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Vector3 is a pure spatial 3-vector. It aliases r3.Vector so the usual
// arithmetic (Add, Sub, Mul, Dot, Cross, Norm) comes for free.
type Vector3 = r3.Vector

// Vector4 is a spacetime 4-position with the time component first (c = 1).
type Vector4 struct {
	T, X, Y, Z float64
}

// Vec4 builds a Vector4 from a time component and a spatial vector.
func Vec4(t float64, r Vector3) Vector4 {
	return Vector4{t, r.X, r.Y, r.Z}
}

// Add returns v + o componentwise.
func (v Vector4) Add(o Vector4) Vector4 {
	return Vector4{v.T + o.T, v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o componentwise.
func (v Vector4) Sub(o Vector4) Vector4 {
	return Vector4{v.T - o.T, v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Spatial returns the spatial part of the 4-position.
func (v Vector4) Spatial() Vector3 {
	return Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func (v Vector4) String() string {
	return fmt.Sprintf("(%.6g, %.6g, %.6g, %.6g)", v.T, v.X, v.Y, v.Z)
}
