package timewarp

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Frame is a coordinate system given by its origin 4-position and velocity
// relative to the world origin frame. The zero value is the origin frame
// itself. Invariant: |V| < 1.
type Frame struct {
	R Vector4
	V Vector3
}

// Origin is the distinguished world frame in which the simulation clock runs.
var Origin = Frame{}

// NewFrame validates and builds a frame moving at v with its origin at r.
func NewFrame(r Vector4, v Vector3) (Frame, error) {
	if v.Norm2() >= 1 {
		return Frame{}, errors.Wrapf(ErrLightspeedFrame, "frame at %s", r)
	}
	return Frame{R: r, V: v}, nil
}

// IsOrigin reports whether this is the world origin frame.
func (f Frame) IsOrigin() bool {
	return f.R == (Vector4{}) && f.V == (Vector3{})
}

func (f Frame) String() string {
	return fmt.Sprintf("frame{r=%s v=(%.4g,%.4g,%.4g)}", f.R, f.V.X, f.V.Y, f.V.Z)
}

// State is an object's spacetime position, velocity and proper time,
// expressed in some frame. Proper time is frame invariant.
type State struct {
	R   Vector4
	V   Vector3
	Tau float64
}

func (s State) String() string {
	return fmt.Sprintf("state{r=%s v=(%.4g,%.4g,%.4g) τ=%.6g}", s.R, s.V.X, s.V.Y, s.V.Z, s.Tau)
}

// Transform re-expresses the state from one frame into another. The route
// always passes through the origin frame: boosts between two arbitrary
// frames are never composed directly. Panics via the math kernel if either
// frame is superluminal; frames built with NewFrame cannot be.
func (s State) Transform(from, to Frame) State {
	if from == to {
		return s
	}
	cur := s
	if !from.IsOrigin() {
		cur = State{
			R:   from.R.Add(LorentzTransformInv(from.V, cur.R)),
			V:   must3(ObservedAddedVelocity(from.V, cur.V)),
			Tau: cur.Tau,
		}
	}
	if !to.IsOrigin() {
		cur = State{
			R:   LorentzTransform(to.V, cur.R.Sub(to.R)),
			V:   must3(TransformedAddedVelocity(to.V, cur.V)),
			Tau: cur.Tau,
		}
	}
	return cur
}

// comovingFrame is the momentarily co-moving frame of a world-frame state:
// its origin sits on the object's current event and it moves with it.
func comovingFrame(s State) Frame {
	return Frame{R: s.R, V: s.V}
}

// inertialTail advances a world-frame state by Δτ of proper time at its
// current velocity, routing through the co-moving frame like every other
// motion does.
func inertialTail(s State, dτ float64) State {
	if dτ == 0 {
		return s
	}
	f := comovingFrame(s)
	m := Inertial{Start: s.Tau, End: math.Inf(1)}
	return m.MoveUntilProperTime(f, s.Tau, s.Tau+dτ).Transform(f, Origin)
}
