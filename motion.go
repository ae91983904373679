package timewarp

import (
	"fmt"
	"math"
)

// Motion describes one proper-time segment of an object's worldline. Both
// move operations answer in the provided co-moving frame: a frame whose
// origin is the object's event at tauNow and whose velocity matches the
// object there (so the object starts at rest at the frame origin).
//
// MoveUntilProperTime advances to the proper time tauTo (the caller keeps
// tauTo within the segment). MoveUntilCoordinateTime advances until the
// world-frame coordinate time t is reached or the segment's proper-time end,
// whichever comes first; t is measured on the world-frame clock, with the
// frame's R.T recording the world time of entry.
type Motion interface {
	TauStart() float64
	TauEnd() float64
	MoveUntilProperTime(coMoving Frame, tauNow, tauTo float64) State
	MoveUntilCoordinateTime(coMoving Frame, tauNow, t float64) State
	String() string
}

// Inertial keeps the object at rest at the origin of its co-moving frame;
// in the world frame it coasts at whatever velocity the previous segment
// left it with.
type Inertial struct {
	Start, End float64
}

// TauStart implements the Motion interface.
func (m Inertial) TauStart() float64 { return m.Start }

// TauEnd implements the Motion interface.
func (m Inertial) TauEnd() float64 { return m.End }

// MoveUntilProperTime implements the Motion interface. At rest in the
// co-moving frame, elapsed frame time equals elapsed proper time.
func (m Inertial) MoveUntilProperTime(_ Frame, tauNow, tauTo float64) State {
	dτ := math.Min(tauTo, m.End) - tauNow
	return State{R: Vector4{T: dτ}, Tau: tauNow + dτ}
}

// MoveUntilCoordinateTime implements the Motion interface. The world-frame
// interval divides by γ of the co-moving frame's speed, capped at the
// segment length.
func (m Inertial) MoveUntilCoordinateTime(coMoving Frame, tauNow, t float64) State {
	dτ := (t - coMoving.R.T) / Gamma(coMoving.V.Norm())
	if tauNow+dτ > m.End {
		dτ = m.End - tauNow
	}
	return State{R: Vector4{T: dτ}, Tau: tauNow + dτ}
}

func (m Inertial) String() string {
	return fmt.Sprintf("inertial[%.4g,%.4g]", m.Start, m.End)
}

// AbruptVelocityChange instantaneously switches the object's velocity to V,
// expressed in the co-moving frame of the previous segment. It occupies no
// proper time: TauEnd == TauStart.
type AbruptVelocityChange struct {
	Start float64
	V     Vector3
}

// TauStart implements the Motion interface.
func (m AbruptVelocityChange) TauStart() float64 { return m.Start }

// TauEnd implements the Motion interface.
func (m AbruptVelocityChange) TauEnd() float64 { return m.Start }

// MoveUntilProperTime implements the Motion interface. The caller arrives
// with tauNow == TauStart; the state is unchanged except for the velocity.
func (m AbruptVelocityChange) MoveUntilProperTime(_ Frame, _, _ float64) State {
	return State{V: m.V, Tau: m.Start}
}

// MoveUntilCoordinateTime implements the Motion interface.
func (m AbruptVelocityChange) MoveUntilCoordinateTime(_ Frame, _, _ float64) State {
	return State{V: m.V, Tau: m.Start}
}

func (m AbruptVelocityChange) String() string {
	return fmt.Sprintf("abrupt[%.4g]→(%.4g,%.4g,%.4g)", m.Start, m.V.X, m.V.Y, m.V.Z)
}

// LongitudinalAcceleration applies a constant proper acceleration A, given
// in the momentarily co-moving frame at TauStart. The worldline is
// hyperbolic. Only longitudinal acceleration is supported: the direction of
// A is preserved along the boost axis.
type LongitudinalAcceleration struct {
	Start, End float64
	A          Vector3
}

// TauStart implements the Motion interface.
func (m LongitudinalAcceleration) TauStart() float64 { return m.Start }

// TauEnd implements the Motion interface.
func (m LongitudinalAcceleration) TauEnd() float64 { return m.End }

// MoveUntilProperTime implements the Motion interface via the closed-form
// hyperbolic motion in the co-moving frame.
func (m LongitudinalAcceleration) MoveUntilProperTime(_ Frame, tauNow, tauTo float64) State {
	dτ := math.Min(tauTo, m.End) - tauNow
	st := RelativisticAcceleration(m.A, dτ)
	st.Tau = tauNow + dτ
	return st
}

// MoveUntilCoordinateTime implements the Motion interface by inverting the
// hyperbolic motion for the boosted co-moving frame, capping at the segment
// end when the worldline does not reach t within this segment.
func (m LongitudinalAcceleration) MoveUntilCoordinateTime(coMoving Frame, tauNow, t float64) State {
	st := RelativisticCoordAccelerationIn(m.A, t-coMoving.R.T, coMoving)
	if tauNow+st.Tau > m.End {
		st = RelativisticAcceleration(m.A, m.End-tauNow)
		st.Tau = m.End
		return st
	}
	st.Tau = tauNow + st.Tau
	return st
}

func (m LongitudinalAcceleration) String() string {
	return fmt.Sprintf("accel[%.4g,%.4g] a=(%.4g,%.4g,%.4g)", m.Start, m.End, m.A.X, m.A.Y, m.A.Z)
}
