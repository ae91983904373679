package timewarp

import (
	"math"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
)

// ErrLightspeedFrame is raised when a frame or object velocity reaches or
// exceeds the speed of light.
var ErrLightspeedFrame = errors.New("frame velocity at or above lightspeed")

const zeroε = 1e-12

// Gamma returns the Lorentz factor 1/√(1-v²) for a speed v (c = 1).
// Panics with ErrLightspeedFrame for |v| ≥ 1: all velocities are validated
// when they enter the engine, so reaching this is a programmer error.
func Gamma(v float64) float64 {
	if v*v >= 1 {
		panic(errors.Wrapf(ErrLightspeedFrame, "γ undefined for v=%f", v))
	}
	return 1 / math.Sqrt(1-v*v)
}

// ObservedAddedVelocity composes velocities relativistically: given a frame
// moving at vFrame and a velocity uPrime expressed in that frame, it returns
// the velocity an observer at rest measures (Einstein addition).
func ObservedAddedVelocity(vFrame, uPrime Vector3) (Vector3, error) {
	return einsteinAdd(vFrame, uPrime)
}

// TransformedAddedVelocity is the inverse composition: given a velocity u
// measured by an observer at rest, it returns the velocity expressed in a
// frame moving at vFrame.
func TransformedAddedVelocity(vFrame, u Vector3) (Vector3, error) {
	return einsteinAdd(vFrame.Mul(-1), u)
}

// einsteinAdd implements u = (u'/γ + v + (γ/(γ+1))(v·u')v) / (1 + v·u').
func einsteinAdd(v, uPrime Vector3) (Vector3, error) {
	v2 := v.Norm2()
	if v2 >= 1 {
		return Vector3{}, errors.Wrapf(ErrLightspeedFrame, "cannot compose velocities in a frame at v=%f", math.Sqrt(v2))
	}
	if floats.EqualWithinAbs(v2, 0, zeroε*zeroε) {
		return uPrime, nil
	}
	γ := 1 / math.Sqrt(1-v2)
	dot := v.Dot(uPrime)
	num := uPrime.Mul(1 / γ).Add(v).Add(v.Mul(γ / (γ + 1) * dot))
	return num.Mul(1 / (1 + dot)), nil
}

// boostMatrix builds the 4×4 Lorentz boost for a frame velocity v.
func boostMatrix(v Vector3) *mat64.Dense {
	v2 := v.Norm2()
	if floats.EqualWithinAbs(v2, 0, zeroε*zeroε) {
		return DenseIdentity(4)
	}
	γ := Gamma(math.Sqrt(v2))
	k := (γ - 1) / v2
	return mat64.NewDense(4, 4, []float64{
		γ, -γ * v.X, -γ * v.Y, -γ * v.Z,
		-γ * v.X, 1 + k*v.X*v.X, k * v.X * v.Y, k * v.X * v.Z,
		-γ * v.Y, k * v.Y * v.X, 1 + k*v.Y*v.Y, k * v.Y * v.Z,
		-γ * v.Z, k * v.Z * v.X, k * v.Z * v.Y, 1 + k*v.Z*v.Z,
	})
}

// LorentzTransform boosts the 4-position r into the frame moving at v.
func LorentzTransform(v Vector3, r Vector4) Vector4 {
	return applyBoost(boostMatrix(v), r)
}

// LorentzTransformInv boosts the 4-position r out of the frame moving at v
// (the same boost along -v).
func LorentzTransformInv(v Vector3, r Vector4) Vector4 {
	return applyBoost(boostMatrix(v.Mul(-1)), r)
}

func applyBoost(b *mat64.Dense, r Vector4) Vector4 {
	var out mat64.Vector
	out.MulVec(b, mat64.NewVector(4, []float64{r.T, r.X, r.Y, r.Z}))
	return Vector4{out.At(0, 0), out.At(1, 0), out.At(2, 0), out.At(3, 0)}
}

// RelativisticAcceleration returns the state after proper time τ of a
// worldline under constant proper acceleration a0, expressed in the frame
// momentarily co-moving at τ=0. For α = |a0| and n̂ = a0/α the motion is
// hyperbolic: r = n̂(cosh(ατ)-1)/α, t = sinh(ατ)/α, v = n̂·tanh(ατ).
func RelativisticAcceleration(a0 Vector3, τ float64) State {
	α := a0.Norm()
	if floats.EqualWithinAbs(α, 0, zeroε) {
		return State{R: Vector4{T: τ}, Tau: τ}
	}
	n := a0.Mul(1 / α)
	return State{
		R:   Vec4(math.Sinh(α*τ)/α, n.Mul((math.Cosh(α*τ)-1)/α)),
		V:   n.Mul(math.Tanh(α * τ)),
		Tau: τ,
	}
}

// RelativisticCoordAcceleration is the coordinate-time inverse of
// RelativisticAcceleration for a motion starting at rest: given elapsed
// coordinate time t, the proper time is asinh(αt)/α.
func RelativisticCoordAcceleration(a0 Vector3, t float64) State {
	α := a0.Norm()
	if floats.EqualWithinAbs(α, 0, zeroε) {
		return State{R: Vector4{T: t}, Tau: t}
	}
	return RelativisticAcceleration(a0, math.Asinh(α*t)/α)
}

// RelativisticCoordAccelerationIn solves the general boosted case: the
// motion starts in a frame moving at f.V relative to the world frame, and t
// is the elapsed coordinate time measured in the world frame. The proper
// time follows from
//
//	τ = (1/α)·asinh((-w·√((αt/γ)² + 2αtw/γ + 1) + w + αt/γ) / (1-w²))
//
// with w = v·n̂ and γ = γ(|v|); the negative square-root branch is the
// physical one. Reduces to the rest-frame form for v = 0 and to pure time
// dilation for α = 0.
func RelativisticCoordAccelerationIn(a0 Vector3, t float64, f Frame) State {
	α := a0.Norm()
	γ := Gamma(f.V.Norm())
	if floats.EqualWithinAbs(α, 0, zeroε) {
		τ := t / γ
		return State{R: Vector4{T: τ}, Tau: τ}
	}
	if floats.EqualWithinAbs(f.V.Norm2(), 0, zeroε*zeroε) {
		return RelativisticCoordAcceleration(a0, t)
	}
	n := a0.Mul(1 / α)
	w := f.V.Dot(n)
	x := α * t / γ
	τ := math.Asinh((-w*math.Sqrt(x*x+2*x*w+1)+w+x)/(1-w*w)) / α
	return RelativisticAcceleration(a0, τ)
}

// SeparationKind classifies the spacetime interval between two events.
type SeparationKind uint8

const (
	// Timelike intervals have Δt² > |Δr|²: a slower-than-light worldline
	// connects the two events.
	Timelike SeparationKind = iota + 1
	// Lightlike intervals lie on the lightcone within tolerance.
	Lightlike
	// Spacelike intervals have |Δr|² > Δt²: causally disconnected.
	Spacelike
)

func (k SeparationKind) String() string {
	switch k {
	case Timelike:
		return "timelike"
	case Lightlike:
		return "lightlike"
	case Spacelike:
		return "spacelike"
	default:
		panic("unknown separation kind")
	}
}

// Separation classifies the interval Δt² - |Δr|² between two events. The
// comparison is done in factored form, |Δt| - |Δr| against eps, which keeps
// the lightlike band at least eps wide in coordinate time so the scheduler's
// bisection can land inside it.
func Separation(r1, r2 Vector4, eps float64) SeparationKind {
	d := r1.Sub(r2)
	dt := math.Abs(d.T)
	dr := d.Spatial().Norm()
	if floats.EqualWithinAbs(dt, dr, eps) {
		return Lightlike
	}
	if dt > dr {
		return Timelike
	}
	return Spacelike
}

// DenseIdentity returns an identity matrix of type Dense and of the provided size.
func DenseIdentity(n int) *mat64.Dense {
	vals := make([]float64, n*n)
	for j := 0; j < n*n; j++ {
		if j%(n+1) == 0 {
			vals[j] = 1
		}
	}
	return mat64.NewDense(n, n, vals)
}

// must3 unwraps a velocity-composition result whose inputs were already
// validated sub-light.
func must3(v Vector3, err error) Vector3 {
	if err != nil {
		panic(err)
	}
	return v
}
