package timewarp

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

func TestGamma(t *testing.T) {
	if !floats.EqualWithinAbs(Gamma(0), 1, 1e-12) {
		t.Fatal("γ(0) != 1")
	}
	if !floats.EqualWithinAbs(Gamma(0.5), 2/math.Sqrt(3), 1e-12) {
		t.Fatalf("γ(0.5) = %f", Gamma(0.5))
	}
	assertPanic(t, func() { Gamma(1) })
	assertPanic(t, func() { Gamma(-1.2) })
}

func TestVelocityAddition(t *testing.T) {
	v := Vector3{X: 0.5}
	u, err := ObservedAddedVelocity(v, Vector3{X: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualWithinAbs(u.X, 0.8, 1e-12) {
		t.Fatalf("0.5 ⊕ 0.5 = %f, expected 0.8", u.X)
	}
	// Composition with a perpendicular component.
	uPrime := Vector3{X: 0.1, Y: 0.3}
	obs, err := ObservedAddedVelocity(v, uPrime)
	if err != nil {
		t.Fatal(err)
	}
	if obs.Norm() >= 1 {
		t.Fatalf("composed speed %f at or above lightspeed", obs.Norm())
	}
	back, err := TransformedAddedVelocity(v, obs)
	if err != nil {
		t.Fatal(err)
	}
	for i, pair := range [][2]float64{{back.X, uPrime.X}, {back.Y, uPrime.Y}, {back.Z, uPrime.Z}} {
		if !floats.EqualWithinAbs(pair[0], pair[1], 1e-12) {
			t.Fatalf("roundtrip component %d: %f != %f", i, pair[0], pair[1])
		}
	}
	if _, err = ObservedAddedVelocity(Vector3{X: 1}, uPrime); err == nil {
		t.Fatal("expected an error for a lightspeed frame")
	}
}

func TestLorentzTransform(t *testing.T) {
	v := Vector3{X: 0.5}
	γ := Gamma(0.5)
	r := LorentzTransform(v, Vector4{T: 1})
	if !floats.EqualWithinAbs(r.T, γ, 1e-12) || !floats.EqualWithinAbs(r.X, -γ*0.5, 1e-12) {
		t.Fatalf("boost of (1,0,0,0): %s", r)
	}
	// Inverse roundtrip on a generic event, with an oblique boost.
	v = Vector3{X: 0.3, Y: -0.2, Z: 0.1}
	in := Vector4{T: 2, X: 1, Y: -0.5, Z: 3}
	out := LorentzTransformInv(v, LorentzTransform(v, in))
	d := out.Sub(in)
	if math.Abs(d.T) > 1e-12 || d.Spatial().Norm() > 1e-12 {
		t.Fatalf("boost roundtrip drifted: %s != %s", out, in)
	}
}

func TestRelativisticAcceleration(t *testing.T) {
	st := RelativisticAcceleration(Vector3{X: 1}, 1)
	if !floats.EqualWithinAbs(st.R.T, math.Sinh(1), 1e-12) {
		t.Fatalf("t = %f", st.R.T)
	}
	if !floats.EqualWithinAbs(st.R.X, math.Cosh(1)-1, 1e-12) {
		t.Fatalf("x = %f", st.R.X)
	}
	if !floats.EqualWithinAbs(st.V.X, math.Tanh(1), 1e-12) {
		t.Fatalf("v = %f", st.V.X)
	}
	if st.Tau != 1 {
		t.Fatalf("τ = %f", st.Tau)
	}
	// Zero acceleration degenerates to staying put.
	st = RelativisticAcceleration(Vector3{}, 2)
	if st.R.T != 2 || st.R.Spatial().Norm() != 0 || st.V.Norm() != 0 {
		t.Fatalf("a=0 state: %s", st)
	}
}

func TestRelativisticCoordAcceleration(t *testing.T) {
	a := Vector3{X: 0.25}
	for _, τ := range []float64{0, 0.5, 1, 4, 9} {
		fwd := RelativisticAcceleration(a, τ)
		inv := RelativisticCoordAcceleration(a, fwd.R.T)
		if !floats.EqualWithinAbs(inv.Tau, τ, 1e-9) {
			t.Fatalf("inversion at τ=%f gave %f", τ, inv.Tau)
		}
		if !floats.EqualWithinAbs(inv.R.X, fwd.R.X, 1e-9) {
			t.Fatalf("inversion at τ=%f: x %f != %f", τ, inv.R.X, fwd.R.X)
		}
	}
}

func TestRelativisticCoordAccelerationBoosted(t *testing.T) {
	a := Vector3{X: 0.8}
	f := Frame{R: Vec4(5, Vector3{X: 2}), V: Vector3{X: 0.5}}
	γ := Gamma(0.5)
	for _, τ := range []float64{0.3, 1, 2.5} {
		fwd := RelativisticAcceleration(a, τ)
		// World-frame time elapsed since the start event.
		dt := γ * (fwd.R.T + f.V.Dot(fwd.R.Spatial()))
		inv := RelativisticCoordAccelerationIn(a, dt, f)
		if !floats.EqualWithinAbs(inv.Tau, τ, 1e-9) {
			t.Fatalf("boosted inversion at τ=%f gave %f", τ, inv.Tau)
		}
	}
	// Deceleration: the boost opposes the acceleration direction.
	a = Vector3{X: -0.5}
	for _, τ := range []float64{0.5, 2} {
		fwd := RelativisticAcceleration(a, τ)
		dt := γ * (fwd.R.T + f.V.Dot(fwd.R.Spatial()))
		inv := RelativisticCoordAccelerationIn(a, dt, f)
		if !floats.EqualWithinAbs(inv.Tau, τ, 1e-9) {
			t.Fatalf("deceleration inversion at τ=%f gave %f", τ, inv.Tau)
		}
	}
	// v = 0 reduces to the rest-frame form.
	rest := RelativisticCoordAccelerationIn(Vector3{X: 1}, math.Sinh(1), Origin)
	if !floats.EqualWithinAbs(rest.Tau, 1, 1e-9) {
		t.Fatalf("rest-frame reduction gave τ=%f", rest.Tau)
	}
	// a = 0 reduces to pure time dilation.
	coast := RelativisticCoordAccelerationIn(Vector3{}, 2, f)
	if !floats.EqualWithinAbs(coast.Tau, 2/γ, 1e-12) {
		t.Fatalf("coasting reduction gave τ=%f", coast.Tau)
	}
}

func TestSeparation(t *testing.T) {
	o := Vector4{}
	cases := []struct {
		r    Vector4
		kind SeparationKind
	}{
		{Vector4{T: 2, X: 1}, Timelike},
		{Vector4{T: 1, X: 1}, Lightlike},
		{Vector4{T: 1, X: 2}, Spacelike},
		{Vector4{T: -2, X: 1}, Timelike},
		{Vector4{T: 1, Y: 1 + 1e-10}, Lightlike},
	}
	for i, c := range cases {
		if got := Separation(c.r, o, 1e-8); got != c.kind {
			t.Fatalf("case %d: %s classified %s, expected %s", i, c.r, got, c.kind)
		}
	}
}
