package timewarp

import (
	"math"
	"testing"

	"github.com/gonum/floats"
	"github.com/pkg/errors"
)

func TestAddMotionValidation(t *testing.T) {
	o := NewObj("ship")
	if err := o.AddMotion(Inertial{Start: 0, End: 5}); err != nil {
		t.Fatal(err)
	}
	// Overlapping segment.
	if err := o.AddMotion(LongitudinalAcceleration{Start: 3, End: 7, A: Vector3{X: 1}}); errors.Cause(err) != ErrInvalidMotion {
		t.Fatalf("expected ErrInvalidMotion, got %v", err)
	}
	// Velocity change inside a segment.
	if err := o.AddMotion(AbruptVelocityChange{Start: 3, V: Vector3{X: 0.1}}); errors.Cause(err) != ErrInvalidMotion {
		t.Fatalf("expected ErrInvalidMotion, got %v", err)
	}
	// Velocity change exactly on the boundary is fine (half-open intervals).
	if err := o.AddMotion(AbruptVelocityChange{Start: 5, V: Vector3{X: 0.1}}); err != nil {
		t.Fatal(err)
	}
	if err := o.AddMotion(Inertial{Start: 5, End: 8}); err != nil {
		t.Fatal(err)
	}
	// Reversed interval.
	if err := o.AddMotion(Inertial{Start: 9, End: 8.5}); errors.Cause(err) != ErrInvalidMotion {
		t.Fatalf("expected ErrInvalidMotion, got %v", err)
	}
	if n := len(o.Motions()); n != 3 {
		t.Fatalf("kept %d motions", n)
	}
}

func TestAddActionOrdering(t *testing.T) {
	o := NewObj("ship")
	late := NewMarker("late", 2)
	early := NewMarker("early", 1)
	tieB := NewMarker("b", 1.5)
	tieA := NewMarker("a", 1.5)
	for _, a := range []Action{late, tieB, early, tieA} {
		if err := o.AddAction(a); err != nil {
			t.Fatal(err)
		}
	}
	got := o.Actions()
	want := []Action{early, tieA, tieB, late}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %q", i, got[i].Cause().Name)
		}
	}
	if err := o.AddAction(NewDetectCollision(3, 2)); errors.Cause(err) != ErrInvalidAction {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestAdvanceToProperTimeInertialGap(t *testing.T) {
	// No scheduled motions: the object coasts at its current velocity.
	o := NewObj("ship")
	γ := Gamma(0.5)
	s := State{V: Vector3{X: 0.5}}
	got := o.advanceToProperTime(s, 1)
	if got.Tau != 1 {
		t.Fatalf("τ = %f", got.Tau)
	}
	if !floats.EqualWithinAbs(got.R.T, γ, 1e-12) || !floats.EqualWithinAbs(got.R.X, 0.5*γ, 1e-12) {
		t.Fatalf("coasted to %s", got.R)
	}
}

func TestAdvanceToProperTimeAbrupt(t *testing.T) {
	o := NewObj("ship")
	if err := o.AddMotion(AbruptVelocityChange{Start: 1, V: Vector3{X: 0.5}}); err != nil {
		t.Fatal(err)
	}
	// Rest until τ=1, then coast at 0.5 until τ=2.
	got := o.advanceToProperTime(State{}, 2)
	γ := Gamma(0.5)
	if !floats.EqualWithinAbs(got.R.T, 1+γ, 1e-12) {
		t.Fatalf("t = %f", got.R.T)
	}
	if !floats.EqualWithinAbs(got.R.X, 0.5*γ, 1e-12) {
		t.Fatalf("x = %f", got.R.X)
	}
	// Advancing exactly onto the change applies it.
	at := o.advanceToProperTime(State{}, 1)
	if !floats.EqualWithinAbs(at.V.X, 0.5, 1e-12) {
		t.Fatalf("velocity at τ=1: %f", at.V.X)
	}
	// A fresh advance starting at τ=1 must not apply it twice.
	again := o.advanceToProperTime(at, 2)
	if !floats.EqualWithinAbs(again.V.X, 0.5, 1e-12) {
		t.Fatalf("velocity re-applied: %f", again.V.X)
	}
}

func TestAdvanceToCoordinateTimeAcrossSegments(t *testing.T) {
	o := NewObj("rocket")
	if err := o.AddMotion(LongitudinalAcceleration{Start: 0, End: 1, A: Vector3{X: 1}}); err != nil {
		t.Fatal(err)
	}
	// The burn ends at t=sinh(1); afterwards the rocket coasts at tanh(1).
	tBurnEnd := math.Sinh(1)
	got := o.advanceToCoordinateTime(State{}, 5, defaultε)
	if got.R.T != 5 {
		t.Fatalf("t = %f", got.R.T)
	}
	wantX := (math.Cosh(1) - 1) + math.Tanh(1)*(5-tBurnEnd)
	if !floats.EqualWithinAbs(got.R.X, wantX, 1e-9) {
		t.Fatalf("x = %f, expected %f", got.R.X, wantX)
	}
	wantτ := 1 + (5-tBurnEnd)/math.Cosh(1)
	if !floats.EqualWithinAbs(got.Tau, wantτ, 1e-9) {
		t.Fatalf("τ = %f, expected %f", got.Tau, wantτ)
	}
	// Stopping mid-burn agrees with the proper-time walk.
	mid := o.advanceToCoordinateTime(State{}, 0.5, defaultε)
	viaTau := o.advanceToProperTime(State{}, mid.Tau)
	if !stateClose(mid, viaTau, 1e-9) {
		t.Fatalf("mid-burn mismatch: %s != %s", mid, viaTau)
	}
}

func TestAdvanceSnapsExactly(t *testing.T) {
	o := NewObj("ship")
	if err := o.AddMotion(LongitudinalAcceleration{Start: 0.25, End: 0.75, A: Vector3{Y: 2}}); err != nil {
		t.Fatal(err)
	}
	s := State{V: Vector3{X: 0.1}}
	if got := o.advanceToProperTime(s, 1.375); got.Tau != 1.375 {
		t.Fatalf("τ not snapped: %v", got.Tau)
	}
	if got := o.advanceToCoordinateTime(s, 2.125, defaultε); got.R.T != 2.125 {
		t.Fatalf("t not snapped: %v", got.R.T)
	}
}
