package timewarp

import (
	"testing"

	"github.com/gonum/floats"
	"github.com/pkg/errors"
)

func TestDeltaWorldDiscard(t *testing.T) {
	o := NewObj("o")
	w := testWorld(o)
	dw := newDeltaWorld(w, 1)
	dw.space[o] = State{R: Vector4{T: 1}, Tau: 1}
	dw.AddEvent(Event{Name: "x", Sender: o})
	if err := dw.AddMotion(o, AbruptVelocityChange{Start: 2, V: Vector3{X: 0.1}}); err != nil {
		t.Fatal(err)
	}
	if err := dw.AddAction(o, NewMarker("m", 3)); err != nil {
		t.Fatal(err)
	}
	// The delta world sees the buffered writes...
	if len(dw.Events()) != 1 {
		t.Fatal("buffered event invisible")
	}
	// ...but nothing reached the base world or the object.
	if len(w.events) != 0 || len(o.Motions()) != 0 || len(o.Actions()) != 0 {
		t.Fatal("buffered writes leaked into the base world")
	}
}

func TestDeltaWorldApplyAll(t *testing.T) {
	o := NewObj("o")
	w := testWorld(o)
	dw := newDeltaWorld(w, 1)
	dw.space[o] = State{R: Vector4{T: 1}, Tau: 1}
	dw.AddEvent(Event{Name: "x", Sender: o})
	if err := dw.AddMotion(o, AbruptVelocityChange{Start: 2, V: Vector3{X: 0.1}}); err != nil {
		t.Fatal(err)
	}
	if err := dw.AddAction(o, NewMarker("m", 3)); err != nil {
		t.Fatal(err)
	}
	a := NewDetectCollision(0, 5)
	dw.SetActionState(a, 42)

	committed := dw.applyAll()
	if committed.now != 1 {
		t.Fatalf("now = %f", committed.now)
	}
	if got, _ := committed.StateOf(o); got.Tau != 1 {
		t.Fatalf("state not applied: %s", got)
	}
	if len(committed.events) != 1 || len(o.Motions()) != 1 || len(o.Actions()) != 1 {
		t.Fatal("buffered writes not applied")
	}
	if committed.ActionState(a) != 42 {
		t.Fatal("action state not applied")
	}
	// The old world is untouched.
	if w.now != 0 || len(w.events) != 0 {
		t.Fatal("base world mutated")
	}
}

func TestDeltaWorldPastWrites(t *testing.T) {
	o := NewObj("o")
	w := testWorld(o)
	w.now = 5
	w.space[o] = State{R: Vector4{T: 5}, Tau: 5}
	dw := newDeltaWorld(w, 5)
	dw.space[o] = w.space[o]
	if err := dw.AddMotion(o, AbruptVelocityChange{Start: 1, V: Vector3{X: 0.1}}); errors.Cause(err) != ErrInvalidMotion {
		t.Fatalf("expected ErrInvalidMotion, got %v", err)
	}
	if err := dw.AddAction(o, NewMarker("m", 1)); errors.Cause(err) != ErrInvalidAction {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	newcomer := NewObj("newcomer")
	if err := dw.AddOrSetObject(newcomer, State{R: Vector4{T: 1}}); errors.Cause(err) != ErrPastIntroduction {
		t.Fatalf("expected ErrPastIntroduction, got %v", err)
	}
}

func TestDeltaWorldFutureIntroduction(t *testing.T) {
	o := NewObj("o")
	w := testWorld(o)
	w.now = 2
	dw := newDeltaWorld(w, 2)
	newcomer := NewObj("newcomer")
	// Requested: appear at t=7, x=3, v=0.4, τ=10.
	req := State{R: Vector4{T: 7, X: 3}, V: Vector3{X: 0.4}, Tau: 10}
	if err := dw.AddOrSetObject(newcomer, req); err != nil {
		t.Fatal(err)
	}
	st, ok := dw.StateOf(newcomer)
	if !ok {
		t.Fatal("newcomer has no state")
	}
	// Introduced now, at rest, at the spatial projection, clock offset so
	// that τ hits the requested value at the requested time.
	if st.R.T != 2 || st.R.X != 3 || st.V.Norm() != 0 {
		t.Fatalf("intro state: %s", st)
	}
	if !floats.EqualWithinAbs(st.Tau, 5, 1e-12) {
		t.Fatalf("intro τ = %f", st.Tau)
	}
	// Plus the deferred velocity change and the appearance marker.
	if len(dw.newMotions) != 1 || len(dw.newActions) != 1 {
		t.Fatalf("%d motions, %d actions buffered", len(dw.newMotions), len(dw.newActions))
	}
	if av, ok := dw.newMotions[0].motion.(AbruptVelocityChange); !ok || av.Start != 10 || av.V.X != 0.4 {
		t.Fatalf("deferred change: %+v", dw.newMotions[0].motion)
	}
	if mk, ok := dw.newActions[0].action.(*Marker); !ok || mk.Cause().Name != "Appear" || mk.TauStart() != 10 {
		t.Fatalf("appear marker: %+v", dw.newActions[0].action)
	}
	committed := dw.applyAll()
	if len(committed.objects) != 2 {
		t.Fatal("newcomer not committed")
	}
	if _, ok := committed.StateOf(newcomer); !ok {
		t.Fatal("newcomer has no committed state")
	}
}

func TestDeltaWorldLightspeedIntroduction(t *testing.T) {
	w := testWorld()
	dw := newDeltaWorld(w, 0)
	if err := dw.AddOrSetObject(NewObj("photon"), State{V: Vector3{X: 1}}); errors.Cause(err) != ErrLightspeedFrame {
		t.Fatalf("expected ErrLightspeedFrame, got %v", err)
	}
}
