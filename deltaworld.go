package timewarp

import (
	"github.com/pkg/errors"
)

// ErrPastIntroduction is returned when an action tries to materialize an
// object strictly before the current coordinate time. Simulation.AddObject
// also returns it for any time other than the current one.
var ErrPastIntroduction = errors.New("object introduction in the past")

type objIntro struct {
	obj   *Obj
	state State
}

type actionAdd struct {
	obj    *Obj
	action Action
}

type motionAdd struct {
	obj    *Obj
	motion Motion
}

// DeltaWorld is a write-buffered overlay on a base world: one candidate
// evaluation of a time step. Every write an action callback performs is
// collected here and folded into a fresh World by applyAll on commit; a
// discarded DeltaWorld (after RetrySmallerStep) leaves no trace, including
// on the shared motion and action lists of the objects.
type DeltaWorld struct {
	base *World
	now  float64

	space         map[*Obj]State
	events        []Event
	intros        []objIntro
	introSet      map[*Obj]int // index into intros
	newActions    []actionAdd
	newMotions    []motionAdd
	states        map[Action]interface{}
	completions   []Action
	deactivations []Action
	completedSet  map[Action]bool
}

func newDeltaWorld(base *World, now float64) *DeltaWorld {
	return &DeltaWorld{
		base:         base,
		now:          now,
		space:        make(map[*Obj]State, len(base.space)),
		introSet:     make(map[*Obj]int),
		states:       make(map[Action]interface{}),
		completedSet: make(map[Action]bool),
	}
}

// Now implements the View interface.
func (dw *DeltaWorld) Now() float64 { return dw.now }

// Eps implements the View interface.
func (dw *DeltaWorld) Eps() float64 { return dw.base.eps }

// LogActions implements the View interface.
func (dw *DeltaWorld) LogActions() bool { return dw.base.logActions }

// Objects implements the View interface.
func (dw *DeltaWorld) Objects() []*Obj {
	out := append([]*Obj(nil), dw.base.objects...)
	for _, in := range dw.intros {
		out = append(out, in.obj)
	}
	return out
}

// Events implements the View interface.
func (dw *DeltaWorld) Events() []Event {
	out := append([]Event(nil), dw.base.events...)
	return append(out, dw.events...)
}

// StateOf implements the View interface.
func (dw *DeltaWorld) StateOf(o *Obj) (State, bool) {
	if s, ok := dw.space[o]; ok {
		return s, true
	}
	if i, ok := dw.introSet[o]; ok {
		return dw.intros[i].state, true
	}
	s, ok := dw.base.space[o]
	return s, ok
}

// StateInFrame implements the View interface.
func (dw *DeltaWorld) StateInFrame(o *Obj, f Frame) (State, bool) {
	s, ok := dw.StateOf(o)
	if !ok {
		return State{}, false
	}
	return s.Transform(Origin, f), true
}

// ActionState implements the View interface.
func (dw *DeltaWorld) ActionState(a Action) interface{} {
	if s, ok := dw.states[a]; ok {
		return s
	}
	return dw.base.actionStates[a]
}

// IsActive implements the View interface.
func (dw *DeltaWorld) IsActive(a Action) bool {
	if dw.completedSet[a] {
		return false
	}
	return dw.base.IsActive(a)
}

// IsComplete implements the View interface.
func (dw *DeltaWorld) IsComplete(a Action) bool {
	return dw.completedSet[a] || dw.base.IsComplete(a)
}

// AddEvent implements the WorldView interface.
func (dw *DeltaWorld) AddEvent(e Event) {
	dw.events = append(dw.events, e)
}

// tauOf is the owning object's proper time in this candidate world.
func (dw *DeltaWorld) tauOf(o *Obj) (float64, bool) {
	s, ok := dw.StateOf(o)
	return s.Tau, ok
}

// AddAction implements the WorldView interface. Actions may only be
// scheduled in the object's proper-time present or future.
func (dw *DeltaWorld) AddAction(o *Obj, a Action) error {
	if a.TauEnd() < a.TauStart() {
		return errors.Wrapf(ErrInvalidAction, "%q ends before it starts", a.Cause().Name)
	}
	if tau, ok := dw.tauOf(o); ok && a.TauStart() < tau-dw.base.eps {
		return errors.Wrapf(ErrInvalidAction, "%q starts at τ=%f in the past of %s (τ=%f)", a.Cause().Name, a.TauStart(), o, tau)
	}
	dw.newActions = append(dw.newActions, actionAdd{o, a})
	return nil
}

// AddMotion implements the WorldView interface. Motions may only be
// scheduled in the object's proper-time present or future and may not
// overlap, counting motions buffered earlier in this same step.
func (dw *DeltaWorld) AddMotion(o *Obj, m Motion) error {
	if m.TauEnd() < m.TauStart() {
		return errors.Wrapf(ErrInvalidMotion, "%s ends before it starts", m)
	}
	if tau, ok := dw.tauOf(o); ok && m.TauStart() < tau-dw.base.eps {
		return errors.Wrapf(ErrInvalidMotion, "%s starts in the past of %s (τ=%f)", m, o, tau)
	}
	check := o.Motions()
	for _, ma := range dw.newMotions {
		if ma.obj == o {
			check = append(check, ma.motion)
		}
	}
	for _, e := range check {
		if m.TauStart() < e.TauEnd() && e.TauStart() < m.TauEnd() {
			return errors.Wrapf(ErrInvalidMotion, "%s overlaps %s on %s", m, e, o)
		}
	}
	dw.newMotions = append(dw.newMotions, motionAdd{o, m})
	return nil
}

// AddOrSetObject implements the WorldView interface. An introduction at a
// future coordinate time is rewritten so the object appears at now, at rest
// at the world-frame projection of the requested position, with its proper
// clock offset to hit the requested tau at the requested time; a silent
// velocity change plus an "Appear" marker then reproduce the requested
// state. This keeps every introduction inside the calling observer's
// lightcone.
func (dw *DeltaWorld) AddOrSetObject(o *Obj, s State) error {
	if s.V.Norm2() >= 1 {
		return errors.Wrapf(ErrLightspeedFrame, "cannot introduce %s", o)
	}
	eps := dw.base.eps
	switch {
	case s.R.T < dw.now-eps:
		return errors.Wrapf(ErrPastIntroduction, "%s at t=%f before now=%f", o, s.R.T, dw.now)
	case s.R.T > dw.now+eps:
		intro := State{
			R:   Vec4(dw.now, s.R.Spatial()),
			Tau: s.Tau - (s.R.T - dw.now),
		}
		if err := dw.AddMotion(o, AbruptVelocityChange{Start: s.Tau, V: s.V}); err != nil {
			return err
		}
		if err := dw.AddAction(o, NewMarker("Appear", s.Tau)); err != nil {
			return err
		}
		dw.setObject(o, intro)
	default:
		s.R.T = dw.now
		dw.setObject(o, s)
	}
	return nil
}

func (dw *DeltaWorld) setObject(o *Obj, s State) {
	if _, known := dw.base.space[o]; known {
		dw.space[o] = s
		return
	}
	if i, ok := dw.introSet[o]; ok {
		dw.intros[i].state = s
		return
	}
	dw.introSet[o] = len(dw.intros)
	dw.intros = append(dw.intros, objIntro{o, s})
}

// SetActionState implements the WorldView interface.
func (dw *DeltaWorld) SetActionState(a Action, state interface{}) {
	dw.states[a] = state
}

// Complete implements the WorldView interface.
func (dw *DeltaWorld) Complete(a Action) {
	if dw.completedSet[a] {
		return
	}
	dw.completedSet[a] = true
	dw.completions = append(dw.completions, a)
}

// Deactivate implements the WorldView interface.
func (dw *DeltaWorld) Deactivate(a Action) {
	dw.deactivations = append(dw.deactivations, a)
}

// applyAll folds the change buffer into a clone of the base world and
// returns it. Buffered writes were validated when they were made, so the
// fold itself cannot fail.
func (dw *DeltaWorld) applyAll() *World {
	w := dw.base.clone()
	w.now = dw.now
	for o, s := range dw.space {
		w.space[o] = s
	}
	for _, in := range dw.intros {
		w.objects = append(w.objects, in.obj)
		w.space[in.obj] = in.state
	}
	w.events = append(w.events, dw.events...)
	for _, ma := range dw.newMotions {
		if err := ma.obj.AddMotion(ma.motion); err != nil {
			panic(err)
		}
	}
	for _, aa := range dw.newActions {
		if err := aa.obj.AddAction(aa.action); err != nil {
			panic(err)
		}
	}
	for a, s := range dw.states {
		w.actionStates[a] = s
	}
	for _, a := range dw.completions {
		w.complete(a)
	}
	for _, a := range dw.deactivations {
		w.dropActive(a)
	}
	return w
}
