package timewarp

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Cause identifies what produced an event or an action firing. Causes are
// plain comparable values; Silent suppresses the automatic Action /
// Action-end log events for the carrying action.
type Cause struct {
	Name   string
	Silent bool
}

// Action is a scheduled behavior on an object's worldline, active over the
// proper-time interval [TauStart, TauEnd]. A point action has TauStart ==
// TauEnd; an interval action fires its start edge once and is then invoked
// at every evaluated instant until its end edge fires.
//
// Init creates the action's opaque state token on first fire. Act is called
// with the candidate world, the owning object, the object's proper time at
// the evaluated instant, and the current state token; it returns the next
// token. Returning *RetrySmallerStep asks the scheduler to bisect the
// current time step; any other error aborts the simulation step.
type Action interface {
	Cause() Cause
	TauStart() float64
	TauEnd() float64
	Init() interface{}
	Act(w WorldView, self *Obj, tau float64, state interface{}) (interface{}, error)
}

// RetrySmallerStep signals that the scheduler evaluated past a threshold
// event and must retry at a smaller time step. It is control flow, not a
// failure: the scheduler always recovers it. Hint, when set, proposes the
// coordinate time the raising action believes the threshold lies at.
type RetrySmallerStep struct {
	Hint *float64
}

func (r *RetrySmallerStep) Error() string { return "retry with a smaller time step" }

// asRetry unwraps a callback error down to a RetrySmallerStep, if that is
// what it is.
func asRetry(err error) (*RetrySmallerStep, bool) {
	r, ok := errors.Cause(err).(*RetrySmallerStep)
	return r, ok
}

// Marker is a point action with no behavior: it exists to put a named event
// on the log at a chosen proper time.
type Marker struct {
	name string
	tau  float64
}

// NewMarker creates a marker firing at the given proper time.
func NewMarker(name string, tau float64) *Marker {
	return &Marker{name: name, tau: tau}
}

// Cause implements the Action interface.
func (m *Marker) Cause() Cause { return Cause{Name: m.name} }

// TauStart implements the Action interface.
func (m *Marker) TauStart() float64 { return m.tau }

// TauEnd implements the Action interface.
func (m *Marker) TauEnd() float64 { return m.tau }

// Init implements the Action interface.
func (m *Marker) Init() interface{} { return nil }

// Act implements the Action interface. Markers do nothing themselves; the
// scheduler logs the firing.
func (m *Marker) Act(_ WorldView, _ *Obj, _ float64, state interface{}) (interface{}, error) {
	return state, nil
}

// Sender emits a train of pulses: each firing schedules one Pulse at the
// current proper time and the next Sender one period later.
type Sender struct {
	name   string
	start  float64
	period float64
	n      int
}

// NewSender creates a sender firing its first pulse at proper time start
// and one more every period after that.
func NewSender(name string, start, period float64) *Sender {
	return &Sender{name: name, start: start, period: period}
}

// Cause implements the Action interface.
func (s *Sender) Cause() Cause { return Cause{Name: s.name} }

// TauStart implements the Action interface.
func (s *Sender) TauStart() float64 { return s.start }

// TauEnd implements the Action interface.
func (s *Sender) TauEnd() float64 { return s.start }

// Init implements the Action interface.
func (s *Sender) Init() interface{} { return nil }

// Act implements the Action interface.
func (s *Sender) Act(w WorldView, self *Obj, _ float64, state interface{}) (interface{}, error) {
	if err := w.AddAction(self, NewPulse(fmt.Sprintf("%s-%d", s.name, s.n), s.start)); err != nil {
		return nil, err
	}
	next := &Sender{name: s.name, start: s.start + s.period, period: s.period, n: s.n + 1}
	if err := w.AddAction(self, next); err != nil {
		return nil, err
	}
	return state, nil
}

// Pulse propagates a spherical lightlike signal from the source event
// (owning object, TauStart). It never ends: once fired it watches every
// evaluated instant, emitting a reception event for each object whose
// worldline crosses the wavefront and asking for a smaller step when the
// scheduler jumped past a crossing.
type Pulse struct {
	name   string
	start  float64
	silent bool
}

// NewPulse creates a pulse emitted at the owning object's proper time start.
func NewPulse(name string, start float64) *Pulse {
	return &Pulse{name: name, start: start}
}

// NewSilentPulse is NewPulse without the automatic Action log event.
func NewSilentPulse(name string, start float64) *Pulse {
	return &Pulse{name: name, start: start, silent: true}
}

// Cause implements the Action interface.
func (p *Pulse) Cause() Cause { return Cause{Name: p.name, Silent: p.silent} }

// TauStart implements the Action interface.
func (p *Pulse) TauStart() float64 { return p.start }

// TauEnd implements the Action interface. Pulses stay active forever.
func (p *Pulse) TauEnd() float64 { return math.Inf(1) }

// pulseState tracks, per object, which side of the wavefront it is on.
// Once the wavefront has passed an object (received or missed) it is
// impossible; objects still ahead of it are tracked.
type pulseState struct {
	primed     bool
	source     State
	impossible map[*Obj]bool
	tracked    map[*Obj]bool
}

func (s pulseState) clone() pulseState {
	out := pulseState{primed: s.primed, source: s.source,
		impossible: make(map[*Obj]bool, len(s.impossible)),
		tracked:    make(map[*Obj]bool, len(s.tracked))}
	for o := range s.impossible {
		out.impossible[o] = true
	}
	for o := range s.tracked {
		out.tracked[o] = true
	}
	return out
}

// Init implements the Action interface.
func (p *Pulse) Init() interface{} {
	return pulseState{impossible: map[*Obj]bool{}, tracked: map[*Obj]bool{}}
}

// Act implements the Action interface. The state token is copied before
// mutation so a discarded candidate world leaves the committed token alone.
func (p *Pulse) Act(w WorldView, self *Obj, _ float64, state interface{}) (interface{}, error) {
	st := state.(pulseState).clone()
	selfState, ok := w.StateOf(self)
	if !ok {
		return nil, errors.Errorf("pulse %q has no source state", p.name)
	}
	if !st.primed {
		st.source = selfState
		st.primed = true
	}
	for _, o := range w.Objects() {
		if o == self || st.impossible[o] {
			continue
		}
		cur, ok := w.StateOf(o)
		if !ok {
			continue
		}
		switch Separation(cur.R, st.source.R, w.Eps()) {
		case Lightlike:
			w.AddEvent(Event{
				Name: p.name, Cause: p.Cause(),
				Sender: self, SenderState: selfState,
				Receiver: o, ReceiverState: cur,
			})
			delete(st.tracked, o)
			st.impossible[o] = true
		case Timelike:
			if st.tracked[o] {
				// The scheduler overshot the crossing; a static-receiver
				// estimate of the crossing time seeds the bisection.
				hint := st.source.R.T + cur.R.Spatial().Sub(st.source.R.Spatial()).Norm()
				return nil, &RetrySmallerStep{Hint: &hint}
			}
			// Inside the past lightcone the first time we saw it: the
			// light passed this object before the pulse existed for it.
			st.impossible[o] = true
		case Spacelike:
			st.tracked[o] = true
		}
	}
	return st, nil
}

// DetectCollision watches a set of target objects over the proper-time
// window [tau, until] and emits a "collide" event whenever a target comes
// within 2ε of the owning object. Detection samples only the instants the
// scheduler already evaluates; it does not subdivide time to localize the
// contact.
type DetectCollision struct {
	tau     float64
	until   float64
	targets []*Obj
}

// NewDetectCollision creates a collision detector active on [tau, until].
func NewDetectCollision(tau, until float64, targets ...*Obj) *DetectCollision {
	return &DetectCollision{tau: tau, until: until, targets: targets}
}

// Cause implements the Action interface.
func (d *DetectCollision) Cause() Cause { return Cause{Name: "DetectCollision"} }

// TauStart implements the Action interface.
func (d *DetectCollision) TauStart() float64 { return d.tau }

// TauEnd implements the Action interface.
func (d *DetectCollision) TauEnd() float64 { return d.until }

// Init implements the Action interface. The token is the set of targets
// currently in contact.
func (d *DetectCollision) Init() interface{} { return map[*Obj]bool{} }

// Act implements the Action interface.
func (d *DetectCollision) Act(w WorldView, self *Obj, _ float64, state interface{}) (interface{}, error) {
	generated := state.(map[*Obj]bool)
	next := make(map[*Obj]bool, len(generated))
	for o := range generated {
		next[o] = true
	}
	selfState, ok := w.StateOf(self)
	if !ok {
		return nil, errors.Errorf("collision detector on %s has no state", self)
	}
	for _, tgt := range d.targets {
		ts, ok := w.StateOf(tgt)
		if !ok {
			continue
		}
		dist := selfState.R.Spatial().Sub(ts.R.Spatial()).Norm()
		switch {
		case next[tgt] && dist > 2*w.Eps():
			delete(next, tgt) // separated again
		case !next[tgt] && dist < 2*w.Eps():
			w.AddEvent(Event{
				Name: "collide", Cause: d.Cause(),
				Sender: self, SenderState: selfState,
				Receiver: tgt, ReceiverState: ts,
			})
			next[tgt] = true
		}
	}
	return next, nil
}

// ActionFunc adapts a user callback into an Action.
type ActionFunc struct {
	Name   string
	Silent bool
	Start  float64
	End    float64
	InitFn func() interface{}
	Fn     func(w WorldView, self *Obj, tau float64, state interface{}) (interface{}, error)
}

// Cause implements the Action interface.
func (a *ActionFunc) Cause() Cause { return Cause{Name: a.Name, Silent: a.Silent} }

// TauStart implements the Action interface.
func (a *ActionFunc) TauStart() float64 { return a.Start }

// TauEnd implements the Action interface.
func (a *ActionFunc) TauEnd() float64 { return a.End }

// Init implements the Action interface.
func (a *ActionFunc) Init() interface{} {
	if a.InitFn == nil {
		return nil
	}
	return a.InitFn()
}

// Act implements the Action interface.
func (a *ActionFunc) Act(w WorldView, self *Obj, tau float64, state interface{}) (interface{}, error) {
	if a.Fn == nil {
		return state, nil
	}
	return a.Fn(w, self, tau, state)
}

// finisher is the synthetic point action the scheduler appends at an
// interval action's end edge: firing it completes the target.
type finisher struct {
	target Action
	tau    float64
}

// Cause implements the Action interface. Finishers are always silent; the
// Action-end event is emitted explicitly from Act for non-silent targets.
func (f *finisher) Cause() Cause {
	return Cause{Name: f.target.Cause().Name + "#end", Silent: true}
}

// TauStart implements the Action interface.
func (f *finisher) TauStart() float64 { return f.tau }

// TauEnd implements the Action interface.
func (f *finisher) TauEnd() float64 { return f.tau }

// Init implements the Action interface.
func (f *finisher) Init() interface{} { return nil }

// Act implements the Action interface.
func (f *finisher) Act(w WorldView, self *Obj, _ float64, state interface{}) (interface{}, error) {
	w.Complete(f.target)
	if w.LogActions() && !f.target.Cause().Silent {
		st, _ := w.StateOf(self)
		w.AddEvent(Event{
			Name: "Action-end", Cause: f.target.Cause(),
			Sender: self, SenderState: st,
		})
	}
	return state, nil
}
