package timewarp

// Event is one entry of the causal log. SenderState is the originating
// object's state at the instant the event was committed, so SenderState.R.T
// is the event's coordinate time; for transmissions (pulse receptions,
// collisions) ReceiverState carries the locus and clock of the receiving
// end.
type Event struct {
	Name          string
	Cause         Cause
	Sender        *Obj
	SenderState   State
	Receiver      *Obj
	ReceiverState State
}

// View is the read-only capability set over a world: what observers and
// event queries see.
type View interface {
	// Now is the world-frame coordinate time.
	Now() float64
	// Eps is the simulation's floating-point tolerance.
	Eps() float64
	// LogActions reports whether action start/end edges produce events.
	LogActions() bool
	// Objects lists the simulated objects in insertion order.
	Objects() []*Obj
	// Events lists the committed events in emission order.
	Events() []Event
	// StateOf returns the object's current state in the world frame.
	StateOf(o *Obj) (State, bool)
	// StateInFrame returns the object's current state expressed in f.
	StateInFrame(o *Obj, f Frame) (State, bool)
	// ActionState returns the action's opaque state token, nil before the
	// first fire.
	ActionState(a Action) interface{}
	// IsActive reports whether the action's interval is being processed.
	IsActive(a Action) bool
	// IsComplete reports whether the action's end edge has fired.
	IsComplete(a Action) bool
}

// WorldView is what an action callback sees: the read capabilities plus
// writes buffered into the candidate world.
type WorldView interface {
	View
	// AddEvent appends an event to the log.
	AddEvent(e Event)
	// AddAction schedules an action on an object; it must lie in the
	// object's proper-time future.
	AddAction(o *Obj, a Action) error
	// AddMotion schedules a motion on an object; it must lie in the
	// object's proper-time future and may not overlap existing motions.
	AddMotion(o *Obj, m Motion) error
	// AddOrSetObject introduces an object, or re-pins an existing one.
	// Introductions strictly before now fail; introductions after now are
	// rewritten to an at-now introduction inside the caller's lightcone.
	AddOrSetObject(o *Obj, s State) error
	// SetActionState replaces the calling action's opaque state token.
	SetActionState(a Action, state interface{})
	// Complete marks an action's end edge as fired.
	Complete(a Action)
	// Deactivate removes an action from the active set without completing.
	Deactivate(a Action)
}

type activeEntry struct {
	action Action
	owner  *Obj
}

// World is the committed simulation state at one coordinate time.
type World struct {
	now             float64
	objects         []*Obj
	space           map[*Obj]State
	active          []activeEntry
	activeSet       map[Action]*Obj
	completeActions map[Action]bool
	actionStates    map[Action]interface{}
	events          []Event

	eps        float64
	logActions bool
}

func newWorld(eps float64, logActions bool) *World {
	return &World{
		space:           make(map[*Obj]State),
		activeSet:       make(map[Action]*Obj),
		completeActions: make(map[Action]bool),
		actionStates:    make(map[Action]interface{}),
		eps:             eps,
		logActions:      logActions,
	}
}

func (w *World) clone() *World {
	out := &World{
		now:             w.now,
		objects:         append([]*Obj(nil), w.objects...),
		space:           make(map[*Obj]State, len(w.space)),
		active:          append([]activeEntry(nil), w.active...),
		activeSet:       make(map[Action]*Obj, len(w.activeSet)),
		completeActions: make(map[Action]bool, len(w.completeActions)),
		actionStates:    make(map[Action]interface{}, len(w.actionStates)),
		events:          append([]Event(nil), w.events...),
		eps:             w.eps,
		logActions:      w.logActions,
	}
	for o, s := range w.space {
		out.space[o] = s
	}
	for a, o := range w.activeSet {
		out.activeSet[a] = o
	}
	for a := range w.completeActions {
		out.completeActions[a] = true
	}
	for a, s := range w.actionStates {
		out.actionStates[a] = s
	}
	return out
}

func (w *World) activate(a Action, owner *Obj) {
	if _, ok := w.activeSet[a]; ok {
		return
	}
	w.active = append(w.active, activeEntry{a, owner})
	w.activeSet[a] = owner
}

func (w *World) complete(a Action) {
	w.completeActions[a] = true
	w.dropActive(a)
}

func (w *World) dropActive(a Action) {
	if _, ok := w.activeSet[a]; !ok {
		return
	}
	delete(w.activeSet, a)
	for i, e := range w.active {
		if e.action == a {
			w.active = append(w.active[:i], w.active[i+1:]...)
			break
		}
	}
}

// Now implements the View interface.
func (w *World) Now() float64 { return w.now }

// Eps implements the View interface.
func (w *World) Eps() float64 { return w.eps }

// LogActions implements the View interface.
func (w *World) LogActions() bool { return w.logActions }

// Objects implements the View interface.
func (w *World) Objects() []*Obj {
	return append([]*Obj(nil), w.objects...)
}

// Events implements the View interface.
func (w *World) Events() []Event {
	return append([]Event(nil), w.events...)
}

// StateOf implements the View interface.
func (w *World) StateOf(o *Obj) (State, bool) {
	s, ok := w.space[o]
	return s, ok
}

// StateInFrame implements the View interface.
func (w *World) StateInFrame(o *Obj, f Frame) (State, bool) {
	s, ok := w.space[o]
	if !ok {
		return State{}, false
	}
	return s.Transform(Origin, f), true
}

// ActionState implements the View interface.
func (w *World) ActionState(a Action) interface{} {
	return w.actionStates[a]
}

// IsActive implements the View interface.
func (w *World) IsActive(a Action) bool {
	_, ok := w.activeSet[a]
	return ok
}

// IsComplete implements the View interface.
func (w *World) IsComplete(a Action) bool {
	return w.completeActions[a]
}
