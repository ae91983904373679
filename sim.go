package timewarp

import (
	"math"
	"os"
	"regexp"
	"sync"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/floats"
	"github.com/pkg/errors"
)

// ErrExcessiveRetries is returned when the adaptive bisection of one
// simulation instant exceeds the retry budget.
var ErrExcessiveRetries = errors.New("excessive retries on one instant")

// Observer is called with a read-only view after every committed time step.
// Returning false stops the simulation early.
type Observer func(View) bool

// simLogInit initializes the engine logger.
func simLogInit(name string) kitlog.Logger {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	return kitlog.With(klog, "sim", name)
}

// Simulation owns a world and advances it through coordinate time, firing
// scheduled actions in causal order. It is single-threaded cooperative: all
// action callbacks run synchronously inside SimulateTo.
type Simulation struct {
	world      *World
	eps        float64
	maxRetries int
	logActions bool
	logger     kitlog.Logger

	observers []obsEntry
	nextObsID int

	exportChan chan Event
	exported   int
	wg         sync.WaitGroup
}

type obsEntry struct {
	id int
	fn Observer
}

// Option configures a Simulation beyond the loaded defaults.
type Option func(*Simulation)

// WithEps overrides the floating-point tolerance.
func WithEps(eps float64) Option {
	return func(s *Simulation) { s.eps = eps }
}

// WithMaxRetries overrides the bisection retry budget per instant.
func WithMaxRetries(n int) Option {
	return func(s *Simulation) { s.maxRetries = n }
}

// WithActionLogging toggles the automatic Action / Action-end events.
func WithActionLogging(on bool) Option {
	return func(s *Simulation) { s.logActions = on }
}

// WithLogger replaces the engine logger.
func WithLogger(l kitlog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithExport streams every committed event to the configured writer.
func WithExport(conf ExportConfig) Option {
	return func(s *Simulation) {
		if conf.IsUseless() {
			return
		}
		s.exportChan = make(chan Event, 1000)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			StreamEvents(conf, s.exportChan)
		}()
	}
}

// NewSimulation creates an engine at coordinate time zero with no objects.
// Defaults come from the timewarp configuration (see config.go) and may be
// overridden per engine with options.
func NewSimulation(name string, opts ...Option) *Simulation {
	conf := twConfig()
	s := &Simulation{
		eps:        conf.eps,
		maxRetries: conf.maxRetries,
		logActions: conf.logActions,
		logger:     simLogInit(name),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.world = newWorld(s.eps, s.logActions)
	return s
}

// AddObject introduces an object at the current coordinate time with the
// given world-frame position, velocity and proper clock reading. r.T must
// equal the current time within ε; any other time, earlier or later, is
// rejected with ErrPastIntroduction.
func (s *Simulation) AddObject(o *Obj, r Vector4, v Vector3, tau float64) error {
	if v.Norm2() >= 1 {
		return errors.Wrapf(ErrLightspeedFrame, "cannot add %s", o)
	}
	if !floats.EqualWithinAbs(r.T, s.world.now, s.eps) {
		return errors.Wrapf(ErrPastIntroduction, "%s at t=%f, now=%f", o, r.T, s.world.now)
	}
	r.T = s.world.now
	s.world.objects = append(s.world.objects, o)
	s.world.space[o] = State{R: r, V: v, Tau: tau}
	return nil
}

// World returns a read-only view of the committed world.
func (s *Simulation) World() View {
	return s.world
}

// Now returns the committed coordinate time.
func (s *Simulation) Now() float64 {
	return s.world.now
}

// RegisterObserver adds an observer and returns a handle for removal.
func (s *Simulation) RegisterObserver(fn Observer) int {
	s.nextObsID++
	s.observers = append(s.observers, obsEntry{s.nextObsID, fn})
	return s.nextObsID
}

// UnregisterObserver removes an observer by its handle.
func (s *Simulation) UnregisterObserver(id int) {
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Close flushes and stops the export stream, if one was configured.
func (s *Simulation) Close() {
	if s.exportChan != nil {
		close(s.exportChan)
		s.exportChan = nil
		s.wg.Wait()
	}
}

// SimulateTo advances the world to the horizon, firing actions in
// non-decreasing world-frame coordinate-time order.
//
// Each outer iteration selects the candidate that fires next: for every
// object, the world-frame time of its earliest pending action's start. The
// world is then advanced to that candidate time inside a DeltaWorld, every
// active action plus the candidate is invoked against it, and the candidate
// world is committed — unless an action asks for a smaller step, in which
// case the interval is bisected adaptively and re-evaluated.
func (s *Simulation) SimulateTo(tHorizon float64) error {
	s.logger.Log("level", "info", "subsys", "sim", "status", "simulating", "from", s.world.now, "to", tHorizon)
	for s.world.now < tHorizon {
		// Earliest pending action across all objects, ties broken by the
		// smaller world time and then by insertion order.
		var (
			eObj    *Obj
			eAction Action
			eState  State
			have    bool
		)
		for _, o := range s.world.objects {
			a := o.nextPending(s.world)
			if a == nil {
				continue
			}
			st := o.advanceToProperTime(s.world.space[o], a.TauStart())
			if !have || st.R.T < eState.R.T {
				eObj, eAction, eState, have = o, a, st, true
			}
		}
		if have && eState.R.T > tHorizon {
			have = false
		}

		// Fast path: nothing fires in the window and nothing is active.
		if !have && len(s.world.active) == 0 {
			for _, o := range s.world.objects {
				s.world.space[o] = o.advanceToCoordinateTime(s.world.space[o], tHorizon, s.eps)
			}
			s.world.now = tHorizon
			if !s.notifyObservers() {
				return nil
			}
			break
		}

		targetTime := tHorizon
		if have {
			targetTime = eState.R.T
		}
		fallback := s.world.now
		evaluated := targetTime
		retries := 0
		var finalEvaluated float64
		for {
			dw := newDeltaWorld(s.world, evaluated)
			for _, o := range s.world.objects {
				if have && o == eObj && evaluated == eState.R.T {
					dw.space[o] = eState
				} else {
					dw.space[o] = o.advanceToCoordinateTime(s.world.space[o], evaluated, s.eps)
				}
			}

			// Run the active actions first, then the candidate. The
			// candidate only runs when the evaluation sits on its own
			// instant: at bisected times it has not fired yet, and running
			// it early would replay its scheduling side effects.
			run := append([]activeEntry(nil), s.world.active...)
			if have && evaluated == eState.R.T {
				run = append(run, activeEntry{eAction, eObj})
			}
			var retry *RetrySmallerStep
			for _, e := range run {
				tok := dw.stateOrInit(e.action)
				st, _ := dw.StateOf(e.owner)
				next, err := e.action.Act(dw, e.owner, st.Tau, tok)
				if err != nil {
					if r, ok := asRetry(err); ok {
						retry = r
						break
					}
					return errors.Wrapf(err, "action %q failed at t=%f", e.action.Cause().Name, evaluated)
				}
				dw.states[e.action] = next
			}

			if retry != nil {
				retries++
				if retries > s.maxRetries {
					s.logger.Log("level", "critical", "subsys", "sim", "status", "excessive retries", "t", evaluated)
					return errors.Wrapf(ErrExcessiveRetries, "at t=%f after %d attempts", evaluated, retries-1)
				}
				if math.Abs(fallback-evaluated) >= s.eps {
					span := evaluated - fallback
					targetTime = evaluated
					if retry.Hint != nil && *retry.Hint > fallback && *retry.Hint < evaluated {
						evaluated = math.Min(math.Max(*retry.Hint, fallback+0.1*span), evaluated-0.1*span)
					} else {
						evaluated = fallback + span/2
					}
					continue
				}
				// The interval is below tolerance: no further subdivision
				// can help, so commit this evaluation as it stands.
				s.logger.Log("level", "warning", "subsys", "sim", "status", "insufficient precision", "t", evaluated, "span", evaluated-fallback)
			}

			s.world = dw.applyAll()
			s.flushExport()
			retries = 0 // the budget is per instant
			if evaluated < targetTime {
				// A threshold event forced us below the target; with it
				// committed, try the original target again.
				fallback = evaluated
				evaluated = targetTime
				continue
			}
			finalEvaluated = evaluated
			break
		}

		// The candidate fired at its own instant: handle its edges.
		if have && finalEvaluated == eState.R.T {
			if eAction.TauStart() == eAction.TauEnd() {
				s.world.complete(eAction)
			} else {
				s.world.activate(eAction, eObj)
				if !math.IsInf(eAction.TauEnd(), 1) {
					if err := eObj.AddAction(&finisher{target: eAction, tau: eAction.TauEnd()}); err != nil {
						return err
					}
				}
			}
			if s.logActions && !eAction.Cause().Silent {
				s.world.events = append(s.world.events, Event{
					Name: "Action", Cause: eAction.Cause(),
					Sender: eObj, SenderState: eState,
				})
				s.flushExport()
				s.logger.Log("level", "debug", "subsys", "action", "fired", eAction.Cause().Name, "obj", eObj, "t", eState.R.T, "τ", eState.Tau)
			}
		}

		if !s.notifyObservers() {
			return nil
		}
	}
	s.logger.Log("level", "notice", "subsys", "sim", "status", "finished", "now", s.world.now, "events", len(s.world.events))
	return nil
}

func (s *Simulation) notifyObservers() bool {
	for _, e := range s.observers {
		if !e.fn(s.world) {
			s.logger.Log("level", "notice", "subsys", "sim", "status", "stopped by observer", "now", s.world.now)
			return false
		}
	}
	return true
}

func (s *Simulation) flushExport() {
	if s.exportChan == nil {
		return
	}
	for ; s.exported < len(s.world.events); s.exported++ {
		s.exportChan <- s.world.events[s.exported]
	}
}

// stateOrInit returns the action's state token, creating it via the
// action's initializer on first fire. A token created in a discarded
// candidate world is created anew on the next evaluation.
func (dw *DeltaWorld) stateOrInit(a Action) interface{} {
	if s, ok := dw.states[a]; ok {
		return s
	}
	if s, ok := dw.base.actionStates[a]; ok {
		return s
	}
	tok := a.Init()
	dw.states[a] = tok
	return tok
}

// Events returns the committed event log.
func (s *Simulation) Events() []Event {
	return s.world.Events()
}

// EventsWhere returns the events matching an arbitrary predicate, in log
// order.
func (s *Simulation) EventsWhere(pred func(Event) bool) []Event {
	var out []Event
	for _, e := range s.world.events {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// EventsByName returns the events with exactly the given name.
func (s *Simulation) EventsByName(name string) []Event {
	return s.EventsWhere(func(e Event) bool { return e.Name == name })
}

// EventsByNameMatch returns the events whose name matches the expression.
func (s *Simulation) EventsByNameMatch(re *regexp.Regexp) []Event {
	return s.EventsWhere(func(e Event) bool { return re.MatchString(e.Name) })
}

// EventsByCause returns the events whose cause carries the given name.
func (s *Simulation) EventsByCause(name string) []Event {
	return s.EventsWhere(func(e Event) bool { return e.Cause.Name == name })
}

// EventsBySender returns the events originating from the given object.
func (s *Simulation) EventsBySender(o *Obj) []Event {
	return s.EventsWhere(func(e Event) bool { return e.Sender == o })
}

// EventsByReceiver returns the events received by the given object.
func (s *Simulation) EventsByReceiver(o *Obj) []Event {
	return s.EventsWhere(func(e Event) bool { return e.Receiver == o })
}

// EventsBefore returns the events committed at or before t.
func (s *Simulation) EventsBefore(t float64) []Event {
	return s.EventsWhere(func(e Event) bool { return e.SenderState.R.T <= t })
}

// EventsAfter returns the events committed at or after t.
func (s *Simulation) EventsAfter(t float64) []Event {
	return s.EventsWhere(func(e Event) bool { return e.SenderState.R.T >= t })
}

// EventsNear returns the events within eps of the 4-position r, judging the
// transmissions (events with a receiver) by their reception locus.
func (s *Simulation) EventsNear(r Vector4, eps float64) []Event {
	return s.EventsWhere(func(e Event) bool {
		at := e.SenderState.R
		if e.Receiver != nil {
			at = e.ReceiverState.R
		}
		d := at.Sub(r)
		return math.Abs(d.T) <= eps && d.Spatial().Norm() <= eps
	})
}

// EventsByProperTime returns the events whose receiving clock (the sender's
// when there is no receiver) reads within [min, max].
func (s *Simulation) EventsByProperTime(min, max float64) []Event {
	return s.EventsWhere(func(e Event) bool {
		tau := e.SenderState.Tau
		if e.Receiver != nil {
			tau = e.ReceiverState.Tau
		}
		return tau >= min && tau <= max
	})
}
