package timewarp

import (
	"math"
	"sort"

	"github.com/gonum/floats"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidMotion is returned when a motion overlaps an existing one
	// in proper time.
	ErrInvalidMotion = errors.New("invalid motion")
	// ErrInvalidAction is returned when an action's interval is reversed or
	// when an action is scheduled in an object's proper-time past.
	ErrInvalidAction = errors.New("invalid action")
)

// Obj is a simulated object: an identity plus its scheduled motions and
// actions. The identity is the name; the world owns the object's state.
// Motions and actions are append-only and must lie in the object's
// proper-time future.
type Obj struct {
	name    string
	motions []Motion
	actions []Action
}

// NewObj creates an object with no motions and no actions. Until a motion is
// scheduled, the object coasts inertially at whatever velocity it was
// introduced with.
func NewObj(name string) *Obj {
	return &Obj{name: name}
}

// Name returns the object's identity.
func (o *Obj) Name() string { return o.name }

func (o *Obj) String() string { return o.name }

// Motions returns the scheduled motions ordered by proper-time start.
func (o *Obj) Motions() []Motion {
	out := make([]Motion, len(o.motions))
	copy(out, o.motions)
	return out
}

// Actions returns the scheduled actions in their stable firing order.
func (o *Obj) Actions() []Action {
	out := make([]Action, len(o.actions))
	copy(out, o.actions)
	return out
}

// AddMotion schedules a motion. No two motions may overlap in proper time;
// intervals are half-open, so a zero-length velocity change may sit exactly
// on a segment boundary.
func (o *Obj) AddMotion(m Motion) error {
	if m.TauEnd() < m.TauStart() {
		return errors.Wrapf(ErrInvalidMotion, "%s ends before it starts", m)
	}
	for _, e := range o.motions {
		if m.TauStart() < e.TauEnd() && e.TauStart() < m.TauEnd() {
			return errors.Wrapf(ErrInvalidMotion, "%s overlaps %s on %s", m, e, o.name)
		}
	}
	i := sort.Search(len(o.motions), func(i int) bool {
		return o.motions[i].TauStart() > m.TauStart()
	})
	o.motions = append(o.motions, nil)
	copy(o.motions[i+1:], o.motions[i:])
	o.motions[i] = m
	return nil
}

// AddAction schedules an action. Actions may overlap arbitrarily; the set
// is kept ordered by (tauStart, tauEnd) with the name as a stable tiebreak.
func (o *Obj) AddAction(a Action) error {
	if a.TauEnd() < a.TauStart() {
		return errors.Wrapf(ErrInvalidAction, "%q ends before it starts", a.Cause().Name)
	}
	i := sort.Search(len(o.actions), func(i int) bool {
		return actionLess(a, o.actions[i])
	})
	o.actions = append(o.actions, nil)
	copy(o.actions[i+1:], o.actions[i:])
	o.actions[i] = a
	return nil
}

func actionLess(a, b Action) bool {
	if a.TauStart() != b.TauStart() {
		return a.TauStart() < b.TauStart()
	}
	if a.TauEnd() != b.TauEnd() {
		return a.TauEnd() < b.TauEnd()
	}
	return a.Cause().Name < b.Cause().Name
}

// advanceToProperTime produces the object's world-frame state at the target
// proper time, walking every scheduled motion that intersects the interval
// and synthesizing inertial coasting for the gaps between them. The
// returned Tau is snapped to the analytic target.
func (o *Obj) advanceToProperTime(s State, tauTarget float64) State {
	if tauTarget <= s.Tau {
		s.Tau = tauTarget
		return s
	}
	cur := s
	for _, m := range o.motions {
		if m.TauEnd() <= s.Tau {
			continue // traversed before this advance began
		}
		if m.TauStart() > tauTarget {
			break
		}
		if m.TauStart() > cur.Tau {
			cur = inertialTail(cur, m.TauStart()-cur.Tau)
		}
		f := comovingFrame(cur)
		st := m.MoveUntilProperTime(f, cur.Tau, math.Min(tauTarget, m.TauEnd()))
		cur = st.Transform(f, Origin)
	}
	if cur.Tau < tauTarget {
		cur = inertialTail(cur, tauTarget-cur.Tau)
	}
	cur.Tau = tauTarget
	return cur
}

// advanceToCoordinateTime is the coordinate-time analogue: it stops when the
// world clock reaches tTarget, crossing as many segments as needed. The
// returned R.T is snapped to the analytic target.
func (o *Obj) advanceToCoordinateTime(s State, tTarget, eps float64) State {
	if tTarget <= s.R.T {
		s.R.T = tTarget
		return s
	}
	cur := s
	for _, m := range o.motions {
		if m.TauEnd() <= s.Tau {
			continue
		}
		if cur.R.T > tTarget || floats.EqualWithinAbs(cur.R.T, tTarget, eps) {
			break
		}
		if m.TauStart() > cur.Tau {
			γ := Gamma(cur.V.Norm())
			if gap := (m.TauStart() - cur.Tau) * γ; cur.R.T+gap >= tTarget {
				cur = inertialTail(cur, (tTarget-cur.R.T)/γ)
				break
			}
			cur = inertialTail(cur, m.TauStart()-cur.Tau)
		}
		f := comovingFrame(cur)
		st := m.MoveUntilCoordinateTime(f, cur.Tau, tTarget)
		cur = st.Transform(f, Origin)
	}
	if cur.R.T < tTarget && !floats.EqualWithinAbs(cur.R.T, tTarget, eps) {
		cur = inertialTail(cur, (tTarget-cur.R.T)/Gamma(cur.V.Norm()))
	}
	cur.R.T = tTarget
	return cur
}

// nextPending returns the first scheduled action that has neither fired its
// start edge nor completed, in the stable action order.
func (o *Obj) nextPending(w *World) Action {
	for _, a := range o.actions {
		if w.completeActions[a] {
			continue
		}
		if _, active := w.activeSet[a]; active {
			continue
		}
		return a
	}
	return nil
}
