package hotkey

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/loykin/hotkeyd/internal/module"
)

// Binding ties a chord to an action on a module.
type Binding struct {
	Module string
	Chord  []Key
	Action module.Action
}

func (b Binding) String() string {
	return fmt.Sprintf("%s -> %s %s", FormatChord(b.Chord), b.Action, b.Module)
}

// RegistrationError reports a module whose binding was dropped.
type RegistrationError struct {
	Module string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("hotkey registration for module %q: %v", e.Module, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// BuildBindings derives bindings from the enabled hotkey modules. A module with a
// missing chord, an unknown key, or an invalid action is skipped and reported;
// the others are unaffected.
func BuildBindings(specs []module.Spec) ([]Binding, []*RegistrationError) {
	var (
		out  []Binding
		errs []*RegistrationError
	)
	for _, s := range specs {
		if !s.Enabled || !s.RunHotkey || s.RunOnStartup {
			continue
		}
		chord, err := ParseChord(s.Hotkey)
		if err != nil {
			errs = append(errs, &RegistrationError{Module: s.Name, Err: err})
			continue
		}
		action, err := module.ParseAction(string(s.Action))
		if err != nil {
			errs = append(errs, &RegistrationError{Module: s.Name, Err: err})
			continue
		}
		out = append(out, Binding{Module: s.Name, Chord: chord, Action: action})
	}
	return out, errs
}

type chordState struct {
	binding Binding
	need    map[Key]struct{}
	held    map[Key]struct{}
}

// Matcher turns a stream of key events into completed bindings. It holds no
// locks; feed it from a single goroutine.
type Matcher struct {
	states []*chordState
	// physical keys currently down, and how many of them map to each
	// normalized key
	down  map[Key]struct{}
	holds map[Key]int
}

// NewMatcher creates a matcher over bindings. Iteration and firing order follow
// the order of bindings.
func NewMatcher(bindings []Binding) *Matcher {
	m := &Matcher{
		states: make([]*chordState, 0, len(bindings)),
		down:   make(map[Key]struct{}),
		holds:  make(map[Key]int),
	}
	for _, b := range bindings {
		if len(b.Chord) == 0 {
			continue
		}
		need := make(map[Key]struct{}, len(b.Chord))
		for _, k := range b.Chord {
			need[Normalize(k)] = struct{}{}
		}
		m.states = append(m.states, &chordState{binding: b, need: need, held: make(map[Key]struct{}, len(need))})
	}
	return m
}

// Len returns the number of active bindings.
func (m *Matcher) Len() int { return len(m.states) }

// Bindings returns the active bindings in firing order.
func (m *Matcher) Bindings() []Binding {
	out := make([]Binding, len(m.states))
	for i, st := range m.states {
		out[i] = st.binding
	}
	return out
}

// Feed consumes one event.
func (m *Matcher) Feed(ev Event) []Binding {
	if ev.Pressed {
		return m.OnKeyDown(ev.Key)
	}
	return m.OnKeyUp(ev.Key)
}

// physical identifies a raw key by side: ctrl_l and ctrl_r stay distinct,
// letter case does not.
func physical(k Key) Key {
	if utf8.RuneCountInString(string(k)) == 1 {
		return Normalize(k)
	}
	return Key(strings.ToLower(string(k)))
}

// OnKeyDown records a press and returns the bindings whose chord it completed.
// A press of a key that is already held (auto-repeat, or the other side of a
// held modifier) never fires, so a chord fires again only after its key is
// fully released and pressed anew.
func (m *Matcher) OnKeyDown(k Key) []Binding {
	p := physical(k)
	if _, repeat := m.down[p]; repeat {
		return nil
	}
	m.down[p] = struct{}{}
	n := Normalize(k)
	m.holds[n]++
	if m.holds[n] > 1 {
		return nil
	}
	var fired []Binding
	for _, st := range m.states {
		if _, member := st.need[n]; !member {
			continue
		}
		st.held[n] = struct{}{}
		if len(st.held) == len(st.need) {
			fired = append(fired, st.binding)
		}
	}
	return fired
}

// OnKeyUp releases k. A normalized key leaves every chord once its last
// physical variant is released. Releases never fire.
func (m *Matcher) OnKeyUp(k Key) []Binding {
	p := physical(k)
	if _, ok := m.down[p]; !ok {
		return nil
	}
	delete(m.down, p)
	n := Normalize(k)
	if m.holds[n]--; m.holds[n] > 0 {
		return nil
	}
	delete(m.holds, n)
	for _, st := range m.states {
		delete(st.held, n)
	}
	return nil
}
