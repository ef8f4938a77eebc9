package hotkey

import (
	"errors"
	"testing"

	"github.com/loykin/hotkeyd/internal/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bind(name string, action module.Action, keys ...Key) Binding {
	return Binding{Module: name, Chord: keys, Action: action}
}

func names(bs []Binding) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Module)
	}
	return out
}

// feed plays a sequence and returns the module names fired, in order.
func feed(m *Matcher, evs ...Event) []string {
	var out []string
	for _, ev := range evs {
		out = append(out, names(m.Feed(ev))...)
	}
	return out
}

func TestChordFiresOnceOnCompletion(t *testing.T) {
	m := NewMatcher([]Binding{bind("notes", module.ActionToggle, "ctrl", "n")})
	assert.Empty(t, m.OnKeyDown("ctrl_l"))
	fired := m.OnKeyDown("n")
	require.Len(t, fired, 1)
	assert.Equal(t, "notes", fired[0].Module)
	assert.Equal(t, module.ActionToggle, fired[0].Action)
}

func TestNonMemberKeysIgnored(t *testing.T) {
	m := NewMatcher([]Binding{bind("notes", module.ActionRun, "ctrl", "n")})
	got := feed(m, Down("x"), Down("ctrl"), Down("y"), Up("y"), Down("n"))
	assert.Equal(t, []string{"notes"}, got)
}

func TestHoldingDoesNotRefire(t *testing.T) {
	m := NewMatcher([]Binding{bind("notes", module.ActionRun, "ctrl", "n")})
	got := feed(m, Down("ctrl"), Down("n"), Down("n"), Down("n"), Down("ctrl_r"))
	assert.Equal(t, []string{"notes"}, got, "auto-repeat must not fire again")
}

func TestReleaseAndRepressRefires(t *testing.T) {
	// ctrl stays held; n is released and pressed again
	m := NewMatcher([]Binding{bind("Notes", module.ActionToggle, "ctrl", "n")})
	got := feed(m, Down("ctrl"), Down("n"), Up("n"), Down("n"))
	assert.Equal(t, []string{"Notes", "Notes"}, got)
}

func TestPartialReleaseCancelsProgress(t *testing.T) {
	m := NewMatcher([]Binding{bind("b", module.ActionRun, "ctrl", "alt", "t")})
	got := feed(m,
		Down("ctrl"), Down("alt"), Up("alt"), // partial, then cancel alt
		Down("t"), // ctrl+t only
	)
	assert.Empty(t, got)
	got = feed(m, Down("alt"))
	assert.Equal(t, []string{"b"}, got, "full chord held together fires")
}

func TestReleasePressSameKeyWithoutFullChord(t *testing.T) {
	m := NewMatcher([]Binding{bind("b", module.ActionRun, "ctrl", "shift", "p")})
	got := feed(m, Down("ctrl"), Down("p"), Up("p"), Down("p"), Up("ctrl"), Down("shift"))
	assert.Empty(t, got)
	assert.Equal(t, []string{"b"}, feed(m, Down("ctrl")))
}

func TestLeftRightModifiersMatch(t *testing.T) {
	m := NewMatcher([]Binding{bind("a", module.ActionRun, "shift", "f5")})
	assert.Equal(t, []string{"a"}, feed(m, Down("shift_r"), Down("f5")))
	assert.Empty(t, feed(m, Up("shift_r"), Up("f5"), Down("f5")))
	assert.Equal(t, []string{"a"}, feed(m, Down("shift_l")))
}

func TestOtherModifierSideKeepsKeyHeld(t *testing.T) {
	m := NewMatcher([]Binding{bind("notes", module.ActionToggle, "ctrl", "n")})
	// both ctrl keys down, the right one released: ctrl is still held
	got := feed(m, Down("ctrl_l"), Down("ctrl_r"), Up("ctrl_r"), Down("n"))
	assert.Equal(t, []string{"notes"}, got)

	// releasing the last side clears ctrl
	got = feed(m, Up("n"), Up("ctrl_l"), Down("n"))
	assert.Empty(t, got)
}

func TestReleaseOfUnheldKeyIgnored(t *testing.T) {
	m := NewMatcher([]Binding{bind("notes", module.ActionRun, "ctrl", "n")})
	got := feed(m, Down("ctrl_l"), Up("ctrl_r"), Up("x"), Down("n"))
	assert.Equal(t, []string{"notes"}, got)
}

func TestLetterCaseIsOnePhysicalKey(t *testing.T) {
	m := NewMatcher([]Binding{bind("notes", module.ActionRun, "shift", "n")})
	got := feed(m, Down("shift_l"), Down("N"), Up("n"), Down("n"))
	assert.Equal(t, []string{"notes", "notes"}, got)
}

func TestOverlappingBindingsTrackIndependently(t *testing.T) {
	m := NewMatcher([]Binding{
		bind("small", module.ActionRun, "ctrl", "a"),
		bind("big", module.ActionRun, "ctrl", "shift", "a"),
	})
	got := feed(m, Down("ctrl"), Down("shift"), Down("a"))
	// both complete on the same event, in binding order
	assert.Equal(t, []string{"small", "big"}, got)

	got = feed(m, Up("shift"), Up("a"), Down("a"))
	assert.Equal(t, []string{"small"}, got)
	got = feed(m, Down("shift"))
	assert.Equal(t, []string{"big"}, got, "small's firing must not clear big's progress")
}

func TestMultipleFiresDeterministicOrder(t *testing.T) {
	bs := []Binding{
		bind("z", module.ActionRun, "f1"),
		bind("a", module.ActionToggle, "f1"),
		bind("m", module.ActionRun, "f1"),
	}
	for i := 0; i < 20; i++ {
		m := NewMatcher(bs)
		assert.Equal(t, []string{"z", "a", "m"}, names(m.OnKeyDown("f1")))
	}
}

func TestBuildBindingsDropsBadModules(t *testing.T) {
	specs := []module.Spec{
		{Name: "good", Enabled: true, RunHotkey: true, Hotkey: []string{"<ctrl>", "n"}, Action: module.ActionToggle},
		{Name: "badkey", Enabled: true, RunHotkey: true, Hotkey: []string{"<ctrl>", "<hyper>"}, Action: module.ActionRun},
		{Name: "nokeys", Enabled: true, RunHotkey: true, Action: module.ActionRun},
		{Name: "badaction", Enabled: true, RunHotkey: true, Hotkey: []string{"x"}, Action: "launch"},
		{Name: "disabled", Enabled: false, RunHotkey: true, Hotkey: []string{"y"}, Action: module.ActionRun},
		{Name: "startup", Enabled: true, RunOnStartup: true, Hotkey: []string{"z"}, Action: module.ActionRun},
		{Name: "good2", Enabled: true, RunHotkey: true, Hotkey: []string{"<f9>"}, Action: module.ActionRun},
	}
	bs, errs := BuildBindings(specs)
	assert.Equal(t, []string{"good", "good2"}, names(bs))
	require.Len(t, errs, 3)
	assert.Equal(t, "badkey", errs[0].Module)
	assert.True(t, errors.Is(errs[0], ErrUnknownSpecial))
	assert.Equal(t, "nokeys", errs[1].Module)
	assert.True(t, errors.Is(errs[1], ErrEmptyChord))
	assert.Equal(t, "badaction", errs[2].Module)

	m := NewMatcher(bs)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"good2"}, feed(m, Down("f9")))
}

func TestNotesScenarioAlternates(t *testing.T) {
	m := NewMatcher([]Binding{bind("Notes", module.ActionToggle, "ctrl", "n")})
	state := false // stopped
	for _, ev := range []Event{Down("ctrl"), Down("n"), Up("n"), Down("n")} {
		for range m.Feed(ev) {
			state = !state
		}
	}
	assert.False(t, state, "two fires: stopped -> running -> stopped")
}

func TestBuildBindingsDropsKeysTheKeyboardCannotReport(t *testing.T) {
	specs := []module.Spec{
		{Name: "question", Enabled: true, RunHotkey: true, Hotkey: []string{"<ctrl>", "?"}, Action: module.ActionRun},
		{Name: "altgr", Enabled: true, RunHotkey: true, Hotkey: []string{"<alt_gr>", "x"}, Action: module.ActionRun},
		{Name: "slash", Enabled: true, RunHotkey: true, Hotkey: []string{"<ctrl>", "<shift>", "/"}, Action: module.ActionRun},
	}
	bs, errs := BuildBindings(specs)
	assert.Equal(t, []string{"slash"}, names(bs))
	require.Len(t, errs, 2)
	assert.Equal(t, "question", errs[0].Module)
	assert.ErrorIs(t, errs[0], ErrUnsupportedKey)
	assert.Equal(t, "altgr", errs[1].Module)
	assert.ErrorIs(t, errs[1], ErrUnknownSpecial)
}
