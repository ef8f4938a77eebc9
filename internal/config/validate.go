package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/loykin/hotkeyd/internal/hotkey"
	"github.com/loykin/hotkeyd/internal/module"
)

// UnnamedModule names entries that have no name.
const UnnamedModule = "Unnamed Module"

var (
	ErrMissingName   = errors.New("'name' is missing")
	ErrDuplicateName = errors.New("duplicate module name")
	ErrMissingPath   = errors.New("enabled but 'path' is missing")
	ErrRelativePath  = errors.New("'path' is not an absolute path")
	ErrBothTriggers  = errors.New("configured for both 'run_on_startup' and 'run_hotkey'")
	ErrNoTrigger     = errors.New("enabled but has neither 'run_on_startup' nor 'run_hotkey' set")
	ErrHotkeyShape   = errors.New("'hotkey' must be a list of keys or a '+'-joined string")
)

// Defect is a configuration problem with one module. An error-level defect
// disables the module; a warning leaves it as configured.
type Defect struct {
	Module string
	Level  slog.Level
	Err    error
}

func (d Defect) Error() string { return fmt.Sprintf("module %q: %v", d.Module, d.Err) }

func (d Defect) Unwrap() error { return d.Err }

// Disables reports whether the defect disabled the module.
func (d Defect) Disables() bool { return d.Level >= slog.LevelError }

// Modules converts the scripts list into module specs. Invalid enabled modules
// are returned disabled together with the defects explaining why. Duplicate
// names after the first are dropped.
func (c *Config) Modules() ([]module.Spec, []Defect) {
	var (
		specs   []module.Spec
		defects []Defect
		seen    = map[string]bool{}
	)
	for i, sc := range c.Scripts {
		spec, ds := c.toSpec(i, sc)
		if seen[spec.Name] {
			defects = append(defects, Defect{Module: spec.Name, Level: slog.LevelError, Err: ErrDuplicateName})
			continue
		}
		seen[spec.Name] = true
		defects = append(defects, ds...)
		specs = append(specs, spec)
	}
	return specs, defects
}

func (c *Config) toSpec(i int, sc Script) (module.Spec, []Defect) {
	var defects []Defect
	name := strings.TrimSpace(sc.Name)
	fail := func(err error) {
		defects = append(defects, Defect{Module: name, Level: slog.LevelError, Err: err})
	}
	warn := func(err error) {
		defects = append(defects, Defect{Module: name, Level: slog.LevelWarn, Err: err})
	}

	if name == "" {
		name = fmt.Sprintf("%s %d", UnnamedModule, i+1)
		if sc.Enabled {
			fail(ErrMissingName)
		}
	}

	keys, err := hotkeyTokens(sc.Hotkey)
	if err != nil {
		warn(err)
	}

	kind := module.KindScript
	if sc.IsExternalApp {
		kind = module.KindExternalApp
	}
	spec := module.Spec{
		Name:         name,
		Path:         sc.Path,
		Args:         sc.Args,
		Env:          sc.Environment,
		Enabled:      sc.Enabled,
		RunOnStartup: sc.RunOnStartup,
		RunHotkey:    sc.RunHotkey,
		Hotkey:       keys,
		Action:       module.Action(strings.ToLower(strings.TrimSpace(sc.HotkeyAction))),
		Kind:         kind,
		NeedsGUI:     sc.NeedsGUI,
		Interpreter:  sc.Interpreter,
	}

	if !spec.Enabled {
		return spec, defects
	}
	switch {
	case strings.TrimSpace(spec.Path) == "":
		fail(ErrMissingPath)
	case !filepath.IsAbs(spec.Path):
		fail(fmt.Errorf("%w: %q", ErrRelativePath, spec.Path))
	case spec.RunOnStartup && spec.RunHotkey:
		fail(ErrBothTriggers)
	case !spec.RunOnStartup && !spec.RunHotkey:
		warn(ErrNoTrigger)
	}
	for _, d := range defects {
		if d.Disables() {
			spec.Enabled = false
		}
	}
	return spec, defects
}

// hotkeyTokens accepts ["<ctrl>", "n"] or "<ctrl>+n".
func hotkeyTokens(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return hotkey.SplitChord(t), nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %v", ErrHotkeyShape, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrHotkeyShape, v)
	}
}
