package module

import (
	"fmt"
	"os/exec"
	"strings"
)

// Action is the hotkey action kind bound to a module.
type Action string

const (
	ActionRun    Action = "run"
	ActionToggle Action = "toggle"
)

// ParseAction validates an action name from configuration.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRun, ActionToggle:
		return a, nil
	default:
		return "", fmt.Errorf("invalid hotkey action %q, must be one of: run, toggle", s)
	}
}

// Kind discriminates how a module is launched.
type Kind int

const (
	// KindScript modules run through an interpreter with the path as first argument.
	KindScript Kind = iota
	// KindExternalApp modules are executed directly and treated as singletons.
	KindExternalApp
)

func (k Kind) String() string {
	if k == KindExternalApp {
		return "external_app"
	}
	return "script"
}

// DefaultInterpreter runs script modules when neither the module nor the
// global settings name one.
const DefaultInterpreter = "python3"

// Spec describes one configured module. It is immutable after load.
type Spec struct {
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"environment,omitempty"`
	Enabled      bool              `json:"enabled"`
	RunOnStartup bool              `json:"run_on_startup"`
	RunHotkey    bool              `json:"run_hotkey"`
	Hotkey       []string          `json:"hotkey,omitempty"`
	Action       Action            `json:"hotkey_action,omitempty"`
	Kind         Kind              `json:"-"`
	NeedsGUI     bool              `json:"needs_gui"`
	Interpreter  string            `json:"interpreter,omitempty"`
}

// IsExternalApp reports whether the module is a user-facing singleton application.
func (s Spec) IsExternalApp() bool { return s.Kind == KindExternalApp }

// CommandLine returns argv for launching the module. Script modules are run
// through the interpreter (module setting, then fallback, then DefaultInterpreter).
func (s Spec) CommandLine(fallbackInterpreter string) []string {
	if s.Kind == KindExternalApp {
		return append([]string{s.Path}, s.Args...)
	}
	interp := s.Interpreter
	if interp == "" {
		interp = fallbackInterpreter
	}
	if interp == "" {
		interp = DefaultInterpreter
	}
	return append([]string{interp, s.Path}, s.Args...)
}

// BuildCommand constructs an *exec.Cmd for the module without environment or stdio.
func (s Spec) BuildCommand(fallbackInterpreter string) *exec.Cmd {
	argv := s.CommandLine(fallbackInterpreter)
	// #nosec G204 module paths come from the operator's configuration
	return exec.Command(argv[0], argv[1:]...)
}

// LogDirName is the per-module directory name used for launch logs.
func (s Spec) LogDirName() string {
	return strings.ReplaceAll(strings.ToLower(s.Name), " ", "_")
}
