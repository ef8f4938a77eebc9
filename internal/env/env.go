package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var Var // global variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.env = parse(os.Environ())
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetAll applies "KEY=VALUE" entries as global variables. Entries without '='
// or with an empty key are skipped.
func (e *Env) SetAll(kvs []string) {
	for k, v := range parse(kvs) {
		e.Set(k, v)
	}
}

// Compose builds the environment for one module:
// base = OS env (or cached), then global e.Var, then perModule overrides.
// Values may reference ${VAR} from the composed map (single pass, no recursion;
// unknown references are left as written).
func (e *Env) Compose(perModule map[string]string) Var {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(perModule))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k, v := range perModule {
		if k == "" {
			continue
		}
		m[k] = v
	}
	var refs *strings.Replacer
	expanded := make(Var, len(m))
	for k, v := range m {
		if strings.Contains(v, "${") {
			if refs == nil {
				refs = references(m)
			}
			v = refs.Replace(v)
		}
		expanded[k] = v
	}
	return expanded
}

// List renders the variables as sorted "K=V" entries for exec.Cmd.Env.
func (v Var) List() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+v[k])
	}
	return out
}

// DefaultDisplay is used for GUI modules when nothing provides DISPLAY.
const DefaultDisplay = ":0"

// WithGUI fills in what an X11 client needs when the daemon runs as a user
// service without a session environment. It never fails; problems are returned
// as warnings and the launch goes ahead.
func (v Var) WithGUI() []string {
	var warns []string
	if v["DISPLAY"] == "" {
		v["DISPLAY"] = DefaultDisplay
	}
	if v["XAUTHORITY"] != "" {
		return warns
	}
	home := v["HOME"]
	if home == "" {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return append(warns, "HOME is not set, cannot locate .Xauthority; the GUI module may fail to connect to the display")
	}
	xauth := filepath.Join(home, ".Xauthority")
	if _, err := os.Stat(xauth); err != nil {
		return append(warns, fmt.Sprintf(".Xauthority not found at %s; the GUI module may fail to connect to the display", xauth))
	}
	v["XAUTHORITY"] = xauth
	return warns
}

func parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// references substitutes ${K} with the unexpanded value of K. The replacer
// makes one left-to-right pass, so substituted text is never expanded again.
func references(m Var) *strings.Replacer {
	pairs := make([]string, 0, 2*len(m))
	for k, v := range m {
		pairs = append(pairs, "${"+k+"}", v)
	}
	return strings.NewReplacer(pairs...)
}
