package module

// Registry is the read-only set of configured modules, keyed by name and kept
// in configuration order.
type Registry struct {
	order  []string
	byName map[string]Spec
}

// NewRegistry builds a registry. A later spec with a duplicate name is ignored.
func NewRegistry(specs []Spec) *Registry {
	r := &Registry{byName: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if _, dup := r.byName[s.Name]; dup {
			continue
		}
		r.order = append(r.order, s.Name)
		r.byName[s.Name] = s
	}
	return r
}

// Get returns the spec registered under name.
func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// All returns every spec in configuration order.
func (r *Registry) All() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Startup returns the enabled specs that launch when the daemon starts.
func (r *Registry) Startup() []Spec {
	var out []Spec
	for _, s := range r.All() {
		if s.Enabled && s.RunOnStartup {
			out = append(out, s)
		}
	}
	return out
}

// Hotkeyed returns the enabled specs that want a hotkey binding.
func (r *Registry) Hotkeyed() []Spec {
	var out []Spec
	for _, s := range r.All() {
		if s.Enabled && s.RunHotkey && !s.RunOnStartup {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }
