package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/hotkeyd/internal/auth"
	"github.com/loykin/hotkeyd/internal/dispatch"
	"github.com/loykin/hotkeyd/internal/metrics"
	"github.com/loykin/hotkeyd/internal/module"
	"github.com/loykin/hotkeyd/internal/process"
)

// Dispatcher applies run, toggle and stop. Every mutating route goes through
// it so API calls are serialized with hotkey actions.
type Dispatcher interface {
	Dispatch(name string, action module.Action) (dispatch.Outcome, error)
	Stop(name string) (process.StopOutcome, error)
}

// Supervisor exposes the process table to the API.
type Supervisor interface {
	IsRunning(name string) bool
	Instances(name string) []process.Status
}

// Router provides embeddable HTTP handlers for controlling modules.
// Endpoints:
//
//	GET  {basePath}/modules
//	GET  {basePath}/modules/:name
//	POST {basePath}/modules/:name/run
//	POST {basePath}/modules/:name/toggle
//	POST {basePath}/modules/:name/stop
//	GET  {basePath}/metrics            (when metrics are enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	reg      *module.Registry
	disp     Dispatcher
	sup      Supervisor
	basePath string
	metrics  http.Handler
	auth     *auth.Middleware
	sample   func(pid int32) (metrics.Usage, error)
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(reg *module.Registry, disp Dispatcher, sup Supervisor, basePath string) *Router {
	return &Router{
		reg:      reg,
		disp:     disp,
		sup:      sup,
		basePath: sanitizeBase(basePath),
		sample:   metrics.Sample,
	}
}

// WithMetrics serves h at {basePath}/metrics.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// WithAuth requires bearer tokens: GET routes need read access, POST routes
// need control access.
func (r *Router) WithAuth(m *auth.Middleware) *Router {
	r.auth = m
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(r.auth.GinAuth())
	read, control := r.auth.GinRequire(auth.ActionRead), r.auth.GinRequire(auth.ActionControl)
	group.GET("/modules", read, r.handleList)
	group.GET("/modules/:name", read, r.handleGet)
	group.POST("/modules/:name/run", control, r.handleAction(module.ActionRun))
	group.POST("/modules/:name/toggle", control, r.handleAction(module.ActionToggle))
	group.POST("/modules/:name/stop", control, r.handleStop)
	if r.metrics != nil {
		group.GET("/metrics", read, gin.WrapH(r.metrics))
	}
	return g
}

// NewServer binds addr and serves the router in the background, over TLS when
// tc is non-nil. Bind errors are returned synchronously; call Shutdown on the
// result to stop it.
func NewServer(addr string, r *Router, tc *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		ln = tls.NewListener(ln, tc)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a toggle may wait out the stop grace period
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    tc,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type instanceView struct {
	process.Status
	Usage *metrics.Usage `json:"usage,omitempty"`
}

type moduleView struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Path         string         `json:"path"`
	Enabled      bool           `json:"enabled"`
	RunOnStartup bool           `json:"run_on_startup"`
	RunHotkey    bool           `json:"run_hotkey"`
	Hotkey       string         `json:"hotkey,omitempty"`
	Action       module.Action  `json:"hotkey_action,omitempty"`
	NeedsGUI     bool           `json:"needs_gui"`
	Running      bool           `json:"running"`
	Instances    []instanceView `json:"instances"`
}

type stopResp struct {
	Module  string `json:"module"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (r *Router) view(spec module.Spec) moduleView {
	v := moduleView{
		Name:         spec.Name,
		Kind:         spec.Kind.String(),
		Path:         spec.Path,
		Enabled:      spec.Enabled,
		RunOnStartup: spec.RunOnStartup,
		RunHotkey:    spec.RunHotkey,
		Hotkey:       strings.Join(spec.Hotkey, "+"),
		Action:       spec.Action,
		NeedsGUI:     spec.NeedsGUI,
		Running:      r.sup.IsRunning(spec.Name),
		Instances:    []instanceView{},
	}
	for _, st := range r.sup.Instances(spec.Name) {
		iv := instanceView{Status: st}
		if st.Running && r.sample != nil {
			if u, err := r.sample(int32(st.PID)); err == nil {
				iv.Usage = &u
			}
		}
		v.Instances = append(v.Instances, iv)
	}
	return v
}

func (r *Router) handleList(c *gin.Context) {
	specs := r.reg.All()
	out := make([]moduleView, 0, len(specs))
	for _, s := range specs {
		out = append(out, r.view(s))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleGet(c *gin.Context) {
	name := moduleName(c)
	spec, ok := r.reg.Get(name)
	if !ok {
		writeError(c, fmt.Errorf("%w: %s", dispatch.ErrUnknownModule, name))
		return
	}
	writeJSON(c, http.StatusOK, r.view(spec))
}

func (r *Router) handleAction(action module.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := r.disp.Dispatch(moduleName(c), action)
		if err != nil {
			writeError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, out)
	}
}

func (r *Router) handleStop(c *gin.Context) {
	name := moduleName(c)
	outcome, err := r.disp.Stop(name)
	if errors.Is(err, dispatch.ErrUnknownModule) {
		writeError(c, err)
		return
	}
	resp := stopResp{Module: name, Outcome: outcome.String()}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(c, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}
