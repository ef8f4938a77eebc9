package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("a")
	IncStart("a")
	IncLaunchFailure("a", "path_not_found")
	IncStop("a", "terminated")
	SetRunningInstances("a", 2)
	IncHotkeyFire("a", "toggle")
	IncRegistrationFailure("b")
	IncDispatch("a", "toggle", "started")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"hotkeyd_module_starts_total":                false,
		"hotkeyd_module_launch_failures_total":       false,
		"hotkeyd_module_stops_total":                 false,
		"hotkeyd_module_running_instances":           false,
		"hotkeyd_hotkey_fires_total":                 false,
		"hotkeyd_hotkey_registration_failures_total": false,
		"hotkeyd_dispatch_total":                     false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
	if got := testutil.ToFloat64(moduleStarts.WithLabelValues("a")); got < 2 {
		t.Fatalf("starts_total{a} = %v, want >= 2", got)
	}
	if got := testutil.ToFloat64(runningInstances.WithLabelValues("a")); got != 2 {
		t.Fatalf("running_instances{a} = %v, want 2", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	// Reset regOK gate to allow registration in this test regardless of previous tests.
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncStart("x")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "hotkeyd_module_starts_total") {
		t.Fatalf("metrics output missing starts_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("c")
			IncHotkeyFire("c", "run")
			IncDispatch("c", "run", "started")
			IncStop("c", "killed")
		}()
	}
	wg.Wait()
	// Ensure gather succeeds under race detector
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	IncStart("test")
	IncLaunchFailure("test", "spawn")
	IncStop("test", "not_tracked")
	SetRunningInstances("test", 5)
	IncHotkeyFire("test", "run")
	IncRegistrationFailure("test")
	IncDispatch("test", "run", "rejected")
}

func TestRegisterError(t *testing.T) {
	errorRegisterer := &errorRegisterer{
		shouldError: true,
	}

	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(errorRegisterer)
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSampleSelf(t *testing.T) {
	u, err := Sample(int32(os.Getpid()))
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if u.PID != int32(os.Getpid()) {
		t.Fatalf("pid = %d", u.PID)
	}
	if u.MemoryRSS == 0 {
		t.Fatal("expected non-zero rss for the test binary")
	}
}

func TestUsageCollectorDropsStaleSeries(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	pid := int32(os.Getpid())
	tracked := map[string][]int32{"self": {pid}}
	var mu sync.Mutex
	c := NewUsageCollector(time.Hour, func() map[string][]int32 {
		mu.Lock()
		defer mu.Unlock()
		return tracked
	}, nil)

	c.Collect()
	if n := testutil.CollectAndCount(usageRSS); n != 1 {
		t.Fatalf("rss series = %d, want 1", n)
	}

	mu.Lock()
	tracked = map[string][]int32{}
	mu.Unlock()
	c.Collect()
	if n := testutil.CollectAndCount(usageRSS); n != 0 {
		t.Fatalf("rss series after untrack = %d, want 0", n)
	}
}

// Custom registerer for testing error handling
type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
