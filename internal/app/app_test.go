package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/hotkeyd/internal/config"
	"github.com/loykin/hotkeyd/internal/hotkey"
	"github.com/loykin/hotkeyd/internal/logger"
)

func sleepPath(t *testing.T) string {
	t.Helper()
	for _, p := range []string{"/bin/sleep", "/usr/bin/sleep"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("sleep not available")
	return ""
}

func testConfig(t *testing.T, scripts ...config.Script) *config.Config {
	t.Helper()
	return &config.Config{
		Path: filepath.Join(t.TempDir(), "config.json"),
		Global: config.Global{
			LogDirectory:    filepath.Join(t.TempDir(), "logs"),
			StopGracePeriod: time.Second,
			StartupDelay:    10 * time.Millisecond,
		},
		Scripts: scripts,
	}
}

type failingSource struct{ err error }

func (s failingSource) Listen(context.Context) (<-chan hotkey.Event, error) { return nil, s.err }

func runAsync(ctx context.Context, a *App) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- a.Run(ctx) }()
	return ch
}

func waitRun(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestHotkeyToggleStartsAndStops(t *testing.T) {
	cfg := testConfig(t, config.Script{
		Name: "Notes", Path: sleepPath(t), Args: []string{"30"}, Enabled: true,
		RunHotkey: true, Hotkey: "<ctrl>+n", HotkeyAction: "toggle", IsExternalApp: true,
	})
	events := make(chan hotkey.Event)
	a, err := New(cfg, Options{Source: hotkey.NewChanSource(events), Logger: logger.Discard()})
	require.NoError(t, err)
	require.Len(t, a.Bindings(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, a)

	send := func(evs ...hotkey.Event) {
		for _, ev := range evs {
			select {
			case events <- ev:
			case <-time.After(5 * time.Second):
				t.Fatal("listener not draining events")
			}
		}
	}
	sup := a.Supervisor()

	send(hotkey.Down("ctrl_l"), hotkey.Down("n"))
	require.Eventually(t, func() bool { return sup.IsRunning("Notes") }, 5*time.Second, 10*time.Millisecond)

	// release n and press again while ctrl stays held
	send(hotkey.Up("n"), hotkey.Down("n"))
	require.Eventually(t, func() bool { return !sup.IsRunning("Notes") }, 5*time.Second, 10*time.Millisecond)

	send(hotkey.Up("n"), hotkey.Down("n"))
	require.Eventually(t, func() bool { return sup.IsRunning("Notes") }, 5*time.Second, 10*time.Millisecond)

	cancel()
	waitRun(t, done)
	assert.False(t, sup.IsRunning("Notes"), "shutdown stops every instance")
	require.NoError(t, a.Close())
}

func TestStartupSkipsMissingPathAndContinues(t *testing.T) {
	cfg := testConfig(t,
		config.Script{Name: "Backup", Path: "/nonexistent/backup.py", Enabled: true, RunOnStartup: true},
		config.Script{Name: "Sleeper", Path: sleepPath(t), Args: []string{"30"}, Enabled: true, RunOnStartup: true, IsExternalApp: true},
	)
	a, err := New(cfg, Options{Source: failingSource{err: hotkey.ErrNoDevices}, Logger: logger.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, a)

	sup := a.Supervisor()
	require.Eventually(t, func() bool { return sup.IsRunning("Sleeper") }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, sup.Instances("Backup"))
	assert.False(t, sup.IsRunning("Backup"))

	// a launched startup module keeps the daemon alive without a listener
	select {
	case <-done:
		t.Fatal("Run returned while a startup module is running")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	waitRun(t, done)
	assert.False(t, sup.IsRunning("Sleeper"))
}

func TestNoActiveComponentsReturns(t *testing.T) {
	cfg := testConfig(t, config.Script{Name: "Off", Path: "/opt/off.py", Enabled: false})
	a, err := New(cfg, Options{Source: failingSource{err: errors.New("unused")}, Logger: logger.Discard()})
	require.NoError(t, err)
	waitRun(t, runAsync(context.Background(), a))
}

func TestListenerFailureWithoutStartupReturns(t *testing.T) {
	cfg := testConfig(t, config.Script{
		Name: "Notes", Path: sleepPath(t), Enabled: true, RunHotkey: true,
		Hotkey: []any{"<ctrl>", "n"}, HotkeyAction: "toggle",
	})
	a, err := New(cfg, Options{Source: failingSource{err: os.ErrPermission}, Logger: logger.Discard()})
	require.NoError(t, err)
	waitRun(t, runAsync(context.Background(), a))
}

func TestListenerEndTriggersShutdown(t *testing.T) {
	cfg := testConfig(t,
		config.Script{Name: "Sleeper", Path: sleepPath(t), Args: []string{"30"}, Enabled: true, RunOnStartup: true, IsExternalApp: true},
		config.Script{Name: "Notes", Path: sleepPath(t), Enabled: true, RunHotkey: true, Hotkey: "<ctrl>+n", HotkeyAction: "run"},
	)
	events := make(chan hotkey.Event)
	a, err := New(cfg, Options{Source: hotkey.NewChanSource(events), Logger: logger.Discard()})
	require.NoError(t, err)

	done := runAsync(context.Background(), a)
	require.Eventually(t, func() bool { return a.Supervisor().IsRunning("Sleeper") }, 5*time.Second, 10*time.Millisecond)

	close(events)
	waitRun(t, done)
	assert.False(t, a.Supervisor().IsRunning("Sleeper"))
}

func TestInvalidBindingsAreDropped(t *testing.T) {
	cfg := testConfig(t,
		config.Script{Name: "Good", Path: "/opt/good.py", Enabled: true, RunHotkey: true, Hotkey: "<ctrl>+g", HotkeyAction: "run"},
		config.Script{Name: "BadKey", Path: "/opt/bad.py", Enabled: true, RunHotkey: true, Hotkey: "<hyper>+b", HotkeyAction: "run"},
		config.Script{Name: "BadAction", Path: "/opt/bad2.py", Enabled: true, RunHotkey: true, Hotkey: "<ctrl>+x", HotkeyAction: "explode"},
		config.Script{Name: "Relative", Path: "rel.py", Enabled: true, RunHotkey: true, Hotkey: "<ctrl>+r", HotkeyAction: "run"},
	)
	a, err := New(cfg, Options{Logger: logger.Discard()})
	require.NoError(t, err)

	bs := a.Bindings()
	require.Len(t, bs, 1)
	assert.Equal(t, "Good", bs[0].Module)

	spec, ok := a.Registry().Get("Relative")
	require.True(t, ok)
	assert.False(t, spec.Enabled)
}

func TestNewFailsWithoutUsableLogDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg := testConfig(t)
	cfg.Global.LogDirectory = filepath.Join(blocker, "logs")

	_, err := New(cfg, Options{})
	require.Error(t, err)
}

func TestManagerLogWritten(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, Options{})
	require.NoError(t, err)
	waitRun(t, runAsync(context.Background(), a))
	require.NoError(t, a.Close())

	b, err := os.ReadFile(filepath.Join(cfg.Global.LogDirectory, logger.ManagerFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), "shutdown complete")
}

func TestControlAPIKeepsDaemonAlive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Global.Server = config.ServerConfig{Listen: "127.0.0.1:0", BasePath: "/api"}
	a, err := New(cfg, Options{Logger: logger.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, a)
	require.Eventually(t, func() bool { return a.serverAddr() != "" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + a.serverAddr() + "/api/modules")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	waitRun(t, done)
}

func TestMisconfiguredAuthDisablesAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Global.Server = config.ServerConfig{Listen: "127.0.0.1:0", Auth: config.AuthConfig{Enabled: true}}
	a, err := New(cfg, Options{Logger: logger.Discard()})
	require.NoError(t, err)
	// nothing else is active, so Run returns on its own
	waitRun(t, runAsync(context.Background(), a))
	assert.Empty(t, a.serverAddr())
}
