package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManagerWriterDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	w, err := Config{Dir: dir}.ManagerWriter()
	if err != nil {
		t.Fatalf("ManagerWriter: %v", err)
	}
	defer func() { _ = w.Close() }()
	if w.MaxSize != DefaultMaxSizeMB || w.MaxBackups != DefaultMaxBackups || w.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", w.MaxSize, w.MaxBackups, w.MaxAge)
	}
	if _, err := os.Stat(filepath.Join(dir, ManagerFile)); err != nil {
		t.Fatalf("manager log not created eagerly: %v", err)
	}
}

func TestManagerWriterOverrides(t *testing.T) {
	w, err := Config{Dir: t.TempDir(), MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}.ManagerWriter()
	if err != nil {
		t.Fatalf("ManagerWriter: %v", err)
	}
	defer func() { _ = w.Close() }()
	if w.MaxSize != 1 || w.MaxBackups != 9 || w.MaxAge != 11 || !w.Compress {
		t.Fatalf("unexpected overrides: size=%d backups=%d age=%d compress=%t", w.MaxSize, w.MaxBackups, w.MaxAge, w.Compress)
	}
}

func TestManagerWriterUnusableDir(t *testing.T) {
	if _, err := (Config{}).ManagerWriter(); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	file := filepath.Join(t.TempDir(), "plainfile")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (Config{Dir: filepath.Join(file, "sub")}).ManagerWriter(); err == nil {
		t.Fatalf("expected error when log dir is below a regular file")
	}
}

func TestNewWritesTaggedRecords(t *testing.T) {
	dir := t.TempDir()
	l, closer, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Manager(l).Info("manager up")
	Module(l, "Notes").Warn("module warn")
	_ = closer.Close()
	b, err := os.ReadFile(filepath.Join(dir, ManagerFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `module="Module Manager"`) || !strings.Contains(out, "manager up") {
		t.Fatalf("manager record missing: %s", out)
	}
	if !strings.Contains(out, "module=Notes") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("module record missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "x": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestLevelSplitHandler(t *testing.T) {
	var low, high bytes.Buffer
	h := &LevelSplitHandler{
		Low:       slog.NewTextHandler(&low, nil),
		High:      slog.NewTextHandler(&high, nil),
		Threshold: slog.LevelWarn,
	}
	l := slog.New(h).With(ModuleKey, "x")
	l.Info("to-low")
	l.Error("to-high")
	if !strings.Contains(low.String(), "to-low") || strings.Contains(low.String(), "to-high") {
		t.Fatalf("low got %q", low.String())
	}
	if !strings.Contains(high.String(), "to-high") || !strings.Contains(high.String(), "module=x") {
		t.Fatalf("high got %q", high.String())
	}
}

func TestColorTextHandlerWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false)).With("k", "v")
	l.Warn("hello")
	out := buf.String()
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be dropped: %q", out)
	}
	if !strings.Contains(out, "\033[33mWARN") || !strings.Contains(out, "k=v") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLaunchLogsOpenAndRetention(t *testing.T) {
	root := t.TempDir()
	ll := LaunchLogs{Dir: root, Keep: 3}
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var paths []string
	for i := 0; i < 5; i++ {
		lf, err := ll.Open("backup", base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		_ = lf.File.Close()
		// distinct mtimes so pruning order is well defined
		mt := base.Add(time.Duration(i) * time.Minute)
		_ = os.Chtimes(lf.Path, mt, mt)
		paths = append(paths, lf.Path)
	}
	entries, err := os.ReadDir(filepath.Join(root, "backup"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 retained logs, got %d", len(entries))
	}
	for _, p := range paths[:2] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s pruned", p)
		}
	}
	for _, p := range paths[2:] {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}

func TestLaunchLogsSameInstantDoesNotCollide(t *testing.T) {
	ll := LaunchLogs{Dir: t.TempDir()}
	now := time.Now()
	a, err := ll.Open("m", now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ll.Open("m", now)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.File.Close(); _ = b.File.Close() }()
	if a.Path == b.Path {
		t.Fatalf("two launches share %s", a.Path)
	}
}

func TestPruneIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.log", "b.log", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-time.Hour)
	_ = os.Chtimes(filepath.Join(dir, "a.log"), old, old)
	removed, err := Prune(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "a.log" {
		t.Fatalf("removed %v", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Fatalf("non-log file removed")
	}
}
