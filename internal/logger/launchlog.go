package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxModuleLogs is how many launch logs are kept per module.
const DefaultMaxModuleLogs = 10

const launchStamp = "20060102_150405.000000"

// LaunchLogs manages the per-module, per-launch output files a child writes to
// directly. Files live in Dir/<module dir>/<timestamp>.log.
type LaunchLogs struct {
	Dir  string
	Keep int
}

// Launch is one opened launch log.
type Launch struct {
	File     *os.File
	Path     string
	Pruned   []string // old files removed to make room
	PruneErr error    // informational; the launch log itself was created
}

// Open prunes old logs for moduleDir and creates a fresh file for one launch.
func (l LaunchLogs) Open(moduleDir string, now time.Time) (*Launch, error) {
	dir := filepath.Join(l.Dir, moduleDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create module log directory %s: %w", dir, err)
	}
	keep := l.Keep
	if keep <= 0 {
		keep = DefaultMaxModuleLogs
	}
	// leave room for the file about to be created
	pruned, pruneErr := Prune(dir, keep-1)

	base := now.Format(launchStamp)
	for i := 0; i < 100; i++ {
		name := base + ".log"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.log", base, i)
		}
		p := filepath.Join(dir, name)
		// #nosec G304 path is built from the configured log directory
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err == nil {
			return &Launch{File: f, Path: p, Pruned: pruned, PruneErr: pruneErr}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create launch log %s: %w", p, err)
		}
	}
	return nil, fmt.Errorf("create launch log in %s: too many files for %s", dir, base)
}

// Prune deletes the oldest *.log files in dir so that at most keep remain.
func Prune(dir string, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type logFile struct {
		path string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path < files[j].path
		}
		return files[i].mod.Before(files[j].mod)
	})
	var (
		removed []string
		errs    []error
	)
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f.path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, filepath.Base(f.path))
	}
	return removed, errors.Join(errs...)
}
