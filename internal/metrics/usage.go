package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// DefaultUsageInterval is the sampling period used when none is configured.
const DefaultUsageInterval = 10 * time.Second

var (
	usageCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "cpu_percent",
			Help:      "CPU usage of a tracked module instance.",
		}, []string{"name", "pid"},
	)
	usageRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "memory_rss_bytes",
			Help:      "Resident set size of a tracked module instance.",
		}, []string{"name", "pid"},
	)
)

// Usage is a point-in-time resource sample for one child process.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sample reads CPU and memory figures for pid.
func Sample(pid int32) (Usage, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	u := Usage{PID: pid, Timestamp: time.Now()}
	// CPUPercent may be 0 on the first call for a short-lived handle
	if cpu, err := proc.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	u.MemoryRSS = mem.RSS
	if n, err := proc.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}

// UsageCollector periodically samples every tracked instance and exports
// the result as gauges labelled by module name and pid.
type UsageCollector struct {
	interval time.Duration
	pids     func() map[string][]int32
	log      *slog.Logger

	mu   sync.Mutex
	seen map[[2]string]struct{}
	wg   sync.WaitGroup
}

// NewUsageCollector returns a collector that calls pids on every tick.
func NewUsageCollector(interval time.Duration, pids func() map[string][]int32, log *slog.Logger) *UsageCollector {
	if interval <= 0 {
		interval = DefaultUsageInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &UsageCollector{interval: interval, pids: pids, log: log, seen: map[[2]string]struct{}{}}
}

// Start runs the sampling loop until ctx is cancelled.
func (c *UsageCollector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Collect()
			}
		}
	}()
}

// Wait blocks until the loop started by Start has returned.
func (c *UsageCollector) Wait() { c.wg.Wait() }

// Collect takes one sample of every instance and drops series for
// instances that are no longer tracked.
func (c *UsageCollector) Collect() {
	current := map[[2]string]struct{}{}
	for name, pids := range c.pids() {
		for _, pid := range pids {
			if pid <= 0 {
				continue
			}
			u, err := Sample(pid)
			if err != nil {
				c.log.Debug("usage sample failed", "name", name, "pid", pid, "error", err)
				continue
			}
			key := [2]string{name, strconv.Itoa(int(pid))}
			current[key] = struct{}{}
			if regOK.Load() {
				usageCPU.WithLabelValues(key[0], key[1]).Set(u.CPUPercent)
				usageRSS.WithLabelValues(key[0], key[1]).Set(float64(u.MemoryRSS))
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.seen {
		if _, ok := current[key]; !ok {
			usageCPU.DeleteLabelValues(key[0], key[1])
			usageRSS.DeleteLabelValues(key[0], key[1])
		}
	}
	c.seen = current
}
