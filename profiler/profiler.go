// Package profiler - Stage timing and periodic runtime reports for long
// pipeline runs.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemoryStats captures memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// StageStats aggregates the durations recorded for one stage name.
type StageStats struct {
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Mean returns the average stage duration.
func (s StageStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// MetricStats aggregates the values recorded for one metric name.
type MetricStats struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Last  float64 `json:"last"`
}

// Mean returns the average metric value.
func (m MetricStats) Mean() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count)
}

// Snapshot is a point-in-time view of the profiler.
type Snapshot struct {
	Uptime     time.Duration          `json:"uptime"`
	Goroutines int                    `json:"goroutines"`
	CgoCalls   int64                  `json:"cgo_calls"`
	Memory     MemoryStats            `json:"memory"`
	PeakHeap   uint64                 `json:"peak_heap_bytes"`
	Stages     map[string]StageStats  `json:"stages"`
	Metrics    map[string]MetricStats `json:"metrics"`
}

// Options configures a Profiler.
type Options struct {
	// ReportInterval is how often a status line is logged. Zero disables the
	// reporter; memory sampling, stages and metrics are unaffected.
	ReportInterval time.Duration
	// SampleInterval is how often memory is sampled for the peak heap (default: 500ms).
	SampleInterval time.Duration
}

// Profiler records stage durations and custom metrics, and optionally logs
// periodic runtime reports while running. It is safe for concurrent use.
type Profiler struct {
	opts Options

	mu        sync.Mutex
	startTime time.Time
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	peakHeap  uint64
	stages    map[string]*StageStats
	metrics   map[string]*MetricStats
}

// New creates a profiler. The uptime clock starts immediately.
//
// Arguments:
//   - opts: Reporting options.
//
// Returns:
//   - *Profiler: The profiler.
func New(opts Options) *Profiler {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 500 * time.Millisecond
	}
	return &Profiler{
		opts:      opts,
		startTime: time.Now(),
		stages:    make(map[string]*StageStats),
		metrics:   make(map[string]*MetricStats),
	}
}

// Start launches the background memory sampler, plus the status reporter
// when ReportInterval is positive. It is a no-op when already running.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.loop(ctx, p.opts.SampleInterval, p.sample)
	if p.opts.ReportInterval > 0 {
		p.wg.Add(1)
		go p.loop(ctx, p.opts.ReportInterval, p.report)
	}
}

// Running reports whether the background goroutines are active.
func (p *Profiler) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop halts the background goroutines and waits for them to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Profiler) loop(ctx context.Context, every time.Duration, fn func()) {
	defer p.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// StartStage begins timing a stage. The returned function records the
// elapsed time and returns it.
//
// Arguments:
//   - name: The stage name, e.g. "extract".
//
// Returns:
//   - func() time.Duration: Call when the stage completes.
func (p *Profiler) StartStage(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.recordStage(name, d)
		return d
	}
}

func (p *Profiler) recordStage(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stages[name]
	if !ok {
		s = &StageStats{Min: d, Max: d}
		p.stages[name] = s
	}
	s.Count++
	s.Total += d
	if d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// RecordMetric records one value of a named metric.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metrics[name]
	if !ok {
		m = &MetricStats{Min: value, Max: value}
		p.metrics[name] = m
	}
	m.Count++
	m.Sum += value
	m.Last = value
	if value < m.Min {
		m.Min = value
	}
	if value > m.Max {
		m.Max = value
	}
}

func (p *Profiler) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	p.mu.Lock()
	defer p.mu.Unlock()
	if ms.HeapAlloc > p.peakHeap {
		p.peakHeap = ms.HeapAlloc
	}
}

func (p *Profiler) report() {
	s := p.Snapshot()
	attrs := []any{
		"uptime", s.Uptime.Truncate(time.Millisecond),
		"goroutines", s.Goroutines,
		"heap", FormatBytes(s.Memory.HeapAllocBytes),
		"peak_heap", FormatBytes(s.PeakHeap),
		"sys", FormatBytes(s.Memory.SysBytes),
		"gc", s.Memory.NumGC,
	}
	for name, m := range s.Metrics {
		attrs = append(attrs, name, m.Last)
	}
	slog.Info("runtime status", attrs...)
}

// Snapshot reads the current memory statistics and copies the recorded
// stages and metrics.
func (p *Profiler) Snapshot() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ms.HeapAlloc > p.peakHeap {
		p.peakHeap = ms.HeapAlloc
	}
	s := Snapshot{
		Uptime:     time.Since(p.startTime),
		Goroutines: runtime.NumGoroutine(),
		CgoCalls:   runtime.NumCgoCall(),
		Memory: MemoryStats{
			AllocBytes:      ms.Alloc,
			TotalAllocBytes: ms.TotalAlloc,
			SysBytes:        ms.Sys,
			HeapAllocBytes:  ms.HeapAlloc,
			HeapSysBytes:    ms.HeapSys,
			NumGC:           ms.NumGC,
		},
		PeakHeap: p.peakHeap,
		Stages:   make(map[string]StageStats, len(p.stages)),
		Metrics:  make(map[string]MetricStats, len(p.metrics)),
	}
	for name, st := range p.stages {
		s.Stages[name] = *st
	}
	for name, m := range p.metrics {
		s.Metrics[name] = *m
	}
	return s
}

// FormatBytes formats byte counts in human-readable format.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
