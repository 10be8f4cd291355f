// Package profiler records pipeline stage timings and counters and reports them
// periodically through the logger.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stage names recorded by the detection pipeline.
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
	StageNMS        = "nms"
	StageAnnotate   = "annotate"
	StageEncode     = "encode"
	StageFetch      = "fetch"
)

// Recorder is the subset of the profiler used by pipeline components.
type Recorder interface {
	StartOperation(name string) func()
	RecordMetric(name string, value float64)
	IncCounter(name string)
}

// Options configures the profiler.
type Options struct {
	// ReportInterval is how often a report is logged. Zero disables reporting.
	ReportInterval time.Duration `yaml:"report_interval"`
	// MaxSamples bounds the rolling window per metric (default: 600).
	MaxSamples int `yaml:"max_samples"`
}

// Profiler tracks rolling timing windows per operation, rolling value windows per
// metric and monotonically increasing counters. It is safe for concurrent use.
type Profiler struct {
	options   Options
	logger    logrus.FieldLogger
	startTime time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	mu         sync.RWMutex
	metrics    map[string]*window[float64]
	operations map[string]*window[time.Duration]
	counters   map[string]int64
}

// window is a bounded rolling sample with running extrema.
type window[T float64 | time.Duration] struct {
	values []T
	sum    T
	min    T
	max    T
	count  int64
}

func (w *window[T]) add(v T, limit int) {
	if w.count == 0 || v < w.min {
		w.min = v
	}
	if w.count == 0 || v > w.max {
		w.max = v
	}
	w.values = append(w.values, v)
	w.sum += v
	if len(w.values) > limit {
		w.sum -= w.values[0]
		w.values = w.values[1:]
	}
	w.count++
}

func (w *window[T]) mean() T {
	if len(w.values) == 0 {
		return 0
	}
	return w.sum / T(len(w.values))
}

// New creates a profiler. A nil logger uses the standard logger.
func New(opts Options, logger logrus.FieldLogger) *Profiler {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Profiler{
		options:    opts,
		logger:     logger,
		startTime:  time.Now(),
		metrics:    make(map[string]*window[float64]),
		operations: make(map[string]*window[time.Duration]),
		counters:   make(map[string]int64),
	}
}

// Start begins periodic reporting. Calling Start on a running profiler does nothing.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.options.ReportInterval <= 0 {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go func(ctx context.Context) {
		defer p.wg.Done()

		ticker := time.NewTicker(p.options.ReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.report()
			}
		}
	}(p.ctx)
}

// Stop ends reporting and waits for the reporter to exit.
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

// RecordMetric records a value into the named rolling window.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.metrics[name]
	if !ok {
		w = &window[float64]{}
		p.metrics[name] = w
	}
	w.add(value, p.options.MaxSamples)
}

// IncCounter increments the named counter.
func (p *Profiler) IncCounter(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[name]++
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.recordOperationTime(name, time.Since(start))
	}
}

func (p *Profiler) recordOperationTime(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.operations[name]
	if !ok {
		w = &window[time.Duration]{}
		p.operations[name] = w
	}
	w.add(duration, p.options.MaxSamples)
}

// MetricStats summarizes a rolling metric window.
type MetricStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// OperationStats summarizes a rolling timing window in milliseconds.
type OperationStats struct {
	AvgMS   float64 `json:"avg_ms"`
	MinMS   float64 `json:"min_ms"`
	MaxMS   float64 `json:"max_ms"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// MemoryStats is a subset of runtime.MemStats.
type MemoryStats struct {
	Alloc       uint64 `json:"alloc"`
	Sys         uint64 `json:"sys"`
	HeapObjects uint64 `json:"heap_objects"`
	NumGC       uint32 `json:"gc_cycles"`
}

// Stats is a point-in-time snapshot.
type Stats struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Goroutines    int                       `json:"goroutines"`
	Memory        MemoryStats               `json:"memory"`
	Operations    map[string]OperationStats `json:"operations"`
	Metrics       map[string]MetricStats    `json:"metrics"`
	Counters      map[string]int64          `json:"counters"`
}

// Snapshot returns the current statistics.
func (p *Profiler) Snapshot() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		UptimeSeconds: time.Since(p.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:       mem.Alloc,
			Sys:         mem.Sys,
			HeapObjects: mem.HeapObjects,
			NumGC:       mem.NumGC,
		},
		Operations: make(map[string]OperationStats, len(p.operations)),
		Metrics:    make(map[string]MetricStats, len(p.metrics)),
		Counters:   make(map[string]int64, len(p.counters)),
	}

	for name, w := range p.operations {
		stats.Operations[name] = OperationStats{
			AvgMS:   milliseconds(w.mean()),
			MinMS:   milliseconds(w.min),
			MaxMS:   milliseconds(w.max),
			Samples: len(w.values),
			Count:   w.count,
		}
	}
	for name, w := range p.metrics {
		stats.Metrics[name] = MetricStats{
			Avg:     w.mean(),
			Min:     w.min,
			Max:     w.max,
			Samples: len(w.values),
			Count:   w.count,
		}
	}
	for name, n := range p.counters {
		stats.Counters[name] = n
	}

	return stats
}

// report logs a summary line and one line per operation.
func (p *Profiler) report() {
	stats := p.Snapshot()

	p.logger.WithFields(logrus.Fields{
		"uptime":     time.Duration(stats.UptimeSeconds * float64(time.Second)).Truncate(time.Second),
		"goroutines": stats.Goroutines,
		"alloc":      stats.Memory.Alloc,
		"gc":         stats.Memory.NumGC,
		"counters":   stats.Counters,
	}).Info("profiler report")

	names := make([]string, 0, len(stats.Operations))
	for name := range stats.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		op := stats.Operations[name]
		p.logger.WithFields(logrus.Fields{
			"operation": name,
			"avg_ms":    op.AvgMS,
			"min_ms":    op.MinMS,
			"max_ms":    op.MaxMS,
			"count":     op.Count,
		}).Info("operation timing")
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Nop is a Recorder that records nothing.
type Nop struct{}

// StartOperation implements Recorder.
func (Nop) StartOperation(string) func() { return func() {} }

// RecordMetric implements Recorder.
func (Nop) RecordMetric(string, float64) {}

// IncCounter implements Recorder.
func (Nop) IncCounter(string) {}
