package runtime

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	errspkg "github.com/drblury/ssoflow/internal/runtime/errors"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// LatencyMetrics summarises the most recent dispatch durations.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS         float64 `json:"current_rps"`
	WindowSeconds      float64 `json:"window_seconds"`
	DispatchesInWindow uint64  `json:"dispatches_in_window"`
}

// ErrorBreakdown counts failures by cause.
type ErrorBreakdown struct {
	NotFound       uint64 `json:"not_found"`
	InvalidPayload uint64 `json:"invalid_payload"`
	Canceled       uint64 `json:"canceled"`
	Handler        uint64 `json:"handler"`
	Other          uint64 `json:"other"`
	LastError      string `json:"last_error,omitempty"`
}

func (e *ErrorBreakdown) Record(err error) {
	if err == nil {
		return
	}
	var notFound *errspkg.ServiceNotFoundError
	var handlerErr *errspkg.HandlerError
	switch {
	case errors.As(err, &notFound):
		e.NotFound++
	case errors.Is(err, errspkg.ErrInvalidEventPayload):
		e.InvalidPayload++
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Canceled++
	case errors.As(err, &handlerErr):
		e.Handler++
	default:
		e.Other++
	}
	e.LastError = err.Error()
}

// DispatchStats is a point-in-time view of one command or event type.
type DispatchStats struct {
	Kind             string            `json:"kind"`
	Name             string            `json:"name"`
	Dispatches       uint64            `json:"dispatches"`
	Failures         uint64            `json:"failures"`
	TotalDurationNs  int64             `json:"total_duration_ns"`
	LastDispatchedAt time.Time         `json:"last_dispatched_at"`
	Latency          LatencyMetrics    `json:"latency"`
	Throughput       ThroughputMetrics `json:"throughput"`
	Errors           ErrorBreakdown    `json:"errors"`
}

type dispatchStats struct {
	mu    sync.Mutex
	stats DispatchStats

	latency    *latencyWindow
	throughput *throughputWindow
}

func newDispatchStats(kind, name string) *dispatchStats {
	return &dispatchStats{
		stats:      DispatchStats{Kind: kind, Name: name},
		latency:    newLatencyWindow(latencySampleSize),
		throughput: newThroughputWindow(throughputWindowSize),
	}
}

func (s *dispatchStats) record(duration time.Duration, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.stats
	st.Dispatches++
	if err != nil {
		st.Failures++
	}
	st.TotalDurationNs += int64(duration)
	st.LastDispatchedAt = now.UTC()

	s.latency.Add(duration)
	st.Latency = s.latency.Snapshot()

	snap := s.throughput.AddAndSnapshot(now)
	st.Throughput = ThroughputMetrics{
		CurrentRPS:         snap.CurrentRPS,
		WindowSeconds:      snap.WindowSeconds,
		DispatchesInWindow: uint64(snap.Count),
	}
	st.Errors.Record(err)
}

func (s *dispatchStats) snapshot() DispatchStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// statsSet holds one dispatchStats per kind and name.
type statsSet struct {
	mu     sync.RWMutex
	byName map[string]*dispatchStats
	now    func() time.Time
}

func newStatsSet() *statsSet {
	return &statsSet{byName: make(map[string]*dispatchStats), now: time.Now}
}

func (s *statsSet) record(kind, name string, duration time.Duration, err error) {
	key := kind + "/" + name
	s.mu.RLock()
	st, ok := s.byName[key]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		if st, ok = s.byName[key]; !ok {
			st = newDispatchStats(kind, name)
			s.byName[key] = st
		}
		s.mu.Unlock()
	}
	st.record(duration, err, s.now())
}

// snapshot returns every entry ordered by kind, then name.
func (s *statsSet) snapshot() []DispatchStats {
	s.mu.RLock()
	out := make([]DispatchStats, 0, len(s.byName))
	for _, st := range s.byName {
		out = append(out, st.snapshot())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b DispatchStats) int {
		if c := strings.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	slices.Sort(samples)

	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.SampleSize = lw.filled
	metrics.AverageNs = sum / int64(len(samples))
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

// percentile interpolates linearly between the two nearest ranks of sorted samples.
func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = slices.Delete(tw.samples, 0, idx)
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}
