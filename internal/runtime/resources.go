package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// ProcessUsage is a coarse view of the resources the dispatching process uses.
type ProcessUsage struct {
	// CPUPercent is averaged over all cores since the previous sample. The
	// first sample always reports zero.
	CPUPercent     float64   `json:"cpu_percent"`
	HeapAllocBytes uint64    `json:"heap_alloc_bytes"`
	Goroutines     int       `json:"goroutines"`
	SampledAt      time.Time `json:"sampled_at"`
}

// processSampler derives CPU usage from the delta between two samples.
type processSampler struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newProcessSampler() *processSampler {
	return &processSampler{
		samples: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (s *processSampler) sample() ProcessUsage {
	if s == nil {
		return ProcessUsage{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		s.samples = []metrics.Sample{{Name: cpuSecondsMetric}}
	}
	metrics.Read(s.samples)
	value := s.samples[0].Value
	haveCPU := value.Kind() == metrics.KindFloat64
	now := time.Now()

	usage := ProcessUsage{
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  now,
	}
	if haveCPU {
		cpuSeconds := value.Float64()
		if !s.lastSample.IsZero() && s.numCPU > 0 {
			if wall := now.Sub(s.lastSample).Seconds(); wall > 0 {
				usage.CPUPercent = (cpuSeconds - s.lastCPUSeconds) / wall / s.numCPU * 100
			}
		}
		s.lastCPUSeconds = cpuSeconds
	}
	s.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.HeapAllocBytes = mem.HeapAlloc
	return usage
}
