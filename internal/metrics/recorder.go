package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are tracked in microseconds up to one minute, 3 significant figures.
const (
	minLatency = 1
	maxLatency = int64(time.Minute / time.Microsecond)
	sigFigures = 3
)

type Summary struct {
	Route          string        `json:"route"`
	Operations     int64         `json:"operations"`
	Errors         int64         `json:"errors"`
	ErrorRate      float64       `json:"error_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
}

type series struct {
	histogram  *hdrhistogram.Histogram
	operations int64
	errors     int64
}

// Recorder keeps one latency histogram per route. hdrhistogram is not safe for
// concurrent use, so every access goes through mu.
type Recorder struct {
	mu     sync.Mutex
	routes map[string]*series
}

func NewRecorder() *Recorder {
	return &Recorder{routes: make(map[string]*series)}
}

func (r *Recorder) Record(route string, latency time.Duration, failed bool) {
	value := latency.Microseconds()
	if value < minLatency {
		value = minLatency
	}
	if value > maxLatency {
		value = maxLatency
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.routes[route]
	if !ok {
		s = &series{histogram: hdrhistogram.New(minLatency, maxLatency, sigFigures)}
		r.routes[route] = s
	}
	s.operations++
	if failed {
		s.errors++
	}
	// value is clamped to the histogram range, so this cannot fail.
	_ = s.histogram.RecordValue(value)
}

// Snapshot returns one summary per route, sorted by route.
func (r *Recorder) Snapshot() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.routes))
	for route, s := range r.routes {
		sum := Summary{
			Route:          route,
			Operations:     s.operations,
			Errors:         s.errors,
			AverageLatency: time.Duration(s.histogram.Mean()) * time.Microsecond,
			P95Latency:     time.Duration(s.histogram.ValueAtQuantile(95)) * time.Microsecond,
			P99Latency:     time.Duration(s.histogram.ValueAtQuantile(99)) * time.Microsecond,
			MaxLatency:     time.Duration(s.histogram.Max()) * time.Microsecond,
		}
		if s.operations > 0 {
			sum.ErrorRate = float64(s.errors) / float64(s.operations)
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}
