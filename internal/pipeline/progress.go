package pipeline

import (
	"math"
	"sync"
)

// progress forwards whole percentages to a report callback, dropping
// repeats and regressions. Batch goroutines call set concurrently.
type progress struct {
	mu     sync.Mutex
	last   int
	report func(int)
}

func newProgress(report func(int)) *progress {
	return &progress{last: -1, report: report}
}

func (p *progress) set(percent float64) {
	if p.report == nil {
		return
	}
	v := int(math.Floor(percent))
	if v > 100 {
		v = 100
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v <= p.last {
		return
	}
	p.last = v
	p.report(v)
}
