package progress

import (
	"sync"
	"time"

	"github.com/viant/chainorch/model"
)

// Delta represents an incremental counter change. Fields are signed.
type Delta struct {
	Queued  int
	Running int
	Done    int
	Failed  int
}

// Counters is a point-in-time copy of a tracker
type Counters = model.JobCounters

// Progress keeps job counters for one scheduler queue. It is safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	counters Counters
	onChange func(Counters)
}

// New creates a tracker for queue
func New(queue string) *Progress {
	return &Progress{counters: Counters{Queue: queue, StartedAt: time.Now()}}
}

// Update applies d. The onChange callback, if any, receives a copy outside the lock.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.counters.Queued += d.Queued
	p.counters.Running += d.Running
	p.counters.Done += d.Done
	p.counters.Failed += d.Failed
	snapshot := p.counters
	cb := p.onChange
	p.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// Transition moves one job between state buckets; an empty from only adds.
func (p *Progress) Transition(from, to model.JobState) {
	var d Delta
	d.add(from, -1)
	d.add(to, 1)
	p.Update(d)
}

func (d *Delta) add(state model.JobState, n int) {
	switch state {
	case model.JobStateQueued:
		d.Queued += n
	case model.JobStateRunning:
		d.Running += n
	case model.JobStateDone:
		d.Done += n
	case model.JobStateFailed:
		d.Failed += n
	}
}

// Snapshot returns a copy of the counters
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// OnChange registers a callback invoked after every Update; nil disables it
func (p *Progress) OnChange(cb func(Counters)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}
