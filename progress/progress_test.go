package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/chainorch/model"
)

func TestProgress_Transition(t *testing.T) {
	tracker := New("open")
	var observed []Counters
	tracker.OnChange(func(p Counters) { observed = append(observed, p) })

	tracker.Transition("", model.JobStateQueued)
	tracker.Transition(model.JobStateQueued, model.JobStateRunning)
	tracker.Transition(model.JobStateRunning, model.JobStateDone)
	tracker.Transition("", model.JobStateQueued)
	tracker.Transition(model.JobStateQueued, model.JobStateFailed)

	snapshot := tracker.Snapshot()
	assert.Equal(t, "open", snapshot.Queue)
	assert.Equal(t, 0, snapshot.Queued)
	assert.Equal(t, 0, snapshot.Running)
	assert.Equal(t, 1, snapshot.Done)
	assert.Equal(t, 1, snapshot.Failed)
	assert.Len(t, observed, 5)
	assert.Equal(t, 1, observed[1].Running)
}

func TestProgress_Concurrent(t *testing.T) {
	tracker := New("submit")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Update(Delta{Queued: 1})
			tracker.Transition(model.JobStateQueued, model.JobStateRunning)
			tracker.Transition(model.JobStateRunning, model.JobStateDone)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tracker.Snapshot().Done)
	assert.Equal(t, 0, tracker.Snapshot().Queued)
}

func TestProgress_Nil(t *testing.T) {
	var tracker *Progress
	tracker.Update(Delta{Done: 1})
	tracker.OnChange(nil)
	assert.Equal(t, Counters{}, tracker.Snapshot())
}
