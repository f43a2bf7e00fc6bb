package model

import "fmt"

// JobState represents scheduler job state
type JobState string

const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// QueueName identifies a scheduler queue
type QueueName string

const (
	QueueOpen   QueueName = "open"
	QueueSubmit QueueName = "submit"
)

// Transition validates job state change
func (s JobState) Transition(next JobState) (JobState, error) {
	switch s {
	case JobStateQueued:
		if next == JobStateRunning || next == JobStateFailed {
			return next, nil
		}
	case JobStateRunning:
		if next == JobStateDone || next == JobStateFailed {
			return next, nil
		}
	}
	return s, fmt.Errorf("invalid job transition %s -> %s", s, next)
}
