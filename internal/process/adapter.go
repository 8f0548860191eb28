// internal/process/adapter.go
package process

import (
	"time"

	"github.com/tendant/island-photos/pkg/schema"
)

// Transition records a single stage change of a job.
type Transition struct {
	Stage schema.ProcessingStage
	At    time.Time
}

// Job captures the lifecycle of one thumbnail derivation for auditing and
// logging. It is owned by a single goroutine and is not safe for concurrent use.
type Job struct {
	ID      string
	Kind    string
	Input   any
	Stage   schema.ProcessingStage
	Error   string
	History []Transition
}

// NewJob returns a job that has just been handed to a scheduler.
func NewJob(kind, id string, input any) *Job {
	j := &Job{
		ID:    id,
		Kind:  kind,
		Input: input,
		Stage: schema.StageIdle,
	}
	Advance(j, schema.StageScheduled)
	return j
}

// Advance moves the job to stage. Transitions out of a terminal stage are
// ignored and reported as false.
func Advance(j *Job, stage schema.ProcessingStage) bool {
	if j.Stage.Terminal() {
		return false
	}
	j.Stage = stage
	j.History = append(j.History, Transition{Stage: stage, At: time.Now()})
	return true
}

func MarkDone(j *Job) bool { return Advance(j, schema.StageDone) }

// MarkFailed moves the job to the failed stage and keeps the stage it failed
// in as the last non-terminal entry of History.
func MarkFailed(j *Job, err error) bool {
	if !Advance(j, schema.StageFailed) {
		return false
	}
	if err != nil {
		j.Error = err.Error()
	}
	return true
}

// FailedIn returns the last stage the job reached before failing.
func FailedIn(j *Job) schema.ProcessingStage {
	if j.Stage != schema.StageFailed {
		return ""
	}
	for i := len(j.History) - 1; i >= 0; i-- {
		if s := j.History[i].Stage; s != schema.StageFailed {
			return s
		}
	}
	return ""
}

// Elapsed is the time between scheduling and the latest transition.
func Elapsed(j *Job) time.Duration {
	if len(j.History) == 0 {
		return 0
	}
	return j.History[len(j.History)-1].At.Sub(j.History[0].At)
}
