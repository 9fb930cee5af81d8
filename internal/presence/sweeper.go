package presence

import (
	"context"
	"log"

	"github.com/hibiken/asynq"
)

const TaskSweep = "presence:sweep"

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSweep, nil)
}

// HandleSweepTask runs one expiry sweep. Registered with the asynq worker,
// which schedules it periodically.
func (t *Tracker) HandleSweepTask(ctx context.Context, _ *asynq.Task) error {
	swept, err := t.Sweep(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Printf("presence sweep: %d user(s) went offline", swept)
	}
	return nil
}
