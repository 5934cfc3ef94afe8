package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"pollster/internal/models"
	"pollster/internal/polling"
	"pollster/internal/tasks"
)

// RunJobDeps holds what the run-job handler needs.
type RunJobDeps struct {
	Engine *polling.Engine
	// Timeout bounds one job from start to terminal state. Zero means no bound
	// beyond the task context.
	Timeout time.Duration
}

func RegisterHandlers(mux *asynq.ServeMux, deps RunJobDeps) {
	log.Infof("Registering %s handler", tasks.TypeRunJob)
	mux.HandleFunc(tasks.TypeRunJob, HandleRunJob(deps))
}

// HandleRunJob starts the job named by the task and blocks until it is
// terminal. The final state is written as the task result.
func HandleRunJob(deps RunJobDeps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := tasks.ParseRunJobPayload(t)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if deps.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deps.Timeout)
			defer cancel()
		}

		var payload any
		if len(p.Payload) > 0 {
			payload = p.Payload
		}
		var opts []polling.StartOption
		if p.Slot != "" {
			opts = append(opts, polling.WithSlot(p.Slot))
		}

		slot, err := deps.Engine.StartJob(ctx, p.Kind, payload, opts...)
		if err != nil {
			return fmt.Errorf("start %s job: %v: %w", p.Kind, err, asynq.SkipRetry)
		}
		log.Infof("Worker polling %s job in slot %s", p.Kind, slot)

		st, err := deps.Engine.Wait(ctx, slot)
		if err != nil {
			if cancelErr := deps.Engine.Cancel(slot); cancelErr != nil {
				log.Debugf("Cancel slot %s: %v", slot, cancelErr)
			}
			return fmt.Errorf("wait for %s job in slot %s: %w", p.Kind, slot, err)
		}

		writeResult(t, st)
		if st.Status == models.StoreStatusFailed {
			return fmt.Errorf("%s job in slot %s failed: %s: %w", p.Kind, slot, st.Error, asynq.SkipRetry)
		}
		log.Infof("Worker finished %s job in slot %s", p.Kind, slot)
		return nil
	}
}

func writeResult(t *asynq.Task, st polling.JobState) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	b, err := json.Marshal(st)
	if err != nil {
		log.Warnf("Failed to encode result of task %s: %v", w.TaskID(), err)
		return
	}
	if _, err := w.Write(b); err != nil {
		log.Warnf("Failed to write result of task %s: %v", w.TaskID(), err)
	}
}
