package worker

import (
	"fmt"

	"go.uber.org/zap"
)

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job)
			if !w.pool.release(w.jobChannel) {
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.log.Error("job panicked",
				zap.Int("worker_id", w.id),
				zap.Int64("user_id", job.UserID),
				zap.String("job", job.Name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	w.pool.log.Debug("running job",
		zap.Int("worker_id", w.id),
		zap.Int64("user_id", job.UserID),
		zap.String("job", job.Name),
	)
	job.Fn()
}
