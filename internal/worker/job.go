package worker

import (
	"errors"
	"time"

	"legaladvisor/internal/logger"
)

type JobType string

const (
	Run  JobType = "run"
	Stop JobType = "stop"
)

var (
	ErrDispatcherBusy    = errors.New("dispatcher queue is full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
	ErrInvalidJob        = errors.New("job has no run function")
)

// Job is a unit of work owned by a user. Fn runs on a pool worker. Drop, when
// set, is called instead of Fn if the job is discarded before it starts.
type Job struct {
	Type   JobType
	UserID int64
	Name   string
	Fn     func()
	Drop   func()
}

func (job Job) drop() {
	if job.Drop != nil {
		job.Drop()
	}
}

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	Logger      *logger.Logger
}
