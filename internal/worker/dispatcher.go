package worker

import (
	"container/list"
	"sync"

	"go.uber.org/zap"

	"legaladvisor/internal/logger"
)

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans jobs out to a bounded worker pool. Users take turns: each
// dispatch serves the user at the front of the ready list and moves them to
// the back, so one busy user cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	log      *logger.Logger

	mu        sync.Mutex
	queues    map[int64]*userQueue // job queue for each user
	ready     *list.List           // LRU queue storing user IDs
	positions map[int64]*list.Element
	stopped   bool

	quit chan struct{}
	done chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	log := logger.OrNop(cfg.Logger).Named("dispatcher")
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, log),
		jobQueue:  make(chan Job, cfg.QueueSize),
		log:       log,
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	d.pool.warm(cfg.MinWorkers)
	go d.run()
	return d
}

// Submit queues a job without blocking. It returns ErrDispatcherBusy when the
// intake queue is full.
func (d *Dispatcher) Submit(job Job) error {
	if job.Fn == nil {
		return ErrInvalidJob
	}
	job.Type = Run
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of the user in the front of the LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

// CancelUser drops every queued job of userID. Jobs already on a worker keep running.
func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	var dropped []Job
	if q, ok := d.queues[userID]; ok {
		dropped = q.jobs
		delete(d.queues, userID)
	}
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
	d.mu.Unlock()

	for _, job := range dropped {
		job.drop()
	}
}

// Stop halts dispatching. Queued jobs are dropped; running jobs finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.quit)
	d.pool.close()
	<-d.done

	var dropped []Job
	d.mu.Lock()
	for _, q := range d.queues {
		dropped = append(dropped, q.jobs...)
	}
	d.queues = make(map[int64]*userQueue)
	d.ready.Init()
	d.positions = make(map[int64]*list.Element)
	d.mu.Unlock()
drain:
	for {
		select {
		case job := <-d.jobQueue:
			dropped = append(dropped, job)
		default:
			break drain
		}
	}
	for _, job := range dropped {
		job.drop()
	}
	if len(dropped) > 0 {
		d.log.Info("dropped queued jobs on stop", zap.Int("count", len(dropped)))
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.UserID] = d.ready.PushBack(job.UserID)
}

// dispatchOne takes the next job of the first user in the LRU list and hands
// it to a worker. It reports false when nothing is queued.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
		delete(d.queues, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	meta := d.pool.acquire()
	if meta == nil {
		job.drop()
		return true
	}
	d.log.Debug("assign job",
		zap.String("job", job.Name),
		zap.Int64("user_id", userID),
		zap.Int("worker_id", meta.id),
	)
	meta.ch <- job
	return true
}
