package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const taskQueueSize = 16

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs queued tasks one at a time and enqueues an ingest run every
// interval. A zero interval disables the ticker; runs then only happen on
// startup or on demand.
type Scheduler struct {
	newIngestTask func() TaskInterface
	interval      time.Duration
	runTimeout    time.Duration
	onStartup     bool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	taskQueue     chan TaskInterface
}

func NewScheduler(newIngestTask func() TaskInterface, interval, runTimeout time.Duration, onStartup bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}

	return &Scheduler{
		newIngestTask: newIngestTask,
		interval:      interval,
		runTimeout:    runTimeout,
		onStartup:     onStartup,
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	if s.onStartup {
		if _, err := s.TriggerIngest(); err != nil {
			slog.Warn("Failed to enqueue startup ingest", "error", err)
		}
	}

	if s.interval <= 0 {
		slog.Debug("Periodic ingestion disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.TriggerIngest(); err != nil {
					slog.Warn("Failed to enqueue scheduled ingest", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the running task, abandons queued ones and waits for the
// worker to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) TriggerIngest() (string, error) {
	task := s.newIngestTask()
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}

	slog.Debug("Ingest enqueued", "id", task.GetID())
	return task.GetID(), nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Task panicked", "type", string(task.GetType()), "id", task.GetID(), "panic", r)
		}
	}()

	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		slog.Error("Worker task execution failed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
	}
}
