// Package queue runs jobs on a fixed pool of workers. A pool of one worker
// preserves submission order, which is how inbound socket frames are applied.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chat-app-client/internal/logging"
)

var ErrShutdown = errors.New("queue: shut down")

type Job struct {
	Fn   func(ctx context.Context) error
	Errc chan error
}

type Manager struct {
	jobs       chan Job
	maxWorkers int
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewManager(queueSize int, maxWorkers int, log *zap.Logger) *Manager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		jobs:       make(chan Job, queueSize),
		maxWorkers: maxWorkers,
		log:        logging.OrComponent(log, "queue"),
		ctx:        ctx,
		cancel:     cancel,
	}
	m.startWorkers()
	return m
}

// NewOrdered returns a single-worker manager.
func NewOrdered(queueSize int, log *zap.Logger) *Manager {
	return NewManager(queueSize, 1, log)
}

func (m *Manager) startWorkers() {
	for i := 0; i < m.maxWorkers; i++ {
		m.wg.Add(1)
		go func(workerID int) {
			defer m.wg.Done()
			m.log.Debug("worker started", zap.Int("worker", workerID))
			for job := range m.jobs {
				err := m.run(job)
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			m.log.Debug("worker stopped", zap.Int("worker", workerID))
		}(i)
	}
}

func (m *Manager) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: job panicked: %v", r)
			m.log.Error("job panicked", zap.Any("panic", r))
		}
	}()
	return job.Fn(m.ctx)
}

// Enqueue blocks until the job is accepted, ctx is done, or the manager shuts down.
func (m *Manager) Enqueue(ctx context.Context, job Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrShutdown
	}
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrShutdown
	}
}

// Do enqueues fn and waits for its result.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	if err := m.Enqueue(ctx, Job{Fn: fn, Errc: errc}); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for the workers. Jobs already queued
// still run, with a cancelled context.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()
	m.wg.Wait()
}
