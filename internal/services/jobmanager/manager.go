// Package jobmanager runs submission evaluations on a bounded worker
// pool with a FIFO wait queue, and fans job lifecycle events out to
// per-session observers.
package jobmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/crab-bench/crab-server/internal/common"
	"github.com/crab-bench/crab-server/internal/interfaces"
	"github.com/crab-bench/crab-server/internal/metrics"
	"github.com/crab-bench/crab-server/internal/models"
)

// Manager owns the job registry, the wait queue, and the worker pool.
// Jobs move forward only: created -> waiting -> processing -> complete
// or failed.
type Manager struct {
	logger     *common.Logger
	store      interfaces.ResultStore
	emitter    interfaces.SocketEmitter
	maxWorkers int

	mu         sync.Mutex
	jobs       map[string]*Subject
	queue      []string
	bySession  map[string]*SocketObserver
	byObserver map[interfaces.Observer]*Subject

	notify chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a job manager backed by the given result store.
func NewManager(logger *common.Logger, store interfaces.ResultStore, maxWorkers int) *Manager {
	return &Manager{
		logger:     logger,
		store:      store,
		maxWorkers: maxWorkers,
		jobs:       make(map[string]*Subject),
		bySession:  make(map[string]*SocketObserver),
		byObserver: make(map[interfaces.Observer]*Subject),
		notify:     make(chan struct{}, 64),
	}
}

// SetEmitter wires the transport used to push events to sessions. Must
// be set before any session attaches.
func (m *Manager) SetEmitter(emitter interfaces.SocketEmitter) {
	m.emitter = emitter
}

// safeGo launches a goroutine with panic recovery and logging.
func (m *Manager) safeGo(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the worker pool. Safe to call multiple times — stops
// any existing workers before starting.
func (m *Manager) Start() {
	if m.cancel != nil {
		m.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	maxWorkers := m.maxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	for i := 0; i < maxWorkers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		m.safeGo(name, func() { m.workLoop(ctx) })
	}

	m.logger.Info().
		Int("max_workers", maxWorkers).
		Msg("Job manager started")
}

// Stop cancels the workers and waits for in-flight jobs to wind down.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.wg.Wait()
	m.logger.Info().Msg("Job manager stopped")
}

// NewJob registers a job whose id was reserved in the result store. The
// job sits in created until Submit queues it.
func (m *Manager) NewJob(id, jobType string, task Task) *Subject {
	subject := &Subject{
		m:         m,
		id:        id,
		jobType:   jobType,
		task:      task,
		status:    models.JobStatusCreated,
		percent:   -1,
		observers: make(map[interfaces.Observer]struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = subject
	m.mu.Unlock()
	return subject
}

// RecoverJob rebinds a completed job found on disk at startup. Results
// stay in their serialized form.
func (m *Manager) RecoverJob(id, jobType string, results json.RawMessage) {
	subject := &Subject{
		m:         m,
		id:        id,
		jobType:   jobType,
		status:    models.JobStatusComplete,
		percent:   -1,
		results:   results,
		observers: make(map[interfaces.Observer]struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = subject
	m.mu.Unlock()
}

// Submit moves a created job into the wait queue and wakes a worker.
func (m *Manager) Submit(subject *Subject) {
	m.mu.Lock()
	if subject.status != models.JobStatusCreated {
		m.mu.Unlock()
		return
	}
	subject.status = models.JobStatusWaiting
	m.queue = append(m.queue, subject.id)
	depth := len(m.queue)
	m.mu.Unlock()

	metrics.SetQueueDepth(depth)

	select {
	case m.notify <- struct{}{}:
	default:
	}

	m.logger.Debug().
		Str("job_id", subject.id).
		Str("job_type", subject.jobType).
		Msg("Job queued")
}

// Position returns the 1-based wait-queue position of id, or 0 when the
// job is not waiting.
func (m *Manager) Position(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, queued := range m.queue {
		if queued == id {
			return i + 1
		}
	}
	return 0
}

// JobByID looks a job up by id.
func (m *Manager) JobByID(id string) (*Subject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subject, ok := m.jobs[id]
	return subject, ok
}

// workLoop waits for queue signals and drains jobs one at a time.
func (m *Manager) workLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
			for {
				subject := m.dequeueAndStart()
				if subject == nil {
					break
				}
				m.runJob(ctx, subject)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// dequeueAndStart pops the queue head and transitions it to processing
// in one critical section, so a waiting job always has a position and a
// processing job never does. Observers learn about the transition after
// the lock is released.
func (m *Manager) dequeueAndStart() *Subject {
	m.mu.Lock()
	var subject *Subject
	var observers []interfaces.Observer
	for len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		next, ok := m.jobs[id]
		if !ok || next.status != models.JobStatusWaiting {
			continue
		}
		next.status = models.JobStatusProcessing
		subject = next
		observers = next.observersLocked()
		break
	}
	depth := len(m.queue)
	m.mu.Unlock()

	metrics.SetQueueDepth(depth)

	if subject == nil {
		return nil
	}
	for _, obs := range observers {
		obs.UpdateStarted()
	}
	return subject
}

// runJob executes the job task inside a crash boundary. A task error or
// panic fails the job; the reserved result file is released and the
// observers get a terminal failed event.
func (m *Manager) runJob(ctx context.Context, subject *Subject) {
	m.logger.Debug().
		Str("job_id", subject.id).
		Str("job_type", subject.jobType).
		Msg("Job started")

	start := time.Now()
	execErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("job_id", subject.id).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job task")
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return subject.task(ctx, subject)
	}()
	duration := time.Since(start)

	if execErr != nil {
		m.logger.Warn().
			Str("job_id", subject.id).
			Str("job_type", subject.jobType).
			Int64("duration_ms", duration.Milliseconds()).
			Err(execErr).
			Msg("Job failed")
		subject.NotifyFailed(execErr.Error())
		metrics.ObserveJobFinished(subject.jobType, models.JobStatusFailed, duration)
		return
	}

	m.logger.Debug().
		Str("job_id", subject.id).
		Str("job_type", subject.jobType).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Job completed")
	metrics.ObserveJobFinished(subject.jobType, models.JobStatusComplete, duration)
}
