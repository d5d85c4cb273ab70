// Package agenthub runs background agent tasks: a priority queue drained by
// a single worker, lifecycle observers and cron-driven submissions.
package agenthub

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/neboloop/architect/internal/logging"
)

// ErrSchedulerClosed is returned by Submit after Shutdown
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// Task is a queued unit of background work. Higher Priority runs first;
// equal priorities run in submission order.
type Task struct {
	ID          string
	Priority    int
	Title       string
	Instruction string
	EnqueuedAt  time.Time

	seq uint64
}

// TaskHandler executes one task and returns a short report
type TaskHandler func(ctx context.Context, task *Task) (string, error)

// TaskInfo is a read-only snapshot of a task for observers and stats
type TaskInfo struct {
	ID          string    `json:"id"`
	Priority    int       `json:"priority"`
	Title       string    `json:"title"`
	Instruction string    `json:"instruction"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		ID:          t.ID,
		Priority:    t.Priority,
		Title:       t.Title,
		Instruction: t.Instruction,
		EnqueuedAt:  t.EnqueuedAt,
	}
}

// taskQueue is a max-heap on priority, FIFO on seq
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].seq < q[j].seq
}
func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x any) { *q = append(*q, x.(*Task)) }
func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}

// Stats is a point-in-time view of the scheduler
type Stats struct {
	Queued    int        `json:"queued"`
	Draining  bool       `json:"draining"`
	Processed int64      `json:"processed"`
	Failed    int64      `json:"failed"`
	Current   *TaskInfo  `json:"current,omitempty"`
	Tasks     []TaskInfo `json:"tasks"`
}

// Scheduler runs submitted tasks one at a time in priority order. At most
// one drain goroutine exists; Submit starts it when none is running.
type Scheduler struct {
	handler  TaskHandler
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   taskQueue
	seq     uint64
	closed  bool
	current *Task

	draining  atomic.Bool
	wg        sync.WaitGroup
	processed atomic.Int64
	failed    atomic.Int64
}

// NewScheduler creates a scheduler. observer may be nil.
func NewScheduler(handler TaskHandler, observer Observer) *Scheduler {
	if observer == nil {
		observer = MultiObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		handler:  handler,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit enqueues a task and returns its ID without waiting for it to run
func (s *Scheduler) Submit(priority int, title, instruction string) (string, error) {
	task := &Task{
		ID:          uuid.NewString(),
		Priority:    priority,
		Title:       title,
		Instruction: instruction,
		EnqueuedAt:  time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSchedulerClosed
	}
	s.seq++
	task.seq = s.seq
	heap.Push(&s.queue, task)
	queued := len(s.queue)
	s.startDrainLocked()
	s.mu.Unlock()

	logging.Debugf("[Scheduler] Submitted task %s priority=%d queued=%d", task.ID, priority, queued)
	s.emit(TaskEvent{Type: EventSubmitted, Task: task.info()})
	return task.ID, nil
}

// startDrainLocked launches the drain goroutine when none is running.
// Must be called with s.mu held.
func (s *Scheduler) startDrainLocked() {
	if s.closed || len(s.queue) == 0 {
		return
	}
	if s.draining.CompareAndSwap(false, true) {
		s.wg.Add(1)
		go s.drain()
	}
}

func (s *Scheduler) drain() {
	defer s.wg.Done()
	for {
		task := s.next()
		if task == nil {
			s.draining.Store(false)
			// A Submit may have lost the CAS just before the flag was cleared
			s.mu.Lock()
			again := !s.closed && len(s.queue) > 0 && s.draining.CompareAndSwap(false, true)
			s.mu.Unlock()
			if again {
				continue
			}
			return
		}
		s.process(task)
	}
}

func (s *Scheduler) next() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		s.current = nil
		return nil
	}
	task := heap.Pop(&s.queue).(*Task)
	s.current = task
	return task
}

func (s *Scheduler) process(task *Task) {
	info := task.info()
	start := time.Now()
	s.emit(TaskEvent{Type: EventStarted, Task: info})

	var (
		result string
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Errorf("[Scheduler] Task %s panicked: %v\n%s", task.ID, r, debug.Stack())
				err = fmt.Errorf("panic in task: %v", r)
			}
		}()
		result, err = s.handler(s.ctx, task)
	}()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	duration := time.Since(start)
	s.processed.Add(1)
	if err != nil {
		s.failed.Add(1)
		logging.Warnf("[Scheduler] Task %s (%s) failed after %s: %v", task.ID, task.Title, duration.Round(time.Millisecond), err)
		s.emit(TaskEvent{Type: EventFailed, Task: info, Error: err.Error(), Duration: duration})
		return
	}
	logging.Infof("[Scheduler] Task %s (%s) done in %s", task.ID, task.Title, duration.Round(time.Millisecond))
	s.emit(TaskEvent{Type: EventCompleted, Task: info, Result: result, Duration: duration})
}

func (s *Scheduler) emit(ev TaskEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("[Scheduler] Observer panicked on %s: %v", ev.Type, r)
		}
	}()
	s.observer.OnTaskEvent(ev)
}

// Stats returns queue depth, counters and the queued tasks in run order
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	tasks := make([]*Task, len(s.queue))
	copy(tasks, s.queue)
	var current *TaskInfo
	if s.current != nil {
		ci := s.current.info()
		current = &ci
	}
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return taskQueue(tasks).Less(i, j) })
	infos := make([]TaskInfo, len(tasks))
	for i, t := range tasks {
		infos[i] = t.info()
	}
	return Stats{
		Queued:    len(infos),
		Draining:  s.draining.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Current:   current,
		Tasks:     infos,
	}
}

// Shutdown stops accepting tasks, cancels the running one, drops the queue
// and waits for the drain goroutine to exit or ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := make([]*Task, len(s.queue))
	copy(dropped, s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	for _, t := range dropped {
		s.emit(TaskEvent{Type: EventDropped, Task: t.info()})
	}
	if len(dropped) > 0 {
		logging.Infof("[Scheduler] Dropped %d queued tasks on shutdown", len(dropped))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
