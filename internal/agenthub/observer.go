package agenthub

import (
	"time"

	"go.uber.org/zap"

	"github.com/neboloop/architect/internal/logging"
)

// EventType names a task lifecycle transition
type EventType string

const (
	EventSubmitted EventType = "task_submitted"
	EventStarted   EventType = "task_started"
	EventCompleted EventType = "task_completed"
	EventFailed    EventType = "task_failed"
	EventDropped   EventType = "task_dropped"
)

// Rank orders lifecycle events so late deliveries cannot move a task backwards
func (t EventType) Rank() int {
	switch t {
	case EventSubmitted:
		return 0
	case EventStarted:
		return 1
	default:
		return 2
	}
}

// TaskEvent is delivered to observers for every lifecycle transition
type TaskEvent struct {
	Type     EventType     `json:"type"`
	Task     TaskInfo      `json:"task"`
	Result   string        `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	At       time.Time     `json:"at"`
}

// Observer receives task events. Calls are synchronous from the submitting
// or draining goroutine, so implementations should return quickly.
type Observer interface {
	OnTaskEvent(TaskEvent)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(TaskEvent)

// OnTaskEvent calls f
func (f ObserverFunc) OnTaskEvent(ev TaskEvent) { f(ev) }

// MultiObserver fans events out in order
type MultiObserver []Observer

// OnTaskEvent forwards ev to every observer
func (m MultiObserver) OnTaskEvent(ev TaskEvent) {
	for _, o := range m {
		if o != nil {
			o.OnTaskEvent(ev)
		}
	}
}

// LogObserver writes task events to the structured logger
type LogObserver struct{}

// OnTaskEvent logs ev
func (LogObserver) OnTaskEvent(ev TaskEvent) {
	log := logging.L().With(
		zap.String("event", string(ev.Type)),
		zap.String("task", ev.Task.ID),
		zap.String("title", ev.Task.Title),
		zap.Int("priority", ev.Task.Priority),
	)
	switch ev.Type {
	case EventFailed:
		log.Warn("background task failed", zap.String("error", ev.Error), zap.Duration("duration", ev.Duration))
	case EventCompleted:
		log.Info("background task completed", zap.Duration("duration", ev.Duration))
	case EventDropped:
		log.Info("background task dropped")
	default:
		log.Debug("background task event")
	}
}
