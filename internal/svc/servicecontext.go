package svc

import (
	"github.com/neboloop/architect/internal/agent/config"
	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/db"
)

// ServiceContext carries the shared dependencies of the HTTP handlers
type ServiceContext struct {
	Config  *config.Config
	Version string // Build version (e.g. "v0.2.0" or "dev")

	Scheduler *agenthub.Scheduler
	Recurring *agenthub.Recurring // nil when no schedules are configured
	Journal   *db.TaskJournal     // nil when the journal is disabled
}

// ScheduleNames lists registered recurring schedules
func (s *ServiceContext) ScheduleNames() []string {
	if s.Recurring == nil {
		return []string{}
	}
	return s.Recurring.Names()
}
