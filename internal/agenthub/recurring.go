package agenthub

import (
	"fmt"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	"github.com/neboloop/architect/internal/logging"
)

// Schedule submits a task on a cron spec. Specs take five fields, or six
// with a leading seconds field, or a descriptor such as @hourly.
type Schedule struct {
	Name        string `yaml:"name" json:"name"`
	Spec        string `yaml:"spec" json:"spec"`
	Priority    int    `yaml:"priority" json:"priority"`
	Title       string `yaml:"title" json:"title"`
	Instruction string `yaml:"instruction" json:"instruction"`
}

var cronParser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Recurring feeds cron-scheduled tasks into a Scheduler
type Recurring struct {
	scheduler *Scheduler
	cron      *cronlib.Cron
	mu        sync.Mutex
	jobs      map[string]cronlib.EntryID
}

// NewRecurring creates a cron driver for s. Call Start to begin firing.
func NewRecurring(s *Scheduler) *Recurring {
	return &Recurring{
		scheduler: s,
		cron:      cronlib.New(cronlib.WithParser(cronParser)),
		jobs:      make(map[string]cronlib.EntryID),
	}
}

// Add registers sched, replacing any schedule with the same name
func (r *Recurring) Add(sched Schedule) error {
	if sched.Name == "" {
		sched.Name = sched.Title
	}
	if sched.Name == "" {
		return fmt.Errorf("schedule needs a name or title")
	}
	if sched.Instruction == "" {
		return fmt.Errorf("schedule %q has no instruction", sched.Name)
	}
	if _, err := cronParser.Parse(sched.Spec); err != nil {
		return fmt.Errorf("schedule %q: invalid spec %q: %w", sched.Name, sched.Spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.jobs[sched.Name]; ok {
		r.cron.Remove(id)
	}
	id, err := r.cron.AddFunc(sched.Spec, func() { r.fire(sched) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", sched.Name, err)
	}
	r.jobs[sched.Name] = id
	logging.Infof("[Recurring] Scheduled %q (%s)", sched.Name, sched.Spec)
	return nil
}

// Remove unregisters a schedule by name
func (r *Recurring) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.jobs[name]
	if !ok {
		return false
	}
	r.cron.Remove(id)
	delete(r.jobs, name)
	return true
}

// Names lists registered schedules
func (r *Recurring) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	return names
}

// Start begins firing schedules
func (r *Recurring) Start() {
	r.cron.Start()
}

// Stop halts the cron timer and waits for running submissions
func (r *Recurring) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Recurring) fire(sched Schedule) {
	title := sched.Title
	if title == "" {
		title = sched.Name
	}
	id, err := r.scheduler.Submit(sched.Priority, title, sched.Instruction)
	if err != nil {
		logging.Warnf("[Recurring] Could not submit %q: %v", sched.Name, err)
		return
	}
	logging.Debugf("[Recurring] Submitted %q as task %s", sched.Name, id)
}
