package types

import (
	"errors"
	"strings"

	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/db"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Task types

type SubmitTaskRequest struct {
	Priority    int    `json:"priority"`
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
}

// Validate trims the text fields and requires an instruction
func (r *SubmitTaskRequest) Validate() error {
	r.Instruction = strings.TrimSpace(r.Instruction)
	r.Title = strings.TrimSpace(r.Title)
	if r.Instruction == "" {
		return errors.New("instruction is required")
	}
	return nil
}

type SubmitTaskResponse struct {
	Id string `json:"id"`
}

type ListTasksRequest struct {
	Limit int `form:"limit,omitempty"`
}

type ListTasksResponse struct {
	Tasks []db.TaskRun `json:"tasks"`
}

type GetTaskRequest struct {
	Id string `path:"id"`
}

type GetTaskResponse struct {
	Task db.TaskRun `json:"task"`
}

type SchedulerStatsResponse struct {
	Stats     agenthub.Stats `json:"stats"`
	Schedules []string       `json:"schedules"`
}
