package tasks

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/db"
	"github.com/neboloop/architect/internal/httputil"
	"github.com/neboloop/architect/internal/logging"
	"github.com/neboloop/architect/internal/middleware"
	"github.com/neboloop/architect/internal/svc"
	"github.com/neboloop/architect/internal/types"
)

const maxTitleLen = 200

// SubmitTaskHandler queues a background task and answers 202 with its ID
func SubmitTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SubmitTaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if req.Title == "" {
			req.Title = defaultTitle(req.Instruction)
		}

		id, err := svcCtx.Scheduler.Submit(req.Priority, req.Title, req.Instruction)
		if err != nil {
			if errors.Is(err, agenthub.ErrSchedulerClosed) {
				httputil.ErrorWithCode(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			logging.Errorf("Failed to submit task: %v", err)
			httputil.InternalError(w, "failed to submit task")
			return
		}
		if who := middleware.SubjectFrom(r.Context()); who != "" {
			logging.Infof("[Tasks] %s submitted task %s", who, id)
		}
		httputil.WriteJSON(w, http.StatusAccepted, types.SubmitTaskResponse{Id: id})
	}
}

// ListTasksHandler returns the journal, newest first
func ListTasksHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcCtx.Journal == nil {
			httputil.InternalError(w, "task journal not configured")
			return
		}

		var req types.ListTasksRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if req.Limit <= 0 || req.Limit > 500 {
			req.Limit = 50
		}

		runs, err := svcCtx.Journal.ListRuns(r.Context(), req.Limit)
		if err != nil {
			logging.Errorf("Failed to list tasks: %v", err)
			httputil.InternalError(w, "failed to list tasks")
			return
		}
		httputil.OkJSON(w, types.ListTasksResponse{Tasks: runs})
	}
}

// GetTaskHandler returns one journal row
func GetTaskHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcCtx.Journal == nil {
			httputil.InternalError(w, "task journal not configured")
			return
		}

		var req types.GetTaskRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}

		run, err := svcCtx.Journal.GetRun(r.Context(), req.Id)
		if err != nil {
			if errors.Is(err, db.ErrRunNotFound) {
				httputil.NotFound(w, "task not found")
				return
			}
			logging.Errorf("Failed to get task: %v", err)
			httputil.InternalError(w, "failed to get task")
			return
		}
		httputil.OkJSON(w, types.GetTaskResponse{Task: run})
	}
}

// SchedulerStatsHandler reports queue depth, counters and schedules
func SchedulerStatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := svcCtx.ScheduleNames()
		sort.Strings(names)
		httputil.OkJSON(w, types.SchedulerStatsResponse{
			Stats:     svcCtx.Scheduler.Stats(),
			Schedules: names,
		})
	}
}

func defaultTitle(instruction string) string {
	title := strings.SplitN(instruction, "\n", 2)[0]
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	return title
}
