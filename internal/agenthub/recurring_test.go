package agenthub

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurringValidation(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, task *Task) (string, error) { return "", nil }, nil)
	defer shutdown(t, s)
	r := NewRecurring(s)

	tests := []struct {
		name  string
		sched Schedule
		ok    bool
	}{
		{"five fields", Schedule{Name: "nightly", Spec: "0 3 * * *", Instruction: "audit"}, true},
		{"six fields", Schedule{Name: "secondly", Spec: "*/30 * * * * *", Instruction: "audit"}, true},
		{"descriptor", Schedule{Name: "hourly", Spec: "@hourly", Instruction: "audit"}, true},
		{"title as name", Schedule{Title: "Weekly review", Spec: "@weekly", Instruction: "review"}, true},
		{"bad spec", Schedule{Name: "bad", Spec: "every tuesday", Instruction: "audit"}, false},
		{"no name", Schedule{Spec: "@daily", Instruction: "audit"}, false},
		{"no instruction", Schedule{Name: "empty", Spec: "@daily"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Add(tt.sched)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.ElementsMatch(t, []string{"nightly", "secondly", "hourly", "Weekly review"}, r.Names())
	assert.True(t, r.Remove("hourly"))
	assert.False(t, r.Remove("hourly"))
}

func TestRecurringSubmits(t *testing.T) {
	var mu sync.Mutex
	var titles []string
	s := NewScheduler(func(ctx context.Context, task *Task) (string, error) {
		mu.Lock()
		titles = append(titles, task.Title)
		mu.Unlock()
		return "", nil
	}, nil)
	defer shutdown(t, s)

	r := NewRecurring(s)
	require.NoError(t, r.Add(Schedule{Name: "tick", Spec: "@every 1s", Priority: 3, Instruction: "check the build"}))
	r.Start()
	waitFor(t, func() bool { return s.Stats().Processed >= 1 })
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "tick", titles[0])
}
