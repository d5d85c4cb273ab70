package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationValidate(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "read_file", Arguments: `{"path":"a.go"}`}

	tests := []struct {
		name    string
		msgs    []Message
		wantErr bool
	}{
		{"empty", nil, true},
		{"user first", []Message{UserMessage("hi")}, true},
		{"system only", []Message{SystemMessage("sys")}, false},
		{"correlated tool", []Message{
			SystemMessage("sys"),
			UserMessage("hi"),
			AssistantMessage("", call),
			ToolMessage(call, "ok"),
		}, false},
		{"dangling tool", []Message{
			SystemMessage("sys"),
			ToolMessage(call, "ok"),
		}, true},
		{"unknown role", []Message{SystemMessage("sys"), {Role: "robot"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromMessages(tt.msgs).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConversation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversationCopiesAreIndependent(t *testing.T) {
	conv := NewConversation("sys")
	conv.Append(AssistantMessage("", ToolCall{ID: "1", Name: "x"}))

	clone := conv.Clone()
	clone.Append(UserMessage("more"))

	msgs := conv.Messages()
	msgs[1].ToolCalls[0].Name = "mutated"

	assert.Equal(t, 2, conv.Len())
	assert.Equal(t, 3, clone.Len())
	last, _ := conv.Last()
	assert.Equal(t, "x", last.ToolCalls[0].Name)
	assert.Len(t, conv.Since(1), 1)
	assert.Nil(t, conv.Since(5))
}

func TestSessionRejectsConcurrentTurns(t *testing.T) {
	s := New("default", "sys")

	conv, err := s.Begin()
	require.NoError(t, err)

	_, err = s.Begin()
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.ErrorIs(t, s.Reset("other", "sys2"), ErrSessionBusy)

	conv.Append(UserMessage("hello"))
	s.End(conv)

	assert.False(t, s.Busy())
	assert.Equal(t, 2, s.Conversation().Len())
}

func TestSessionSingleTurnInFlight(t *testing.T) {
	s := New("default", "sys")

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.Begin(); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
