// Package session holds conversations and the foreground chat session that
// owns one of them at a time.
package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrSessionBusy is returned when a turn is already running on the session.
var ErrSessionBusy = errors.New("session is busy with another turn")

// Session is a foreground chat. Only one turn may be in flight at a time;
// a second Begin while busy is rejected rather than queued.
type Session struct {
	ID      string
	Persona string

	busy atomic.Bool
	mu   sync.Mutex
	conv *Conversation
}

// New creates a session seeded with the given system prompt
func New(persona, systemPrompt string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Persona: persona,
		conv:    NewConversation(systemPrompt),
	}
}

// Begin claims the session for one turn and returns a private copy of the
// conversation to extend. Callers must call End exactly once afterwards.
func (s *Session) Begin() (*Conversation, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone(), nil
}

// End stores the extended conversation (nil keeps the previous one) and
// releases the session.
func (s *Session) End(conv *Conversation) {
	if conv != nil {
		s.mu.Lock()
		s.conv = conv.Clone()
		s.mu.Unlock()
	}
	s.busy.Store(false)
}

// Busy reports whether a turn is in flight
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Conversation returns a snapshot of the current conversation
func (s *Session) Conversation() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone()
}

// Reset replaces the conversation with a fresh one
func (s *Session) Reset(persona, systemPrompt string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	defer s.busy.Store(false)
	s.mu.Lock()
	s.Persona = persona
	s.conv = NewConversation(systemPrompt)
	s.mu.Unlock()
	return nil
}
