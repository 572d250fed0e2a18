package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/review-moderation/backend/internal/review"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrInvalidTransition  = errors.New("invalid session state transition")
)

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateInProgress State = "in_progress"
	StateDisplaying State = "displaying"
	StateError      State = "error"
)

// Notice is a user-facing message. A zero ExpiresAt keeps it until the next submission.
type Notice struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (n *Notice) Expired(now time.Time) bool {
	return n != nil && !n.ExpiresAt.IsZero() && !now.Before(n.ExpiresAt)
}

type Session struct {
	ID        string           `json:"id"`
	State     State            `json:"state"`
	Analysis  *review.Analysis `json:"analysis,omitempty"`
	Notice    *Notice          `json:"notice,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func New(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) InProgress() bool {
	return s.State == StateInProgress
}

func (s *Session) Clone() *Session {
	c := *s
	if s.Notice != nil {
		n := *s.Notice
		c.Notice = &n
	}
	return &c
}

// Settle drops an expired transient notice and returns the session to its
// resting state.
func (s *Session) Settle(now time.Time) {
	if s.State != StateError || !s.Notice.Expired(now) {
		return
	}
	s.Notice = nil
	s.State = s.restingState()
}

func (s *Session) restingState() State {
	if s.Analysis != nil {
		return StateDisplaying
	}
	return StateIdle
}

func (s *Session) BeginSubmit(now time.Time) error {
	s.Settle(now)
	switch s.State {
	case StateInProgress, StateValidating:
		return ErrAnalysisInProgress
	}
	s.State = StateValidating
	s.Notice = nil
	s.UpdatedAt = now
	return nil
}

func (s *Session) Reject(message string, ttl time.Duration, now time.Time) error {
	if s.State != StateValidating {
		return s.invalid(StateError)
	}
	s.State = StateError
	s.Notice = &Notice{Message: message, ExpiresAt: now.Add(ttl)}
	s.UpdatedAt = now
	return nil
}

func (s *Session) Start(now time.Time) error {
	if s.State != StateValidating {
		return s.invalid(StateInProgress)
	}
	s.State = StateInProgress
	s.UpdatedAt = now
	return nil
}

func (s *Session) Complete(a *review.Analysis, now time.Time) error {
	if s.State != StateInProgress {
		return s.invalid(StateDisplaying)
	}
	s.State = StateDisplaying
	s.Analysis = a
	s.Notice = nil
	s.UpdatedAt = now
	return nil
}

func (s *Session) Fail(message string, now time.Time) error {
	if s.State != StateInProgress {
		return s.invalid(StateError)
	}
	s.State = StateError
	s.Analysis = nil
	s.Notice = &Notice{Message: message}
	s.UpdatedAt = now
	return nil
}

func (s *Session) invalid(to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
}
