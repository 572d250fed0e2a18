package session

import (
	"errors"
	"testing"
	"time"

	"github.com/review-moderation/backend/internal/review"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestHappyPathTransitions(t *testing.T) {
	s := New("s1", t0)
	if s.State != StateIdle || s.InProgress() {
		t.Fatalf("new session state = %s", s.State)
	}

	if err := s.BeginSubmit(t0); err != nil {
		t.Fatalf("BeginSubmit: %v", err)
	}
	if s.State != StateValidating {
		t.Fatalf("state = %s, want validating", s.State)
	}

	if err := s.Start(t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.InProgress() {
		t.Fatal("expected in progress")
	}

	a := &review.Analysis{Text: "ok"}
	if err := s.Complete(a, t0); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.State != StateDisplaying || s.Analysis != a || s.InProgress() {
		t.Fatalf("after complete: %+v", s)
	}
}

func TestSubmitRejectedWhileInProgress(t *testing.T) {
	s := New("s1", t0)
	_ = s.BeginSubmit(t0)
	_ = s.Start(t0)

	if err := s.BeginSubmit(t0); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("err = %v, want ErrAnalysisInProgress", err)
	}
	if !s.InProgress() {
		t.Fatal("rejected submit must not change state")
	}
}

func TestValidationNoticeExpires(t *testing.T) {
	s := New("s1", t0)
	prior := &review.Analysis{Text: "earlier"}
	s.Analysis = prior
	s.State = StateDisplaying

	_ = s.BeginSubmit(t0)
	if err := s.Reject("Please fill all the fields", 3*time.Second, t0); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if s.State != StateError || s.Notice == nil {
		t.Fatalf("after reject: %+v", s)
	}

	s.Settle(t0.Add(2 * time.Second))
	if s.State != StateError {
		t.Fatal("notice must stay visible before it expires")
	}

	s.Settle(t0.Add(3 * time.Second))
	if s.State != StateDisplaying || s.Notice != nil || s.Analysis != prior {
		t.Fatalf("after expiry: %+v", s)
	}
}

func TestFailureClearsAnalysisAndKeepsNotice(t *testing.T) {
	s := New("s1", t0)
	s.Analysis = &review.Analysis{Text: "earlier"}
	s.State = StateDisplaying

	_ = s.BeginSubmit(t0)
	_ = s.Start(t0)
	if err := s.Fail("An error occurred. Please try again later.", t0); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if s.State != StateError || s.Analysis != nil || s.InProgress() {
		t.Fatalf("after fail: %+v", s)
	}

	s.Settle(t0.Add(time.Hour))
	if s.State != StateError {
		t.Fatal("failure notice must persist until the next submission")
	}

	if err := s.BeginSubmit(t0.Add(time.Hour)); err != nil {
		t.Fatalf("BeginSubmit after failure: %v", err)
	}
	if s.Notice != nil {
		t.Fatal("new submission must clear the notice")
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := New("s1", t0)
	if err := s.Start(t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Start from idle: %v", err)
	}
	if err := s.Complete(&review.Analysis{}, t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Complete from idle: %v", err)
	}
	if err := s.Fail("x", t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fail from idle: %v", err)
	}
	if err := s.Reject("x", time.Second, t0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Reject from idle: %v", err)
	}
}
