package reviewform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/analysis"
	"github.com/review-moderation/backend/internal/metrics"
	"github.com/review-moderation/backend/internal/moderation"
	"github.com/review-moderation/backend/internal/review"
	"github.com/review-moderation/backend/internal/session"
	"github.com/review-moderation/backend/pkg/logger"
	"github.com/review-moderation/backend/pkg/outcome"
)

const (
	ValidationNotice = "Please fill all the fields"
	FailureNotice    = "An error occurred. Please try again later."

	DefaultNoticeTTL = 3 * time.Second

	// terminalWriteAttempts bounds how often the final transition of a cycle
	// is re-applied after a store write conflict.
	terminalWriteAttempts = 3
)

var ErrAnalysisFailed = errors.New("review analysis failed")

type Moderator interface {
	Check(ctx context.Context, text string) outcome.Outcome[moderation.Result]
}

type Analyzer interface {
	Analyze(ctx context.Context, data analysis.ReviewData, mod outcome.Outcome[moderation.Result]) outcome.Outcome[string]
}

type Controller struct {
	store     session.Store
	moderator Moderator
	analyzer  Analyzer
	noticeTTL time.Duration
	now       func() time.Time
}

func NewController(store session.Store, moderator Moderator, analyzer Analyzer, noticeTTL time.Duration) *Controller {
	if noticeTTL <= 0 {
		noticeTTL = DefaultNoticeTTL
	}
	return &Controller{
		store:     store,
		moderator: moderator,
		analyzer:  analyzer,
		noticeTTL: noticeTTL,
		now:       time.Now,
	}
}

func (c *Controller) Store() session.Store {
	return c.store
}

// Snapshot returns the session as it should be displayed right now.
func (c *Controller) Snapshot(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Settle(c.now())
	return sess, nil
}

// Submit runs one moderation and analysis cycle for the session. The
// returned session is the state after the cycle. Validation problems return
// a *review.ValidationError without touching the network, and a session that
// is already busy returns session.ErrAnalysisInProgress.
func (c *Controller) Submit(ctx context.Context, sessionID string, form review.Form) (*session.Session, error) {
	return c.SubmitWithProgress(ctx, sessionID, form, nil)
}

// SubmitWithProgress is Submit with a started callback, called with the
// in-progress session once the submission is accepted and before any
// network call. Rejected submissions never call it.
func (c *Controller) SubmitWithProgress(ctx context.Context, sessionID string, form review.Form, started func(*session.Session)) (*session.Session, error) {
	var input review.Input
	var invalid error

	sess, err := c.store.Update(ctx, sessionID, func(s *session.Session) error {
		now := c.now()
		if err := s.BeginSubmit(now); err != nil {
			return err
		}

		input, invalid = form.Build()
		if invalid != nil {
			return s.Reject(ValidationNotice, c.noticeTTL, now)
		}
		return s.Start(now)
	})
	if err != nil {
		if errors.Is(err, session.ErrAnalysisInProgress) || errors.Is(err, session.ErrConcurrentUpdate) {
			metrics.SubmissionsTotal.WithLabelValues("busy").Inc()
		}
		return nil, err
	}

	if invalid != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		logger.Debug("Review submission rejected", zap.String("session_id", sessionID), zap.Error(invalid))
		return sess, invalid
	}

	if started != nil {
		started(sess)
	}

	return c.run(ctx, sessionID, input)
}

func (c *Controller) run(ctx context.Context, sessionID string, input review.Input) (*session.Session, error) {
	metrics.AnalysesInProgress.Inc()
	defer metrics.AnalysesInProgress.Dec()

	logger.Info("Review analysis started",
		zap.String("session_id", sessionID),
		zap.String("platform", string(input.Platform)),
	)

	// The flag must be cleared even if the request context is cancelled
	// or a client panics.
	settled := false
	finishCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			if !settled {
				c.fail(finishCtx, sessionID)
			}
			panic(r)
		}
	}()

	mod := c.moderator.Check(ctx, input.Review)

	text := c.analyzer.Analyze(ctx, analysis.ReviewData{
		Review:      input.Review,
		Stakeholder: input.Stakeholder,
		Rating:      input.Rating,
		Platform:    string(input.Platform),
	}, mod)

	if !text.OK() {
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		sess, err := c.fail(finishCtx, sessionID)
		if err != nil {
			return nil, err
		}
		settled = true
		return sess, fmt.Errorf("%w: %v", ErrAnalysisFailed, text.Err())
	}

	a := &review.Analysis{
		Input:     input,
		Text:      text.Value(),
		CreatedAt: c.now(),
	}

	sess, err := c.finish(finishCtx, sessionID, func(s *session.Session) error {
		return s.Complete(a, c.now())
	})
	if err != nil {
		logger.Error("Failed to store analysis", zap.String("session_id", sessionID), zap.Error(err))
		metrics.SubmissionsTotal.WithLabelValues("failed").Inc()
		failed, ferr := c.fail(finishCtx, sessionID)
		if ferr != nil {
			return nil, err
		}
		settled = true
		return failed, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	settled = true

	metrics.SubmissionsTotal.WithLabelValues("ok").Inc()
	logger.Info("Review analysis completed",
		zap.String("session_id", sessionID),
		zap.Bool("with_moderation", mod.OK()),
	)

	return sess, nil
}

func (c *Controller) fail(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := c.finish(ctx, sessionID, func(s *session.Session) error {
		return s.Fail(FailureNotice, c.now())
	})
	if err != nil {
		logger.Error("Failed to record analysis failure", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return sess, nil
}

// finish applies a terminal transition. A write conflict means the session
// was rewritten under us, so the transition is re-applied to the fresh copy.
func (c *Controller) finish(ctx context.Context, sessionID string, apply func(*session.Session) error) (*session.Session, error) {
	var err error
	for attempt := 0; attempt < terminalWriteAttempts; attempt++ {
		var sess *session.Session
		sess, err = c.store.Update(ctx, sessionID, apply)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrConcurrentUpdate) {
			return nil, err
		}
	}
	return nil, err
}
