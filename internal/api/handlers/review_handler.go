package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/review"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/internal/session"
	"github.com/review-moderation/backend/pkg/logger"
)

type ReviewHandler struct {
	controller *reviewform.Controller
}

func NewReviewHandler(controller *reviewform.Controller) *ReviewHandler {
	return &ReviewHandler{
		controller: controller,
	}
}

type SessionView struct {
	ID         string           `json:"id"`
	State      session.State    `json:"state"`
	InProgress bool             `json:"in_progress"`
	Notice     *session.Notice  `json:"notice,omitempty"`
	Analysis   *review.Analysis `json:"analysis,omitempty"`
	Rendered   string           `json:"rendered,omitempty"`
}

func NewSessionView(s *session.Session) SessionView {
	return SessionView{
		ID:         s.ID,
		State:      s.State,
		InProgress: s.InProgress(),
		Notice:     s.Notice,
		Analysis:   s.Analysis,
		Rendered:   review.Render(s.Analysis),
	}
}

func (h *ReviewHandler) CreateSession(c *fiber.Ctx) error {
	sess, err := h.controller.Store().Create(c.UserContext())
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(NewSessionView(sess))
}

func (h *ReviewHandler) GetSession(c *fiber.Ctx) error {
	sess, err := h.controller.Snapshot(c.UserContext(), c.Params("id"))
	if err != nil {
		return sessionError(c, err)
	}

	return c.JSON(NewSessionView(sess))
}

func (h *ReviewHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.controller.Store().Delete(c.UserContext(), c.Params("id")); err != nil {
		return sessionError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReviewHandler) SubmitReview(c *fiber.Ctx) error {
	form, err := ParseForm(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	sess, err := h.controller.Submit(c.UserContext(), c.Params("id"), form)

	var verr *review.ValidationError
	switch {
	case err == nil:
		return c.JSON(NewSessionView(sess))
	case errors.As(err, &verr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   reviewform.ValidationNotice,
			"fields":  verr.Fields,
			"session": NewSessionView(sess),
		})
	case errors.Is(err, reviewform.ErrAnalysisFailed) && sess != nil:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   reviewform.FailureNotice,
			"session": NewSessionView(sess),
		})
	default:
		return sessionError(c, err)
	}
}

func sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	case errors.Is(err, session.ErrAnalysisInProgress), errors.Is(err, session.ErrConcurrentUpdate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Analysis already in progress",
		})
	default:
		logger.Error("Session request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process review",
		})
	}
}

// ParseForm reads a submission from a JSON or form-encoded body. Form values
// are copied because fiber reuses its request buffers.
func ParseForm(c *fiber.Ctx) (review.Form, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var form review.Form
		if err := c.BodyParser(&form); err != nil {
			return review.Form{}, err
		}
		return form, nil
	}

	form := review.Form{
		Review:      strings.Clone(c.FormValue("review")),
		Stakeholder: strings.Clone(c.FormValue("stakeholder")),
		Platform:    strings.Clone(c.FormValue("platform")),
	}

	if raw := strings.TrimSpace(c.FormValue("selection")); raw != "" {
		selection, err := strconv.Atoi(raw)
		if err != nil {
			return review.Form{}, err
		}
		form.Selection = &selection
	}

	return form, nil
}
