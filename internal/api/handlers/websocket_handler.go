package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/review"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/internal/session"
	"github.com/review-moderation/backend/pkg/logger"
)

type WebSocketHandler struct {
	controller *reviewform.Controller
}

func NewWebSocketHandler(controller *reviewform.Controller) *WebSocketHandler {
	return &WebSocketHandler{
		controller: controller,
	}
}

// wsMessage is a client frame: "submit" carries the form, "snapshot" asks
// for the current session state.
type wsMessage struct {
	Type string `json:"type"`
	review.Form
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	sessionID := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("session_id", sessionID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("session_id", sessionID))
	}()

	ctx := context.Background()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		var err error
		switch msg.Type {
		case "submit":
			err = h.submit(ctx, c, sessionID, msg.Form)
		case "snapshot":
			err = h.snapshot(ctx, c, sessionID)
		default:
			err = h.sendError(c, "Unknown message type", nil)
		}

		if err != nil {
			logger.Warn("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) submit(ctx context.Context, c *websocket.Conn, sessionID string, form review.Form) error {
	// The busy frame goes out only once the submission is accepted.
	var statusErr error
	sess, err := h.controller.SubmitWithProgress(ctx, sessionID, form, func(*session.Session) {
		statusErr = h.sendStatus(c, "Analyzing Review...")
	})
	if statusErr != nil {
		return statusErr
	}

	var verr *review.ValidationError
	switch {
	case err == nil:
		return h.sendComplete(c, sess)
	case errors.As(err, &verr):
		return h.sendError(c, reviewform.ValidationNotice, sess)
	case errors.Is(err, reviewform.ErrAnalysisFailed):
		return h.sendError(c, reviewform.FailureNotice, sess)
	case errors.Is(err, session.ErrAnalysisInProgress), errors.Is(err, session.ErrConcurrentUpdate):
		return h.sendError(c, "Analysis already in progress", nil)
	case errors.Is(err, session.ErrSessionNotFound):
		return h.sendError(c, "Session not found", nil)
	default:
		logger.Error("WebSocket submission failed", zap.Error(err))
		return h.sendError(c, reviewform.FailureNotice, nil)
	}
}

func (h *WebSocketHandler) snapshot(ctx context.Context, c *websocket.Conn, sessionID string) error {
	sess, err := h.controller.Snapshot(ctx, sessionID)
	if err != nil {
		return h.sendError(c, "Session not found", nil)
	}
	return h.sendComplete(c, sess)
}

func (h *WebSocketHandler) sendStatus(c *websocket.Conn, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    "status",
		"content": content,
	})
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, sess *session.Session) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    "complete",
		"session": NewSessionView(sess),
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string, sess *session.Session) error {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}
	if sess != nil {
		msg["session"] = NewSessionView(sess)
	}
	return c.WriteJSON(msg)
}
