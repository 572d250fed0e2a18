package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/review"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/internal/session"
	"github.com/review-moderation/backend/pkg/logger"
)

const SessionCookie = "review_session"

type PageHandler struct {
	controller *reviewform.Controller
	sessionTTL time.Duration
}

func NewPageHandler(controller *reviewform.Controller, sessionTTL time.Duration) *PageHandler {
	return &PageHandler{
		controller: controller,
		sessionTTL: sessionTTL,
	}
}

type pageData struct {
	Platforms  []review.Platform
	Stars      []int
	InProgress bool
	Notice     string
	NoticeMS   int64
	Analysis   *review.Analysis
}

func (h *PageHandler) Show(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return h.render(c, fiber.StatusOK, sess)
}

func (h *PageHandler) Submit(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}

	form, err := ParseForm(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form submission")
	}

	result, err := h.controller.Submit(c.UserContext(), sess.ID, form)
	if result != nil {
		sess = result
	}

	var verr *review.ValidationError
	switch {
	case err == nil:
		return h.render(c, fiber.StatusOK, sess)
	case errors.As(err, &verr):
		return h.render(c, fiber.StatusUnprocessableEntity, sess)
	case errors.Is(err, reviewform.ErrAnalysisFailed):
		return h.render(c, fiber.StatusOK, sess)
	case errors.Is(err, session.ErrAnalysisInProgress), errors.Is(err, session.ErrConcurrentUpdate):
		if snap, serr := h.controller.Snapshot(c.UserContext(), sess.ID); serr == nil {
			sess = snap
		}
		return h.render(c, fiber.StatusConflict, sess)
	default:
		logger.Error("Review form submission failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString(reviewform.FailureNotice)
	}
}

// session loads the caller's session from the cookie, creating a fresh one
// when the cookie is missing or stale.
func (h *PageHandler) session(c *fiber.Ctx) (*session.Session, error) {
	if id := c.Cookies(SessionCookie); id != "" {
		sess, err := h.controller.Snapshot(c.UserContext(), id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			logger.Error("Failed to load session", zap.Error(err))
			return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to load session")
		}
	}

	sess, err := h.controller.Store().Create(c.UserContext())
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to create session")
	}

	cookie := &fiber.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if h.sessionTTL > 0 {
		cookie.Expires = time.Now().Add(h.sessionTTL)
	}
	c.Cookie(cookie)

	return sess, nil
}

func (h *PageHandler) render(c *fiber.Ctx, status int, sess *session.Session) error {
	data := pageData{
		Platforms:  review.Platforms,
		Stars:      []int{0, 1, 2, 3, 4},
		InProgress: sess.InProgress(),
		Analysis:   sess.Analysis,
	}
	if sess.Notice != nil {
		data.Notice = sess.Notice.Message
		if !sess.Notice.ExpiresAt.IsZero() {
			data.NoticeMS = time.Until(sess.Notice.ExpiresAt).Milliseconds()
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		logger.Error("Failed to render page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to render page")
	}

	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Review Moderation Bot</title>
</head>
<body>
<form id="review_form" method="post" action="/review">
  <h1>Review Moderation Bot</h1>
  <label>Review<br>
    <textarea name="review" rows="6" cols="60" placeholder="Provide the content of the review you wish to analyze"></textarea>
  </label><br>
  <label>Stakeholder<br>
    <input type="text" name="stakeholder" placeholder="Enter the name of the stakeholder (e.g., Restaurant or Hotel Name)">
  </label><br>
  <label>Platform<br>
    <select name="platform" title="Select the platform where the review was posted">
      {{range .Platforms}}<option value="{{.}}">{{.}}</option>{{end}}
    </select>
  </label><br>
  <fieldset>
    <legend>Rating</legend>
    {{range .Stars}}<label><input type="radio" name="selection" value="{{.}}">{{inc .}}&#9733;</label> {{end}}
  </fieldset>
  <button type="submit" id="submit"{{if .InProgress}} disabled{{end}}>Analyze Review</button>
  <span id="busy"{{if not .InProgress}} hidden{{end}}>Analyzing Review...</span>
</form>
{{with .Notice}}<p id="notice" class="error" role="alert">{{.}}</p>{{end}}
{{with .Analysis}}
<section id="analysis">
  <h1>Review Analysis</h1>
  <hr>
  <p><strong>Review content:</strong> {{.Input.Review}}</p>
  <p><strong>Stakeholder:</strong> {{.Input.Stakeholder}}</p>
  <p><strong>Rating:</strong> {{.Input.Rating}}</p>
  <p><strong>Platform where review was posted:</strong> {{.Input.Platform}}</p>
  <hr>
  <pre>{{.Text}}</pre>
</section>
{{end}}
<script>
document.getElementById("review_form").addEventListener("submit", function () {
  document.getElementById("submit").disabled = true;
  document.getElementById("busy").hidden = false;
});
{{if gt .NoticeMS 0}}setTimeout(function () { document.getElementById("notice").remove(); }, {{.NoticeMS}});{{end}}
</script>
</body>
</html>
`))
