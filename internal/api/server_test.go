package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/review-moderation/backend/internal/analysis"
	"github.com/review-moderation/backend/internal/api/handlers"
	"github.com/review-moderation/backend/internal/moderation"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/internal/session"
	"github.com/review-moderation/backend/pkg/outcome"
)

type stubModerator struct {
	calls  int
	result outcome.Outcome[moderation.Result]
}

func (s *stubModerator) Check(context.Context, string) outcome.Outcome[moderation.Result] {
	s.calls++
	return s.result
}

type stubAnalyzer struct {
	calls  int
	result outcome.Outcome[string]
}

func (s *stubAnalyzer) Analyze(context.Context, analysis.ReviewData, outcome.Outcome[moderation.Result]) outcome.Outcome[string] {
	s.calls++
	return s.result
}

const mockedAnalysis = "Legitimacy score: 0.93\nSentiment: positive\nConclusion: Genuine praise."

func newTestApp(t *testing.T, mod *stubModerator, an *stubAnalyzer) *testApp {
	t.Helper()
	store := session.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })
	controller := reviewform.NewController(store, mod, an, 0)
	return &testApp{
		t:          t,
		store:      store,
		controller: controller,
		app:        NewApp(Options{MaxReviewChars: 50, IsDevelopment: true}, controller),
	}
}

type testApp struct {
	t          *testing.T
	store      *session.MemoryStore
	controller *reviewform.Controller
	app        interface {
		Test(req *http.Request, msTimeout ...int) (*http.Response, error)
	}
}

func (a *testApp) do(req *http.Request) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.app.Test(req, -1)
	if err != nil {
		a.t.Fatalf("request %s %s: %v", req.Method, req.URL.Path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

func (a *testApp) createSession() string {
	a.t.Helper()
	resp, body := a.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if resp.StatusCode != http.StatusCreated {
		a.t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var view handlers.SessionView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		a.t.Fatalf("decode session: %v", err)
	}
	return view.ID
}

func jsonRequest(method, path string, payload interface{}) *http.Request {
	data, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func okStubs() (*stubModerator, *stubAnalyzer) {
	return &stubModerator{result: outcome.Ok(moderation.Result{Rules: json.RawMessage(`{}`), ML: json.RawMessage(`{}`)})},
		&stubAnalyzer{result: outcome.Ok(mockedAnalysis)}
}

func TestSubmitReviewJSON(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	id := app.createSession()

	resp, body := app.do(jsonRequest(http.MethodPost, "/api/v1/sessions/"+id+"/reviews", map[string]interface{}{
		"review":      "Great service!",
		"stakeholder": "Acme Diner",
		"platform":    "Yelp",
		"selection":   4,
	}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var view handlers.SessionView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != session.StateDisplaying || view.InProgress {
		t.Fatalf("view = %+v", view)
	}
	if view.Analysis == nil || view.Analysis.Input.Rating != 5 || view.Analysis.Text != mockedAnalysis {
		t.Fatalf("analysis = %+v", view.Analysis)
	}
	if !strings.Contains(view.Rendered, "**Rating:** 5") {
		t.Fatalf("rendered = %q", view.Rendered)
	}

	resp, body = app.do(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"state":"displaying"`) {
		t.Fatalf("GET session status = %d body = %s", resp.StatusCode, body)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	id := app.createSession()

	resp, body := app.do(jsonRequest(http.MethodPost, "/api/v1/sessions/"+id+"/reviews", map[string]interface{}{
		"review":      "Great service!",
		"stakeholder": "Acme Diner",
	}))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, reviewform.ValidationNotice) || !strings.Contains(body, `"platform"`) {
		t.Fatalf("body = %s", body)
	}
	if mod.calls != 0 || an.calls != 0 {
		t.Fatalf("network calls made: %d, %d", mod.calls, an.calls)
	}
}

func TestSubmitReviewAnalysisFailure(t *testing.T) {
	mod := &stubModerator{result: outcome.Failed[moderation.Result](errors.New("down"))}
	an := &stubAnalyzer{result: outcome.Failed[string](errors.New("401"))}
	app := newTestApp(t, mod, an)
	id := app.createSession()

	resp, body := app.do(jsonRequest(http.MethodPost, "/api/v1/sessions/"+id+"/reviews", map[string]interface{}{
		"review": "ok", "stakeholder": "Acme", "platform": "Google",
	}))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, reviewform.FailureNotice) || !strings.Contains(body, `"in_progress":false`) {
		t.Fatalf("body = %s", body)
	}
	if an.calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1", an.calls)
	}
}

func TestSubmitReviewConflictWhileInProgress(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	id := app.createSession()

	_, err := app.store.Update(context.Background(), id, func(s *session.Session) error {
		if err := s.BeginSubmit(s.UpdatedAt); err != nil {
			return err
		}
		return s.Start(s.UpdatedAt)
	})
	if err != nil {
		t.Fatalf("mark in progress: %v", err)
	}

	resp, _ := app.do(jsonRequest(http.MethodPost, "/api/v1/sessions/"+id+"/reviews", map[string]interface{}{
		"review": "ok", "stakeholder": "Acme", "platform": "Google",
	}))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if mod.calls != 0 {
		t.Fatal("busy session must not call moderation")
	}
}

func TestSessionNotFound(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)

	resp, _ := app.do(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	resp, _ = app.do(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/missing", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	id := app.createSession()

	resp, _ := app.do(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp, _ = app.do(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after delete = %d", resp.StatusCode)
	}
}

func TestSubmitRejectsOversizedReview(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	id := app.createSession()

	resp, _ := app.do(jsonRequest(http.MethodPost, "/api/v1/sessions/"+id+"/reviews", map[string]interface{}{
		"review": strings.Repeat("a", 51), "stakeholder": "Acme", "platform": "Google",
	}))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestSubmitRejectsUnsupportedContentType(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)
	id := app.createSession()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/reviews", strings.NewReader("<review/>"))
	req.Header.Set("Content-Type", "application/xml")
	resp, _ := app.do(req)
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
}

func TestFormPageFlow(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)

	resp, body := app.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Review Moderation Bot") || !strings.Contains(body, `<option value="TripAdvisor">`) {
		t.Fatalf("form page missing fields:\n%s", body)
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Fatal("security headers missing")
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == handlers.SessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not set")
	}

	form := url.Values{}
	form.Set("review", "Great service!")
	form.Set("stakeholder", "Acme Diner")
	form.Set("platform", "Yelp")
	form.Set("selection", "4")
	req := httptest.NewRequest(http.MethodPost, "/review", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	resp, body = app.do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /review status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		"<strong>Review content:</strong> Great service!",
		"<strong>Stakeholder:</strong> Acme Diner",
		"<strong>Rating:</strong> 5",
		"<strong>Platform where review was posted:</strong> Yelp",
		"Legitimacy score: 0.93\nSentiment: positive\nConclusion: Genuine praise.",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	for _, c := range resp.Cookies() {
		if c.Name == handlers.SessionCookie {
			t.Fatal("existing session must be reused")
		}
	}
}

func TestFormPageValidationNotice(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)

	form := url.Values{}
	form.Set("review", "Great service!")
	req := httptest.NewRequest(http.MethodPost, "/review", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, body := app.do(req)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, reviewform.ValidationNotice) || !strings.Contains(body, "setTimeout") {
		t.Fatalf("transient notice missing:\n%s", body)
	}
	if mod.calls != 0 || an.calls != 0 {
		t.Fatal("validation failure must not call services")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)

	resp, body := app.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "healthy") {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}

	resp, _ = app.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	mod, an := okStubs()
	app := newTestApp(t, mod, an)

	resp, _ := app.do(httptest.NewRequest(http.MethodGet, "/ws/sessions/abc", nil))
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", resp.StatusCode)
	}
}
