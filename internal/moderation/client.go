package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/metrics"
	"github.com/review-moderation/backend/pkg/circuitbreaker"
	"github.com/review-moderation/backend/pkg/logger"
	"github.com/review-moderation/backend/pkg/outcome"
)

const (
	DefaultBaseURL = "https://api.sightengine.com"
	checkPath      = "/1.0/text/check.json"
	maxBodyBytes   = 1 << 20
)

type Mode string

const (
	ModeRules Mode = "rules"
	ModeML    Mode = "ml"
)

var (
	RuleCategories = []string{
		"profanity", "personal", "link", "drug", "weapon", "spam",
		"content-trade", "money-transaction", "extremism", "violence",
		"self-harm", "medical",
	}
	MLModels = []string{"general", "self-harm"}
)

var (
	ErrEmptyText      = errors.New("moderation text is empty")
	ErrServiceFailure = errors.New("moderation service reported failure")
)

// Result holds the two moderation documents exactly as the service returned them.
type Result struct {
	Rules json.RawMessage
	ML    json.RawMessage
}

type Config struct {
	BaseURL          string
	APIUser          string
	APISecret        string
	Lang             string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type Client struct {
	baseURL    string
	apiUser    string
	apiSecret  string
	lang       string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

type envelope struct {
	Status string `json:"status"`
	Error  *struct {
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("moderation", circuitbreaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.OpenTimeout,
		OnStateChange:    recordCircuitState,
		Logger:           logger.GetLogger(),
	})

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiUser:   cfg.APIUser,
		apiSecret: cfg.APISecret,
		lang:      cfg.Lang,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cb: cb,
	}
}

// Check runs the rule-based pass and then the ML pass. Any failure yields a
// Failed outcome so the caller can continue without moderation data.
func (c *Client) Check(ctx context.Context, text string) outcome.Outcome[Result] {
	if strings.TrimSpace(text) == "" {
		return outcome.Failed[Result](ErrEmptyText)
	}

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("moderation").Observe(time.Since(start).Seconds())
	}()

	var result Result
	err := c.cb.Execute(ctx, func() error {
		rules, err := c.check(ctx, ModeRules, text)
		if err != nil {
			return err
		}
		ml, err := c.check(ctx, ModeML, text)
		if err != nil {
			return err
		}
		result = Result{Rules: rules, ML: ml}
		return nil
	})

	if err != nil {
		logger.Warn("Moderation check failed, continuing without metrics", zap.Error(err))
		metrics.ModerationDegraded.Inc()
		return outcome.Failed[Result](err)
	}

	logger.Debug("Moderation check completed",
		zap.Int("rules_bytes", len(result.Rules)),
		zap.Int("ml_bytes", len(result.ML)),
	)

	return outcome.Ok(result)
}

func (c *Client) check(ctx context.Context, mode Mode, text string) (json.RawMessage, error) {
	form := c.form(mode, text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checkPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s moderation request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ModerationRequests.WithLabelValues(string(mode), "transport_error").Inc()
		return nil, fmt.Errorf("%s moderation request failed: %w", mode, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ModerationRequests.WithLabelValues(string(mode), "read_error").Inc()
		return nil, fmt.Errorf("failed to read %s moderation response: %w", mode, err)
	}

	doc, err := decode(body)
	if err != nil {
		metrics.ModerationRequests.WithLabelValues(string(mode), "malformed").Inc()
		return nil, fmt.Errorf("%s moderation response (status %d): %w", mode, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ModerationRequests.WithLabelValues(string(mode), "http_error").Inc()
		return nil, fmt.Errorf("%s moderation returned status %d: %w", mode, resp.StatusCode, ErrServiceFailure)
	}

	var env envelope
	if err := json.Unmarshal(doc, &env); err == nil && env.Status == "failure" {
		metrics.ModerationRequests.WithLabelValues(string(mode), "service_failure").Inc()
		if env.Error != nil {
			return nil, fmt.Errorf("%s moderation: %s: %s: %w", mode, env.Error.Type, env.Error.Message, ErrServiceFailure)
		}
		return nil, fmt.Errorf("%s moderation: %w", mode, ErrServiceFailure)
	}

	metrics.ModerationRequests.WithLabelValues(string(mode), "ok").Inc()
	return doc, nil
}

func (c *Client) form(mode Mode, text string) url.Values {
	form := url.Values{}
	form.Set("text", text)
	form.Set("mode", string(mode))
	form.Set("lang", c.lang)
	switch mode {
	case ModeRules:
		form.Set("categories", strings.Join(RuleCategories, ","))
	case ModeML:
		form.Set("models", strings.Join(MLModels, ","))
	}
	form.Set("api_user", c.apiUser)
	form.Set("api_secret", c.apiSecret)
	return form
}

// decode accepts a body only if it is a single JSON object.
func decode(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("malformed moderation document: %w", err)
	}
	if probe == nil {
		return nil, errors.New("malformed moderation document: null")
	}
	return json.RawMessage(trimmed), nil
}

func recordCircuitState(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	metrics.CircuitState.WithLabelValues(name).Set(float64(to))
}
