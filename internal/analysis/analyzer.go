package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/llm"
	"github.com/review-moderation/backend/internal/metrics"
	"github.com/review-moderation/backend/internal/moderation"
	"github.com/review-moderation/backend/pkg/logger"
	"github.com/review-moderation/backend/pkg/outcome"
)

const (
	SystemPrompt = "You are a helpful assistant that identifies and analyzes reviews."

	AnalysisPrompt = `You are tasked with analyzing an online review and determining the legitimacy of the sentiment. You have been provided with both rule-based and machine learning moderation metrics.

- Legitimacy should be expressed as a value from 0 to 1, where 0 indicates a completely illegitimate review, and 1 indicates a fully legitimate review.
- Sentiment analysis should consider both the text and the provided metrics to gauge whether the review is positive, negative, or neutral.
- The output should include the legitimacy score, sentiment (positive/negative/neutral), and a single conclusion statement summarizing the overall review.

Please provide a concise analysis.`

	Temperature float32 = 0.1
)

// ReviewData is the review as it is shown to the model.
type ReviewData struct {
	Review      string `json:"review"`
	Stakeholder string `json:"stakeholder"`
	Rating      int    `json:"rating"`
	Platform    string `json:"platform"`
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Analyzer struct {
	llmClient Completer
}

func NewAnalyzer(llmClient Completer) *Analyzer {
	return &Analyzer{llmClient: llmClient}
}

func (a *Analyzer) Analyze(ctx context.Context, data ReviewData, mod outcome.Outcome[moderation.Result]) outcome.Outcome[string] {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("analysis").Observe(time.Since(start).Seconds())
	}()

	body, err := MessageBody(data, mod)
	if err != nil {
		logger.Error("Failed to build analysis message", zap.Error(err))
		return outcome.Failed[string](err)
	}

	resp, err := a.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   UserPrompt(body),
		Temperature:  Temperature,
	})
	if err != nil {
		logger.Error("Review analysis failed", zap.Error(err))
		return outcome.Failed[string](fmt.Errorf("failed to analyze review: %w", err))
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		logger.Error("Review analysis returned no text")
		return outcome.Failed[string](llm.ErrEmptyContent)
	}

	logger.Info("Review analyzed",
		zap.String("stakeholder", data.Stakeholder),
		zap.Bool("with_moderation", mod.OK()),
		zap.Int("analysis_length", len(text)),
	)

	return outcome.Ok(text)
}

func UserPrompt(body string) string {
	return AnalysisPrompt + "\n\n" + body
}

// MessageBody embeds both moderation documents only when the check succeeded.
func MessageBody(data ReviewData, mod outcome.Outcome[moderation.Result]) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("failed to marshal review data: %w", err)
	}
	review := bytes.TrimSpace(buf.Bytes())

	result := mod.Value()
	if !mod.OK() || len(result.Rules) == 0 || len(result.ML) == 0 {
		return fmt.Sprintf("Here is the review data:\n%s", review), nil
	}

	return fmt.Sprintf(`Here are the metrics for the review that provide insights into the review:
Rule-based metrics:
%s
ML-based metrics:
%s

Here is the review data:
%s`, result.Rules, result.ML, review), nil
}
