// Package dreaming implements the dreaming worker: periodic, tenant-scoped,
// LLM-driven enrichment over four independent sub-pipelines (moment
// extraction, resource affinity, entity extraction + user summary, digest
// email), orchestrated by a Runner that maintains one Job row per
// invocation.
package dreaming

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/healer-ai/p8fs/pkg/errs"
)

const (
	llmMaxRetries     = 3
	llmInitialBackoff = 1 * time.Second
	llmMaxTokens      = 2048
	instrumentationName = "github.com/healer-ai/p8fs/pkg/dreaming"
)

// LLM wraps the Anthropic messages API for every dreaming sub-pipeline:
// one client, a pinned model, and retry knobs, taking an arbitrary
// system-prompt + user-prompt pair since each sub-pipeline needs its own
// prompt and schema hint.
type LLM struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewLLM builds an LLM client. apiKey is used as-is; it comes from
// config.DreamingConfig.AnthropicAPIKey (already resolved from env by
// pkg/config's viper loader), so no further env lookup happens here.
func NewLLM(apiKey, model string) (*LLM, error) {
	if apiKey == "" {
		return nil, errs.Validation("dreaming.NewLLM", "anthropic api key is required")
	}
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	llmMetricsOnce.Do(initLLMMetrics)
	return &LLM{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     llmMaxRetries,
		initialBackoff: llmInitialBackoff,
	}, nil
}

var (
	llmMetricsOnce sync.Once
	llmMetrics     struct {
		inputTokens  metric.Int64Counter
		outputTokens metric.Int64Counter
		duration     metric.Float64Histogram
	}
)

// initLLMMetrics lazily registers the OTel instruments used to observe
// Anthropic calls. Exporter wiring is the embedding process's concern; the
// instruments record regardless and no-op without a configured meter
// provider.
func initLLMMetrics() {
	m := otel.Meter(instrumentationName)
	llmMetrics.inputTokens, _ = m.Int64Counter("p8fs.dreaming.llm.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	llmMetrics.outputTokens, _ = m.Int64Counter("p8fs.dreaming.llm.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	llmMetrics.duration, _ = m.Float64Histogram("p8fs.dreaming.llm.request_duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Complete sends a single-turn prompt with an optional system prompt and
// returns the text response, retrying transient failures with exponential
// backoff.
func (l *LLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(attribute.String("p8fs.dreaming.model", string(l.model)))

	params := anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: llmMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := l.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := l.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("p8fs.dreaming.model", string(l.model))
			if llmMetrics.inputTokens != nil {
				llmMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				llmMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				llmMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(attribute.Int("p8fs.dreaming.attempts", attempt+1))

			if len(message.Content) == 0 {
				return "", errs.Dependency("dreaming.LLM.Complete", "empty response", nil)
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", errs.Dependency("dreaming.LLM.Complete", fmt.Sprintf("unexpected content block type %q", block.Type), nil)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", errs.Dependency("dreaming.LLM.Complete", "non-retryable Anthropic error", err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", errs.Transient("dreaming.LLM.Complete", fmt.Sprintf("failed after %d attempts", l.maxRetries+1), lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
