// Package provider implements ProviderClient: a uniform
// request/retry/cost-accounting wrapper over an LLM provider, adapted from
// internal/api.Client's Anthropic SDK wrapper and internal/orchestrator's
// exponential-backoff retry config (merge_queue.go).
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/context-foundry/core/internal/ferrors"
	"github.com/context-foundry/core/internal/tokens"
	"github.com/context-foundry/core/pkg/model"
)

// Message mirrors tokens.Message; kept distinct so provider request/response
// shapes don't leak the tokens package's internals into callers that only
// need a ProviderClient.
type Message = tokens.Message

// Request is the normalized request shape every backend accepts.
type Request struct {
	Model          string
	Messages       []Message
	MaxOutputTokens int64
	Stop           []string
	Metadata       map[string]string
}

// Response is the normalized response shape every backend returns.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	Cost         int64 // minor currency units
	LatencyMS    int64
	ProviderID   string
}

// Backend is the raw collaborator this package wraps: a single
// request/response round trip to an LLM provider. Production wiring backs
// this with github.com/anthropics/anthropic-sdk-go; tests substitute a stub.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Pricing is the pricing oracle collaborator: price(provider_id, model,
// input_tokens, output_tokens) -> cost, with missing entries handled by the
// caller via a configured default average.
type Pricing interface {
	Price(providerID, model string, inputTokens, outputTokens int64) (cost int64, ok bool)
}

// RetryPolicy is a bounded exponential backoff: default 3 attempts, initial
// 1s, factor 2. Only ProviderTransientError is retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
}

// DefaultRetryPolicy returns the package defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, Factor: 2}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
	}
	// +/-20% jitter so concurrent retries from WorkerPool jobs don't
	// synchronize against the same provider.
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(d * jitter)
}

// FallbackAveragePricePerMillion is the blended per-million-token price used
// when Pricing has no entry for a model, in the same dollars-per-million-
// tokens unit TablePricing's table uses.
const FallbackAveragePricePerMillion = 9.0

// EventLogger lets ProviderClient surface pricing-fallback conditions as
// context_update events without importing eventbus directly. Retries are not
// reported through it.
type EventLogger func(kind model.EventKind, payload map[string]interface{})

// Client is the uniform ProviderClient. It is safe for concurrent use by
// multiple WorkerPool jobs; it holds no per-call mutable state.
type Client struct {
	backend Backend
	pricing Pricing
	retry   RetryPolicy
	ledger  *model.TokenLedger
	tracker *tokens.Tracker
	events  EventLogger
}

// New builds a Client. ledger receives cost/token accounting for every
// response; tracker, if non-nil, records every response's tokens as
// hard counts so callers can compare them against a Meter's pre-call soft
// estimates via tracker.Confidence(); events, if non-nil, receives
// pricing-fallback notifications.
func New(backend Backend, pricing Pricing, retry RetryPolicy, ledger *model.TokenLedger, tracker *tokens.Tracker, events EventLogger) *Client {
	if events == nil {
		events = func(model.EventKind, map[string]interface{}) {}
	}
	return &Client{backend: backend, pricing: pricing, retry: retry, ledger: ledger, tracker: tracker, events: events}
}

// Complete issues req against the backend, retrying transient failures with
// bounded exponential backoff. Authentication and validation errors
// (ferrors.ErrProviderPermanent) are never retried.
func (c *Client) Complete(ctx context.Context, phase model.BudgetPhase, req Request) (Response, error) {
	var lastErr error

	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		resp, err := c.backend.Complete(ctx, req)
		if err == nil {
			resp.LatencyMS = time.Since(start).Milliseconds()
			c.account(phase, req.Model, resp)
			return resp, nil
		}

		lastErr = err
		if !errors.Is(err, ferrors.ErrProviderTransient) {
			return Response{}, err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return Response{}, fmt.Errorf("%w: %v", ferrors.ErrCancelled, ctx.Err())
		case <-time.After(c.retry.delay(attempt)):
		}
	}

	return Response{}, fmt.Errorf("provider retries exhausted: %w", lastErr)
}

// account records a response's tokens/cost against the ledger, filling in a
// fallback price when the pricing oracle has no entry.
func (c *Client) account(phase model.BudgetPhase, modelID string, resp Response) {
	cost := resp.Cost
	if cost == 0 && c.pricing != nil {
		if price, ok := c.pricing.Price(resp.ProviderID, modelID, resp.InputTokens, resp.OutputTokens); ok {
			cost = price
		} else {
			total := resp.InputTokens + resp.OutputTokens
			cost = int64(float64(total) / 1_000_000 * FallbackAveragePricePerMillion * 10000)
			c.events(model.EventContextUpdate, map[string]interface{}{"pricing": "fallback", "model": modelID})
		}
	}

	if c.ledger != nil {
		c.ledger.Add(phase, model.PhaseUsage{
			InputTokens:    resp.InputTokens,
			OutputTokens:   resp.OutputTokens,
			CostMinorUnits: cost,
		})
	}
	if c.tracker != nil {
		c.tracker.RecordHard(tokens.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens})
	}
}
