package provider

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/internal/ferrors"
	"github.com/context-foundry/core/internal/tokens"
	"github.com/context-foundry/core/pkg/model"
)

// stubBackend returns responses or errors from a queue, recording every
// request it receives.
type stubBackend struct {
	responses []Response
	errs      []error
	calls     int
}

func (s *stubBackend) Complete(ctx context.Context, req Request) (Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return Response{}, fmt.Errorf("stubBackend: no response queued for call %d", i)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 2}
}

func TestCompleteSucceedsOnFirstTry(t *testing.T) {
	backend := &stubBackend{responses: []Response{{Text: "hi", InputTokens: 10, OutputTokens: 5, ProviderID: "anthropic"}}}
	ledger := model.NewTokenLedger()
	c := New(backend, nil, fastRetry(), ledger, nil, nil)

	resp, err := c.Complete(context.Background(), model.BudgetBuilder, Request{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Text)
	require.Equal(t, 1, backend.calls)
	require.Equal(t, int64(15), ledger.Total.Total())
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	backend := &stubBackend{
		errs:      []error{ferrors.ErrProviderTransient, ferrors.ErrProviderTransient, nil},
		responses: []Response{{}, {}, {Text: "ok", InputTokens: 1, OutputTokens: 1}},
	}
	c := New(backend, nil, fastRetry(), model.NewTokenLedger(), nil, nil)

	resp, err := c.Complete(context.Background(), model.BudgetScout, Request{Model: "x"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 3, backend.calls)
}

func TestCompleteDoesNotRetryPermanentError(t *testing.T) {
	backend := &stubBackend{errs: []error{ferrors.ErrProviderPermanent}}
	c := New(backend, nil, fastRetry(), model.NewTokenLedger(), nil, nil)

	_, err := c.Complete(context.Background(), model.BudgetScout, Request{Model: "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, ferrors.ErrProviderPermanent)
	require.Equal(t, 1, backend.calls)
}

func TestCompleteExhaustsRetriesAndReturnsTransientError(t *testing.T) {
	backend := &stubBackend{errs: []error{
		ferrors.ErrProviderTransient, ferrors.ErrProviderTransient, ferrors.ErrProviderTransient,
	}}
	c := New(backend, nil, fastRetry(), model.NewTokenLedger(), nil, nil)

	_, err := c.Complete(context.Background(), model.BudgetScout, Request{Model: "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, ferrors.ErrProviderTransient)
	require.Equal(t, 3, backend.calls)
}

func TestAccountUsesTablePricingWhenAvailable(t *testing.T) {
	backend := &stubBackend{responses: []Response{{InputTokens: 1_000_000, OutputTokens: 0}}}
	ledger := model.NewTokenLedger()
	pricing := NewTablePricing(map[string]ModelPrice{"m": {InputPerMillion: 3.0}})
	c := New(backend, pricing, fastRetry(), ledger, nil, nil)

	_, err := c.Complete(context.Background(), model.BudgetBuilder, Request{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, int64(30000), ledger.Total.CostMinorUnits)
}

func TestAccountFallsBackAndEmitsEventWhenPricingMissing(t *testing.T) {
	backend := &stubBackend{responses: []Response{{InputTokens: 500, OutputTokens: 500}}}
	ledger := model.NewTokenLedger()
	pricing := NewTablePricing(map[string]ModelPrice{})

	var fired map[string]interface{}
	events := func(kind model.EventKind, payload map[string]interface{}) {
		if kind == model.EventContextUpdate {
			fired = payload
		}
	}
	c := New(backend, pricing, fastRetry(), ledger, nil, events)

	_, err := c.Complete(context.Background(), model.BudgetBuilder, Request{Model: "unknown-model"})
	require.NoError(t, err)
	require.NotZero(t, ledger.Total.CostMinorUnits)
	require.Equal(t, "fallback", fired["pricing"])
}

func TestAccountRecordsHardUsageOnTracker(t *testing.T) {
	backend := &stubBackend{responses: []Response{{InputTokens: 7, OutputTokens: 3}}}
	tracker := tokens.NewTracker()
	c := New(backend, nil, fastRetry(), model.NewTokenLedger(), tracker, nil)

	_, err := c.Complete(context.Background(), model.BudgetBuilder, Request{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, int64(10), tracker.Hard().Total())
	require.Equal(t, 1.0, tracker.Confidence())
}

func TestCompleteReturnsContextCancelledDuringBackoff(t *testing.T) {
	backend := &stubBackend{errs: []error{ferrors.ErrProviderTransient, ferrors.ErrProviderTransient}}
	retry := RetryPolicy{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, Factor: 2}
	c := New(backend, nil, retry, model.NewTokenLedger(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := c.Complete(ctx, model.BudgetScout, Request{Model: "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, ferrors.ErrCancelled)
}
