package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/context-foundry/core/internal/ferrors"
)

func TestClassifyErrorRateLimitIsTransient(t *testing.T) {
	err := classifyError(errors.New("429 Too Many Requests: rate_limit_error"))
	require.ErrorIs(t, err, ferrors.ErrProviderTransient)
}

func TestClassifyErrorServerErrorIsTransient(t *testing.T) {
	err := classifyError(errors.New("500 Internal Server Error: overloaded_error"))
	require.ErrorIs(t, err, ferrors.ErrProviderTransient)
}

func TestClassifyErrorAuthFailureIsPermanent(t *testing.T) {
	err := classifyError(errors.New("401 Unauthorized: invalid x-api-key"))
	require.ErrorIs(t, err, ferrors.ErrProviderPermanent)
}

func TestClassifyErrorUnknownDefaultsPermanent(t *testing.T) {
	err := classifyError(errors.New("some unrecognized failure"))
	require.ErrorIs(t, err, ferrors.ErrProviderPermanent)
}

func TestTranslateModelForBedrockKnownModel(t *testing.T) {
	require.Equal(t, "us.anthropic.claude-sonnet-4-20250514-v1:0", translateModelForBedrock("claude-sonnet-4-20250514"))
}

func TestTranslateModelForBedrockUnknownModelPassesThrough(t *testing.T) {
	require.Equal(t, "custom-model-id", translateModelForBedrock("custom-model-id"))
}
