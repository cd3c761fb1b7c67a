package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/context-foundry/core/internal/ferrors"
)

// AnthropicConfig configures an AnthropicBackend, adapted from
// internal/api.ClientConfig — direct API key or AWS Bedrock, cross-region
// inference profiles translated the same way.
type AnthropicConfig struct {
	APIKey        string
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// AnthropicBackend is the Backend implementation wrapping
// anthropics/anthropic-sdk-go. It holds one configured SDK client and
// performs no retries itself; Client.Complete owns all retry/backoff
// policy so the classification of transient-vs-permanent lives in one
// place.
type AnthropicBackend struct {
	sdk       anthropic.Client
	bedrock   bool
}

// NewAnthropicBackend builds an AnthropicBackend from cfg.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set and no api key configured", ferrors.ErrConfig)
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	return &AnthropicBackend{sdk: anthropic.NewClient(opts...), bedrock: cfg.UseAWSBedrock}, nil
}

// translateModelForBedrock converts a standard Anthropic model id to its
// Bedrock cross-region inference profile form, mirrored from
// internal/api.translateModelForBedrock.
func translateModelForBedrock(id string) string {
	profiles := map[string]string{
		"claude-opus-4-5-20251101":   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		"claude-sonnet-4-20250514":   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		"claude-haiku-4-5-20251001":  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		"claude-3-5-sonnet-20241022": "us.anthropic.claude-3-5-sonnet-20241022-v1:0",
		"claude-3-5-haiku-20241022":  "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if p, ok := profiles[id]; ok {
		return p
	}
	return id
}

// Complete implements Backend by issuing one Messages.New call. It never
// retries: Client.Complete classifies the returned error and decides
// whether to retry.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := req.Model
	if b.bedrock {
		modelID = translateModelForBedrock(modelID)
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if strings.EqualFold(m.Role, "assistant") {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	resp, err := b.sdk.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return Response{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		ProviderID:   "anthropic",
	}, nil
}

// transientMarkers are substrings the SDK's error messages carry for
// retryable conditions: rate limiting, server-side failure, and
// connection-level problems. permanentMarkers take priority
// when both match, since an authentication failure inside an otherwise
// generic message must never be retried.
var (
	permanentMarkers = []string{"401", "403", "invalid x-api-key", "authentication", "invalid_request_error", "400 bad request"}
	transientMarkers = []string{"429", "500", "502", "503", "504", "529", "overloaded", "rate_limit", "timeout", "connection reset", "eof", "temporary failure"}
)

// classifyError maps an anthropic-sdk-go error to the ferrors taxonomy by
// inspecting its message for the status markers the SDK includes in
// *anthropic.Error.Error(). Authentication and request-validation failures
// are permanent; rate limits, server errors, and connection failures are
// transient and retried by Client.Complete.
func classifyError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ferrors.ErrProviderPermanent, err.Error())
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ferrors.ErrProviderTransient, err.Error())
		}
	}
	// Unrecognized failures default to permanent: an unknown error shape is
	// safer to surface immediately than to retry blindly against a
	// provider that may be rejecting every attempt for the same reason.
	return fmt.Errorf("%w: %s", ferrors.ErrProviderPermanent, err.Error())
}
