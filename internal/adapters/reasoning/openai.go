package reasoning

import (
	"context"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"helios/internal/agents"
	"helios/internal/metrics"
	"helios/pkg/errors"
	"helios/pkg/logger"
)

// Ensure OpenAIPort implements ReasoningPort
var _ agents.ReasoningPort = (*OpenAIPort)(nil)

// OpenAIPort backs the reasoning port with the official OpenAI Go SDK.
// All calls request JSON-mode output; schema validation happens upstream.
type OpenAIPort struct {
	client  openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewOpenAIPort creates a reasoning port against the OpenAI chat API.
// requestsPerMin caps the outbound rate across all roles sharing this port.
func NewOpenAIPort(apiKey, model string, timeout time.Duration, requestsPerMin int) (*OpenAIPort, error) {
	if apiKey == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "openai API key is required")
	}

	if model == "" {
		model = openai.ChatModelGPT4o
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &OpenAIPort{
		client:  client,
		model:   model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), 1),
		log:     logger.Get().With("component", "openai_reasoning", "model", model),
	}, nil
}

// Invoke sends one chat completion request and returns the raw JSON text.
func (p *OpenAIPort) Invoke(ctx context.Context, req agents.Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(errors.ErrRateLimited, "rate limiter wait interrupted")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	metrics.RecordReasoningCall(req.Role.String(), time.Since(start), err)

	if err != nil {
		return "", p.classify(err, req.Role)
	}

	if len(resp.Choices) == 0 {
		return "", errors.Wrapf(errors.ErrInvalidOutput, "no choices in completion response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.Wrapf(errors.ErrInvalidOutput, "empty completion content")
	}

	return content, nil
}

// classify maps SDK failures onto the error taxonomy so retry policy
// upstream can tell transient from permanent.
func (p *OpenAIPort) classify(err error, role agents.Role) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		p.log.Warnw("Reasoning call timed out", "role", role)
		return errors.Wrapf(errors.ErrReasoningTimeout, "reasoning call for %s", role)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			p.log.Warnw("Reasoning backend rate limited", "role", role)
			return errors.Wrapf(errors.ErrRateLimited, "reasoning call for %s", role)
		case apiErr.StatusCode >= 500:
			p.log.Warnw("Reasoning backend unavailable", "role", role, "status", apiErr.StatusCode)
			return errors.Wrapf(errors.ErrUpstreamUnavailable, "reasoning call for %s: status %d", role, apiErr.StatusCode)
		default:
			return errors.Wrapf(errors.ErrExternal, "reasoning call for %s: %v", role, err)
		}
	}

	return errors.Wrapf(errors.ErrUpstreamUnavailable, "reasoning call for %s: %v", role, err)
}
