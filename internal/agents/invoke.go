package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"helios/internal/agents/schemas"
	"helios/internal/metrics"
	"helios/pkg/errors"
	"helios/pkg/logger"
)

// decode parses raw JSON into T and runs its schema validation
func decode[T schemas.Validator](raw string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, errors.Wrapf(errors.ErrInvalidOutput, "malformed JSON: %v", err)
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// invoke calls the reasoning port and validates the structured output.
// Invalid output is retried with a reformulated prompt that carries the
// validation failure back to the backend, up to validationRetries extra
// attempts; transport failures are returned to the caller untouched so the
// engine's backoff policy owns them.
func invoke[T schemas.Validator](ctx context.Context, port ReasoningPort, req Request, validationRetries int) (T, error) {
	var zero T
	var lastErr error

	prompt := req.Prompt
	for attempt := 0; attempt <= validationRetries; attempt++ {
		attemptReq := req
		attemptReq.Prompt = prompt

		// The reasoning adapter owns the per-call counter; this layer only
		// counts validation retries.
		raw, err := port.Invoke(ctx, attemptReq)
		if err != nil {
			return zero, err
		}

		out, err := decode[T](raw)
		if err == nil {
			return out, nil
		}
		lastErr = err

		metrics.ValidationRetries.WithLabelValues(req.Role.String()).Inc()
		logger.Get().Warnw("Structured output failed validation, reformulating",
			"role", req.Role,
			"attempt", attempt+1,
			"error", err,
		)

		prompt = fmt.Sprintf(
			"%s\n\nYour previous response was rejected: %v.\nRespond again with ONLY a valid JSON object matching the required schema.",
			req.Prompt, err,
		)
	}

	return zero, errors.Wrapf(lastErr, "structured output invalid after %d attempts", validationRetries+1)
}
