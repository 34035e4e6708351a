package agents

import (
	"context"
)

// Role identifies a capability-typed workflow participant
type Role string

const (
	RoleTrader           Role = "trader"
	RoleBull             Role = "bull"
	RoleBear             Role = "bear"
	RolePortfolioManager Role = "portfolio_manager"
)

// String returns string representation
func (r Role) String() string {
	return string(r)
}

// Request is one reasoning call. JSON-mode is implied: the backend must
// answer with a single JSON object matching the role's output schema.
type Request struct {
	Role        Role
	System      string
	Prompt      string
	Temperature float64
}

// ReasoningPort abstracts the external reasoning backend. Implementations
// must be side-effect free beyond the call itself so retries are safe.
//
// Failure classification uses the pkg/errors sentinels: ErrReasoningTimeout,
// ErrRateLimited and ErrUpstreamUnavailable are retryable with backoff;
// anything else is surfaced as-is.
type ReasoningPort interface {
	Invoke(ctx context.Context, req Request) (string, error)
}
