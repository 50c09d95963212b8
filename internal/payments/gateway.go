package payments

import (
	"context"
	"errors"
	"strings"
)

// Outcome is the gateway's raw transaction status collapsed to what the
// reconciler acts on.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomeUnknown   Outcome = "unknown"
)

// MapStatus folds the gateway's status vocabulary into an Outcome.
func MapStatus(raw string) Outcome {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "settlement", "capture", "success":
		return OutcomeSuccess
	case "pending", "challenge":
		return OutcomePending
	case "deny", "failure":
		return OutcomeFailed
	case "cancel":
		return OutcomeCancelled
	case "expire":
		return OutcomeExpired
	default:
		return OutcomeUnknown
	}
}

// Intent is the gateway's handle for one payment attempt. CorrelationID is
// what later callbacks and status polls are keyed on.
type Intent struct {
	Token         string
	CorrelationID string
}

type BuyerInfo struct {
	Name  string
	Email string
}

type Gateway interface {
	CreateIntent(ctx context.Context, gatewayOrderID string, amountCents int, buyer BuyerInfo) (Intent, error)
	// PollStatus returns the mapped outcome plus the gateway's raw status.
	PollStatus(ctx context.Context, correlationID string) (Outcome, string, error)
}

// ErrGatewayUnavailable: the gateway could not be reached or answered
// garbage. Checkout treats this as recoverable and rolls the reservation back.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")
