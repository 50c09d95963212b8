package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapStatus(t *testing.T) {
	cases := map[string]Outcome{
		"settlement": OutcomeSuccess,
		"capture":    OutcomeSuccess,
		"success":    OutcomeSuccess,
		"Settlement": OutcomeSuccess,
		"pending":    OutcomePending,
		"challenge":  OutcomePending,
		"deny":       OutcomeFailed,
		"failure":    OutcomeFailed,
		"cancel":     OutcomeCancelled,
		"expire":     OutcomeExpired,
		"":           OutcomeUnknown,
		"gibberish":  OutcomeUnknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapStatus(raw), "raw=%q", raw)
	}
}
