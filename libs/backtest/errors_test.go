package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejectReasonZeroValueIsAccepted(t *testing.T) {
	var r RejectReason
	assert.True(t, r.Accepted())
	assert.Equal(t, "", r.String())
}

func TestRejectReasonStringIncludesMessageWhenPresent(t *testing.T) {
	r := reject(RejectQuantityOutOfRange, "qty %d exceeds max %d", 500, 100)
	assert.False(t, r.Accepted())
	assert.Equal(t, "QUANTITY_OUTSIDE_INSTRUMENT_LIMITS: qty 500 exceeds max 100", r.String())
}

func TestRejectReasonStringFallsBackToCodeWithoutMessage(t *testing.T) {
	r := RejectReason{Code: RejectUnknownOrder}
	assert.Equal(t, "UNKNOWN_CLIENT_ORDER_ID", r.String())
}

func TestStateErrorPanicsWithTransitionDetail(t *testing.T) {
	assert.PanicsWithValue(t, &StateError{OrderID: "O-1", From: StatusFilled, Attempt: "cancel"}, func() {
		panicState("O-1", StatusFilled, "cancel")
	})
}
