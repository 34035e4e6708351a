package proposal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusApproved))
	assert.True(t, StatusPending.CanTransition(StatusRejected))
	assert.True(t, StatusApproved.CanTransition(StatusExecuted))

	// the latch is one-directional
	assert.False(t, StatusPending.CanTransition(StatusExecuted))
	assert.False(t, StatusApproved.CanTransition(StatusRejected))
	assert.False(t, StatusApproved.CanTransition(StatusPending))
	assert.False(t, StatusRejected.CanTransition(StatusApproved))
	assert.False(t, StatusExecuted.CanTransition(StatusExecuted))
}

func TestAction_Tradeable(t *testing.T) {
	assert.True(t, ActionBuy.Tradeable())
	assert.True(t, ActionSell.Tradeable())
	assert.False(t, ActionHold.Tradeable())
}

func TestNew_PendingWithNotional(t *testing.T) {
	p := New("AAPL", ActionBuy, 10, decimal.NewFromInt(190), "coverage supports upside", 72, uuid.New(), uuid.New())

	assert.Equal(t, StatusPending, p.Status)
	assert.True(t, decimal.NewFromInt(1900).Equal(p.NotionalValue()))
}
