package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StateReserved, StateSuspended))
	assert.True(t, CanTransitionTo(StateReserved, StateCompleted))
	assert.True(t, CanTransitionTo(StateSuspended, StateReserved))
	assert.True(t, CanTransitionTo(StateSuspended, StateCompleted))

	// Completed records are immutable
	assert.False(t, CanTransitionTo(StateCompleted, StateReserved))
	assert.False(t, CanTransitionTo(StateCompleted, StateSuspended))

	assert.False(t, CanTransitionTo(StateUnknown, StateReserved))
}
