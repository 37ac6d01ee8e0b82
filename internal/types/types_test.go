package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("close position: %w", NewError(ErrPersistence, "storage.ClosePosition", cause))

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrQuote)
	assert.True(t, IsPersistence(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestErrorWithoutCause(t *testing.T) {
	err := NewError(ErrProviderExhausted, "submit", nil)
	assert.ErrorIs(t, err, ErrProviderExhausted)
	assert.Equal(t, "submit: all providers exhausted", err.Error())
}

func TestSlippageValidate(t *testing.T) {
	assert.Error(t, SlippageBps(0).Validate())
	assert.Error(t, SlippageBps(MaxSlippageBps+1).Validate())
	assert.NoError(t, SlippageBps(DefaultSlippageBps).Validate())
}

func TestPriorityLevels(t *testing.T) {
	level, err := ParsePriorityLevel("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, level)
	assert.Equal(t, uint64(10_000), level.FeeLamports())

	_, err = ParsePriorityLevel("ludicrous")
	assert.Error(t, err)

	assert.Equal(t, uint64(10_000), PriorityLevel("bogus").FeeLamports())
}

func TestLamportConversions(t *testing.T) {
	assert.Equal(t, uint64(1_500_000_000), SOLToLamports(1.5))
	assert.Equal(t, uint64(0), SOLToLamports(-1))
	assert.InDelta(t, 0.25, LamportsToSOL(250_000_000), 1e-12)
}
