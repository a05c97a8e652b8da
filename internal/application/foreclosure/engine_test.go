package foreclosure

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ForeclosureWatch/internal/config"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

func TestNewEngine_Defaults(t *testing.T) {
	e := DefaultEngine()
	require.NotNil(t, e)
	assert.Equal(t, 10, e.Calendar.UpsetBidWindowDays())
	assert.Equal(t, "0.01", e.Reconciler.Tolerance().String())
	assert.Equal(t, "105.00", e.Ledger.MinimumNextBid(decimal.NewFromInt(100)).StringFixed(2))
}

func TestNewEngine_AppliesConfig(t *testing.T) {
	e, err := NewEngine(config.EngineConfig{
		Rules:                domainForeclosure.RuleConfig{BidIncreaseMultiplier: "1.10"},
		UpsetBidWindowDays:   5,
		DiscrepancyTolerance: "1.00",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, e.Calendar.UpsetBidWindowDays())
	assert.Equal(t, "1", e.Reconciler.Tolerance().String())
	assert.Equal(t, "110.00", e.Ledger.MinimumNextBid(decimal.NewFromInt(100)).StringFixed(2))
}

func TestNewEngine_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EngineConfig
	}{
		{"tolerance not numeric", config.EngineConfig{DiscrepancyTolerance: "a penny"}},
		{"negative tolerance", config.EngineConfig{DiscrepancyTolerance: "-0.01"}},
		{"multiplier not above one", config.EngineConfig{Rules: domainForeclosure.RuleConfig{BidIncreaseMultiplier: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvariantViolation))
		})
	}
}

func TestEngineHolder_ReloadKeepsSnapshotOnError(t *testing.T) {
	h := NewEngineHolder(nil)
	before := h.Load()

	err := h.Reload(config.EngineConfig{DiscrepancyTolerance: "-1"})
	require.Error(t, err)
	assert.Same(t, before, h.Load())

	require.NoError(t, h.Reload(config.EngineConfig{UpsetBidWindowDays: 7}))
	after := h.Load()
	assert.NotSame(t, before, after)
	assert.Equal(t, 7, after.Calendar.UpsetBidWindowDays())
	assert.Equal(t, 10, before.Calendar.UpsetBidWindowDays(), "old snapshot is never mutated")
}
