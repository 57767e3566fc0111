package trafficshaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_ValidateRejectsOutOfRangeProbability(t *testing.T) {
	assert.ErrorIs(t, NewSettings().WithDropProbability(-0.1).Validate(), ErrInvalidProbability)
	assert.ErrorIs(t, NewSettings().WithCorruptProbability(1.1).Validate(), ErrInvalidProbability)
	assert.ErrorIs(t, NewSettings().WithDuplicateProbability(2).Validate(), ErrInvalidProbability)
	assert.NoError(t, NewSettings().WithDropProbability(0).Validate())
	assert.NoError(t, NewSettings().WithDropProbability(1).Validate())
}

func TestSettings_ValidateRejectsUnknownOrdering(t *testing.T) {
	s := NewSettings()
	s.Ordering = Set(Ordering(99))
	assert.ErrorIs(t, s.Validate(), ErrInvalidOrdering)
}

func TestSettings_ValidateRejectsBadBandwidthLimit(t *testing.T) {
	assert.NoError(t, NewSettings().WithBandwidthLimit(0, 0, false).Validate())

	s := NewSettings()
	s.BandwidthLimit = Set(&BandwidthLimitConfig{BytesPerSecond: 100, DropRatio: 1.5})
	assert.ErrorIs(t, s.Validate(), ErrInvalidBandwidthLimit)
}

func TestSettings_WithBandwidthLimitZeroMeansDisabled(t *testing.T) {
	s := NewSettings().WithBandwidthLimit(0, 0.5, true)
	cfg, ok := s.BandwidthLimit.Get()
	require.True(t, ok)
	assert.Nil(t, cfg)
}

func TestResolvedSettings_MergeOnlyTouchesSetFields(t *testing.T) {
	r := defaultResolvedSettings()
	r.dropProbability = 0.3
	r.merge(NewSettings().WithCorruptProbability(0.7))

	assert.Equal(t, 0.3, r.dropProbability, `unset field must be left alone`)
	assert.Equal(t, 0.7, r.corruptProbability)
}

func TestDefaultResolvedSettings_OrderingDefaultsToOrdered(t *testing.T) {
	assert.Equal(t, Ordered, defaultResolvedSettings().ordering)
}

func TestPatch_GetReflectsSetState(t *testing.T) {
	var p Patch[int]
	_, ok := p.Get()
	assert.False(t, ok)

	p = Set(42)
	v, ok := p.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}
