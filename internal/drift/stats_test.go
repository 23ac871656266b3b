package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_Update_MeanConverges(t *testing.T) {
	var s Stats
	for i := 0; i < 100; i++ {
		s = s.Update(30)
	}
	assert.InDelta(t, 30, s.Mean, 1e-9)
	assert.InDelta(t, 0, s.Std, 1e-9)
	assert.EqualValues(t, 100, s.Count)
}

func TestStats_Update_Monotonicity(t *testing.T) {
	// Repeated identical observations must not change std once established.
	s := Stats{}.Update(10).Update(10)
	before := s.Std
	s = s.Update(10)
	assert.InDelta(t, before, s.Std, 1e-9)
}

func TestStats_Update_SingleSampleHasZeroStd(t *testing.T) {
	s := Stats{}.Update(42)
	assert.Zero(t, s.Std)
	assert.EqualValues(t, 1, s.Count)
	assert.Equal(t, 42.0, s.Mean)
}

func TestStats_Update_TracksShift(t *testing.T) {
	var s Stats
	for i := 0; i < 100; i++ {
		s = s.Update(30)
	}
	baseline := s
	for i := 0; i < 100; i++ {
		s = s.Update(60)
	}
	assert.Greater(t, s.Mean, baseline.Mean)
}
