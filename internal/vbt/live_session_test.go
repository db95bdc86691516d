package vbt

import (
	"testing"

	"github.com/velofit/velofit/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveSession_StopFlagAtThreshold(t *testing.T) {
	session, err := NewLiveSession("back squat", 100, 20)
	require.NoError(t, err)

	first, err := session.AddRep(1.0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SetNumber)
	assert.Equal(t, 1, first.RepNumber)
	assert.Zero(t, first.VelocityLossPct)
	assert.False(t, first.ShouldStop)

	// 10% down: keep going
	second, err := session.AddRep(0.9)
	require.NoError(t, err)
	assert.InDelta(t, 10, second.VelocityLossPct, 1e-9)
	assert.False(t, second.ShouldStop)

	// 25% down: threshold crossed
	third, err := session.AddRep(0.75)
	require.NoError(t, err)
	assert.InDelta(t, 25, third.VelocityLossPct, 1e-9)
	assert.True(t, third.ShouldStop)

	// a faster rep does not lower the flag within the same set
	fourth, err := session.AddRep(0.95)
	require.NoError(t, err)
	assert.True(t, fourth.ShouldStop)
}

func TestLiveSession_StartSetResetsBaseline(t *testing.T) {
	session, err := NewLiveSession("bench press", 80, 20)
	require.NoError(t, err)

	_, err = session.AddRep(1.0)
	require.NoError(t, err)
	observation, err := session.AddRep(0.7)
	require.NoError(t, err)
	require.True(t, observation.ShouldStop)

	session.StartSet()

	// new set: fresh baseline, flag cleared, rep numbering restarts
	observation, err = session.AddRep(0.7)
	require.NoError(t, err)
	assert.Equal(t, 2, observation.SetNumber)
	assert.Equal(t, 1, observation.RepNumber)
	assert.Zero(t, observation.VelocityLossPct)
	assert.False(t, observation.ShouldStop)
}

func TestLiveSession_Validation(t *testing.T) {
	_, err := NewLiveSession("", 100, 20)
	require.Error(t, err)

	_, err = NewLiveSession("back squat", 100, 0)
	require.Error(t, err)

	_, err = NewLiveSession("back squat", 100, 120)
	require.Error(t, err)

	session, err := NewLiveSession("back squat", 100, 20)
	require.NoError(t, err)

	_, err = session.AddRep(0)
	require.Error(t, err)

	var validationErr *backend.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestLiveSession_Record(t *testing.T) {
	session, err := NewLiveSession("deadlift", 140, 20)
	require.NoError(t, err)

	observation, err := session.AddRep(0.65)
	require.NoError(t, err)

	record := session.Record("s1", observation, 0.65)
	assert.Equal(t, "s1", record.SessionID)
	assert.Equal(t, 1, record.SetNumber)
	assert.Equal(t, 1, record.RepNumber)
	assert.Equal(t, 140.0, record.LoadKg)
	assert.Equal(t, 0.65, record.MeanVelocity)
}
