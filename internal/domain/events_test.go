package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSessionEvent(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"session_id":"s1","timestamp":"2026-08-01T10:00:00Z","candidate_id":"c1","initial_difficulty":5}`)
	ev, err := DecodeSessionEvent(EventSessionStarted, payload)
	require.NoError(t, err)

	started, ok := ev.(SessionStarted)
	require.True(t, ok)
	assert.Equal(t, "s1", started.SessionID())
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), started.OccurredAt())
	assert.Equal(t, "c1", started.CandidateID)
	assert.Equal(t, 5, started.InitialDifficulty)

	ev, err = DecodeSessionEvent(EventTestRun, []byte(`{"session_id":"s1","timestamp":"2026-08-01T10:05:00Z","passed":3,"failed":2,"total":5}`))
	require.NoError(t, err)
	run, ok := ev.(TestRun)
	require.True(t, ok)
	assert.Equal(t, 3, run.Passed)
	assert.Equal(t, 5, run.Total)
}

func TestDecodeSessionEvent_Invalid(t *testing.T) {
	t.Parallel()

	var vErr *ValidationError

	_, err := DecodeSessionEvent("no-such-event", []byte(`{}`))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "event_type", vErr.Field)

	_, err = DecodeSessionEvent(EventTestRun, []byte(`{not json`))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "payload", vErr.Field)

	_, err = DecodeSessionEvent(EventTestRun, []byte(`{"passed":1,"total":1}`))
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "session_id", vErr.Field, "events without a session id are rejected")
}
