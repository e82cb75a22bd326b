package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptsPolicy_Delay(t *testing.T) {
	t.Parallel()

	exponential := AttemptsPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffExponential,
		BaseDelay:   5 * time.Second,
		MaxDelay:    time.Minute,
	}

	tests := []struct {
		name         string
		policy       AttemptsPolicy
		attemptsMade int
		want         time.Duration
	}{
		{"first retry", exponential, 1, 5 * time.Second},
		{"second retry doubles", exponential, 2, 10 * time.Second},
		{"third retry doubles again", exponential, 3, 20 * time.Second},
		{"capped at max delay", exponential, 10, time.Minute},
		{"zero clamps to first", exponential, 0, 5 * time.Second},
		{
			"fixed backoff never grows",
			AttemptsPolicy{MaxAttempts: 3, Backoff: BackoffFixed, BaseDelay: 3 * time.Second},
			4,
			3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attemptsMade))
		})
	}
}

func TestOrderForQueue(t *testing.T) {
	t.Parallel()

	// Urgency queues process higher priorities first; everything else
	// processes lower values first.
	assert.Equal(t, "DESC", OrderForQueue(QueueAnalyze))
	assert.Equal(t, "DESC", OrderForQueue(QueueInvite))
	assert.Equal(t, "ASC", OrderForQueue(QueueSessionEvents))
	assert.Equal(t, "ASC", OrderForQueue(QueueNotifications))
	assert.Equal(t, "ASC", OrderForQueue("unknown"))
}

func TestDedupKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "s1:session-complete", DedupKey("s1", "session-complete"))

	at := time.Unix(0, 1700000000000000000)
	assert.Equal(t, "s1:test-run:1700000000000000000", DedupKeyAt("s1", "test-run", at))

	// Repeatable events at different instants must not collide.
	assert.NotEqual(t,
		DedupKeyAt("s1", "test-run", at),
		DedupKeyAt("s1", "test-run", at.Add(time.Nanosecond)))
}
