package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogThrottleSuppressesWithinInterval(t *testing.T) {
	throttle := newLogThrottle()
	calls := 0
	emit := func() { calls++ }

	throttle.logf("acct-1", "disabled", time.Hour, emit)
	throttle.logf("acct-1", "disabled", time.Hour, emit)
	throttle.logf("acct-1", "disabled", time.Hour, emit)

	assert.Equal(t, 1, calls)
}

func TestLogThrottleEmitsAgainAfterIntervalElapses(t *testing.T) {
	throttle := newLogThrottle()
	calls := 0
	emit := func() { calls++ }

	throttle.logf("acct-1", "disabled", time.Millisecond, emit)
	time.Sleep(5 * time.Millisecond)
	throttle.logf("acct-1", "disabled", time.Millisecond, emit)

	assert.Equal(t, 2, calls)
}

func TestLogThrottleTracksReasonsAndAccountsIndependently(t *testing.T) {
	throttle := newLogThrottle()
	calls := 0
	emit := func() { calls++ }

	throttle.logf("acct-1", "disabled", time.Hour, emit)
	throttle.logf("acct-1", "no_oauth_token", time.Hour, emit)
	throttle.logf("acct-2", "disabled", time.Hour, emit)

	assert.Equal(t, 3, calls)
}
