package supervisor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultDeciderRestartsOrdinaryErrors(t *testing.T) {
	require.Equal(t, Restart, DefaultDecider(errors.New("boom"), nil))
}

func TestDefaultDeciderStopsFatalErrors(t *testing.T) {
	cause := Fatal{Cause: errors.New("out of memory")}
	require.Equal(t, Stop, DefaultDecider(cause, nil))
}

func TestStrategyEscalatesAfterMaxRetries(t *testing.T) {
	strategy := Strategy{
		Kind:         OneForOne,
		Decider:      DefaultDecider,
		MaxRetries:   3,
		WithinWindow: time.Second,
	}
	stats := NewRestartStatistics()
	cause := errors.New("crash")
	base := time.Now()

	for i := 0; i < 3; i++ {
		got := strategy.Decide(stats, cause, nil, base.Add(time.Duration(i)*200*time.Millisecond))
		require.Equal(t, Restart, got, "restart %d should stay within budget", i)
	}

	got := strategy.Decide(stats, cause, nil, base.Add(600*time.Millisecond))
	require.Equal(t, Escalate, got, "fourth restart within the window should escalate")
}

func TestStrategyWindowResetsOldFailures(t *testing.T) {
	strategy := Strategy{
		Kind:         OneForOne,
		Decider:      DefaultDecider,
		MaxRetries:   1,
		WithinWindow: 100 * time.Millisecond,
	}
	stats := NewRestartStatistics()
	cause := errors.New("crash")
	base := time.Now()

	require.Equal(t, Restart, strategy.Decide(stats, cause, nil, base))
	require.Equal(t, Escalate, strategy.Decide(stats, cause, nil, base.Add(10*time.Millisecond)))

	// Well outside the window: the earlier failures should have aged out.
	require.Equal(t, Restart, strategy.Decide(stats, cause, nil, base.Add(time.Second)))
}

func TestUnlimitedRetriesNeverEscalate(t *testing.T) {
	strategy := Strategy{Kind: OneForOne, Decider: DefaultDecider, MaxRetries: 0}
	stats := NewRestartStatistics()
	cause := errors.New("crash")
	now := time.Now()

	for i := 0; i < 50; i++ {
		require.Equal(t, Restart, strategy.Decide(stats, cause, nil, now))
	}
}
