package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) Config {
	return Config{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestDelay_Sequence(t *testing.T) {
	cfg := Config{InitialDelay: 1000 * time.Millisecond, MaxDelay: 5000 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{1000, 2000, 4000, 5000, 5000, 5000}
	for n, w := range want {
		assert.Equal(t, w*time.Millisecond, Delay(n, cfg), "n=%d", n)
	}
}

func TestDelay_NonDecreasingAndCapped(t *testing.T) {
	cfg := Config{InitialDelay: 300 * time.Millisecond, MaxDelay: 7 * time.Second, Multiplier: 1.7}
	prev := time.Duration(0)
	for n := 0; n < 200; n++ {
		d := Delay(n, cfg)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, cfg.MaxDelay)
		prev = d
	}
}

func TestExecute_SucceedsAfterTwoFailures(t *testing.T) {
	calls := 0
	res := Execute(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, Policy{Name: "test", Config: fastConfig(3)})

	require.True(t, res.Success())
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
}

func TestExecute_ExhaustsWithLastError(t *testing.T) {
	calls := 0
	var exhausted error
	res := Execute(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom " + string(rune('0'+calls)))
	}, Policy{
		Name:      "test",
		Config:    fastConfig(2),
		OnExhaust: func(err error) { exhausted = err },
	})

	require.False(t, res.Success())
	assert.Equal(t, 3, res.Attempts)
	assert.EqualError(t, res.Err, "boom 3")
	assert.Equal(t, res.Err, exhausted)
}

func TestExecute_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad input"))
	}, Policy{Config: fastConfig(5)})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestExecute_NoDelayAfterFinalAttempt(t *testing.T) {
	cfg := Config{MaxRetries: 0, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	start := time.Now()
	attempts, err := Do(context.Background(), func(context.Context) error {
		return errors.New("fail")
	}, Policy{Config: cfg})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecute_ContextCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	attempts, err := Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("fail")
	}, Policy{Config: cfg})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestExponential_ZeroMultiplierIsConstant(t *testing.T) {
	b := Exponential{Initial: 50 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 50*time.Millisecond, b.Next(0))
	assert.Equal(t, 50*time.Millisecond, b.Next(7))
}
