package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("connection reset by peer")

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := Policy{
		Name:       "test",
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2,
	}

	start := time.Now()
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls, "operation should be called exactly 3 times")
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond, "delays of 100ms and 200ms should have elapsed")
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, syscall.ECONNRESET)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Contains(t, err.Error(), "attempt 3")
	assert.False(t, IsNonRetryable(err), "exhaustion is not a fatal classification")
}

func TestRetry_FatalErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	errBadInput := errors.New("invalid prompt")
	calls := 0

	err := Do(context.Background(), Network(), func(ctx context.Context) error {
		calls++
		return errBadInput
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, errBadInput, "original error must stay reachable")
	assert.NotEqual(t, errBadInput, err, "fatal errors come back wrapped")

	var nre *NonRetryableError
	require.ErrorAs(t, err, &nre)
	assert.Same(t, errBadInput, nre.Err)
	assert.Equal(t, "non-retryable: invalid prompt", err.Error())
}

func TestRetry_PermanentOverridesClassifier(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := Policy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		Classifier: func(error) bool { return true },
	}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Equal(t, 1, calls)
	assert.True(t, IsNonRetryable(err))
	var nre *NonRetryableError
	require.ErrorAs(t, err, &nre)
	assert.Same(t, errFlaky, nre.Err, "already fatal errors are not wrapped twice")
}

func TestRetry_OnRetryObservesEachRetry(t *testing.T) {
	t.Parallel()

	type observed struct {
		attempt int
		delay   time.Duration
	}
	var seen []observed

	policy := Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   3 * time.Millisecond,
		Multiplier: 2,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			assert.ErrorIs(t, err, errFlaky)
			seen = append(seen, observed{attempt, delay})
		},
	}

	_ = Do(context.Background(), policy, func(ctx context.Context) error {
		return errFlaky
	})

	assert.Equal(t, []observed{
		{1, time.Millisecond},
		{2, 2 * time.Millisecond},
		{3, 3 * time.Millisecond},
	}, seen)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		MaxRetries: 10,
		BaseDelay:  time.Hour,
		OnRetry:    func(int, error, time.Duration) { cancel() },
	}

	err := Do(ctx, policy, func(ctx context.Context) error {
		calls++
		return errFlaky
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errFlaky)
}

func TestRules_Retryable(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()

	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"errno membership", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled is never retried", context.Canceled, false},
		{"message substring", errors.New("upstream Timed Out"), true},
		{"retryable status", &StatusError{Code: 503}, true},
		{"non-retryable status", &StatusError{Code: 400, Err: errors.New("bad request")}, false},
		{"permanent wins", Permanent(syscall.ECONNRESET), false},
		{"unknown error", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, rules.Retryable(tc.err))
		})
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()

	local, ok := Preset(PresetLocalTool)
	require.True(t, ok)
	ai, ok := Preset(PresetAI)
	require.True(t, ok)

	assert.Less(t, local.BaseDelay, ai.BaseDelay, "local tools should retry sooner than AI APIs")
	assert.Less(t, local.MaxDelay, ai.MaxDelay)
	assert.True(t, ai.Classifier(errors.New("429 RESOURCE_EXHAUSTED")))
	assert.False(t, local.Classifier(errors.New("exit status 1")))

	_, ok = Preset("unknown")
	assert.False(t, ok)
}
