package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = errors.New("dependency failed")

func failingCall(_ context.Context) error { return errTest }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("firestore", WithFailureThreshold(3))
	ctx := context.Background()

	for range 3 {
		err := b.Do(ctx, failingCall)
		assert.ErrorIs(t, err, errTest)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	b := New("firestore", WithFailureThreshold(2))
	ctx := context.Background()

	for range 2 {
		_ = b.Do(ctx, failingCall)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	invoked := false
	err := b.Do(ctx, func(_ context.Context) error {
		invoked = true
		return nil
	})
	assert.False(t, invoked)
	assert.ErrorIs(t, err, ErrOpen)
	assert.True(t, IsOpen(err))

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "firestore", openErr.Name)
	assert.False(t, openErr.Retryable())
}

func TestBreaker_RecoveryScenario(t *testing.T) {
	// threshold=3, timeout=1s: three failures open the breaker, the
	// fourth call is rejected without execution, and after the timeout a
	// single trial call closes it again.
	b := New("firestore",
		WithFailureThreshold(3),
		WithRecoveryTimeout(time.Second))
	ctx := context.Background()

	for range 3 {
		_ = b.Do(ctx, failingCall)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	invoked := false
	err := b.Do(ctx, func(_ context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)

	time.Sleep(1100 * time.Millisecond)

	err = b.Do(ctx, func(_ context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, uint32(0), b.Counts().ConsecutiveFailures)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("firestore",
		WithFailureThreshold(2),
		WithRecoveryTimeout(100*time.Millisecond))
	ctx := context.Background()

	for range 2 {
		_ = b.Do(ctx, failingCall)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(150 * time.Millisecond)

	err := b.Do(ctx, failingCall)
	assert.ErrorIs(t, err, errTest)
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_ExpectedErrorsFilter(t *testing.T) {
	marker := errors.New("transient")
	b := New("firestore",
		WithFailureThreshold(2),
		WithExpectedErrors(func(err error) bool { return errors.Is(err, marker) }))
	ctx := context.Background()

	// Unexpected errors pass through without breaker bookkeeping.
	for range 5 {
		err := b.Do(ctx, failingCall)
		assert.ErrorIs(t, err, errTest)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	// Expected errors trip the breaker.
	for range 2 {
		_ = b.Do(ctx, func(_ context.Context) error { return marker })
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	transitions := make(chan [2]gobreaker.State, 4)
	b := New("firestore",
		WithFailureThreshold(1),
		WithOnStateChange(func(_ string, from, to gobreaker.State) {
			transitions <- [2]gobreaker.State{from, to}
		}))

	_ = b.Do(context.Background(), failingCall)

	select {
	case tr := <-transitions:
		assert.Equal(t, gobreaker.StateClosed, tr[0])
		assert.Equal(t, gobreaker.StateOpen, tr[1])
	case <-time.After(time.Second):
		t.Fatal("expected a state transition")
	}
}

func TestBreaker_ContextCanceled(t *testing.T) {
	b := New("firestore")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoked := false
	err := b.Do(ctx, func(_ context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, invoked)
}

func TestExecute_ReturnsValue(t *testing.T) {
	b := New("firestore")
	ctx := context.Background()

	got, err := Execute(ctx, b, func(_ context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = Execute(ctx, b, func(_ context.Context) (string, error) {
		return "", errTest
	})
	assert.ErrorIs(t, err, errTest)
}
