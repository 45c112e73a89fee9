package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failed")

func fail() (int, error) { return 0, errDownstream }

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New[int](Settings{Name: "test", FailureThreshold: 3, OpenTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(fail)
		require.ErrorIs(t, err, errDownstream)
	}
	assert.Equal(t, "open", b.State())

	calls := 0
	_, err := b.Execute(func() (int, error) {
		calls++
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New[int](Settings{Name: "test", FailureThreshold: 2, OpenTimeout: time.Hour})

	_, _ = b.Execute(fail)
	v, err := b.Execute(func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	_, _ = b.Execute(fail)

	assert.Equal(t, "closed", b.State())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := New[int](Settings{Name: "test", FailureThreshold: 1, OpenTimeout: 20 * time.Millisecond})

	_, _ = b.Execute(fail)
	require.Equal(t, "open", b.State())

	time.Sleep(40 * time.Millisecond)
	_, err := b.Execute(func() (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	b := New[int](Settings{Name: "test", FailureThreshold: 1, OpenTimeout: time.Hour})

	_, err := b.Execute(func() (int, error) { return 0, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_Defaults(t *testing.T) {
	b := New[string](Settings{Name: "defaults"})

	for i := 0; i < defaultFailureThreshold-1; i++ {
		_, _ = b.Execute(func() (string, error) { return "", errDownstream })
	}
	assert.Equal(t, "closed", b.State())

	_, _ = b.Execute(func() (string, error) { return "", errDownstream })
	assert.Equal(t, "open", b.State())
}
