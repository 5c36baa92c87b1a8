package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flip(b bool) bool { return !b }

func TestProposalLifecycle(t *testing.T) {
	cell := NewCell(false)

	p, err := cell.Propose(flip)
	require.NoError(t, err)
	v, pending := cell.Get()
	assert.True(t, v)
	assert.True(t, pending)

	_, err = cell.Propose(flip)
	assert.ErrorIs(t, err, ErrPending)
	assert.False(t, cell.Set(false), "Set must not clobber an in-flight guess")

	p.Revert()
	p.Confirm() // second finish is ignored
	v, pending = cell.Get()
	assert.False(t, v)
	assert.False(t, pending)
}

func TestRunTrustsGuessWithoutResync(t *testing.T) {
	cell := NewCell(false)
	var sawBefore bool
	err := Run(context.Background(), cell, Plan[bool]{
		Guess: flip,
		Mutate: func(ctx context.Context, before bool) error {
			sawBefore = before
			v, pending := cell.Get()
			assert.True(t, v)
			assert.True(t, pending)
			return nil
		},
	})
	require.NoError(t, err)
	assert.False(t, sawBefore)
	v, pending := cell.Get()
	assert.True(t, v)
	assert.False(t, pending)
}

func TestRunRevertsOnFailureWithoutResync(t *testing.T) {
	cell := NewCell(true)
	boom := errors.New("boom")
	err := Run(context.Background(), cell, Plan[bool]{
		Guess:  flip,
		Mutate: func(context.Context, bool) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	v, _ := cell.Get()
	assert.True(t, v)
}

func TestRunAlwaysResyncs(t *testing.T) {
	cell := NewCell(5)
	boom := errors.New("boom")
	resyncs := 0

	err := Run(context.Background(), cell, Plan[int]{
		Mutate: func(context.Context, int) error {
			v, pending := cell.Get()
			assert.Equal(t, 5, v, "no guess means the value is unchanged while pending")
			assert.True(t, pending)
			return boom
		},
		Resync: func(context.Context) (int, error) {
			resyncs++
			return 0, nil
		},
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, resyncs)
	v, pending := cell.Get()
	assert.Equal(t, 0, v)
	assert.False(t, pending)
}

func TestRunResyncFailureAfterFailedMutationReverts(t *testing.T) {
	cell := NewCell(3)
	err := Run(context.Background(), cell, Plan[int]{
		Guess:  func(v int) int { return v + 1 },
		Mutate: func(context.Context, int) error { return errors.New("mutate") },
		Resync: func(context.Context) (int, error) { return 0, errors.New("resync") },
	})
	require.EqualError(t, err, "mutate")
	v, _ := cell.Get()
	assert.Equal(t, 3, v)
}
