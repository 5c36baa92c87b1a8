// Package optimistic implements the two-phase protocol used for local
// guesses that are later confirmed, reverted or replaced by the server:
// propose, then exactly one of confirm, revert or resolve.
package optimistic

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned when a proposal is already in flight for a cell
var ErrPending = errors.New("mutation already in flight")

// Cell is a locally displayed value with an in-flight marker
type Cell[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
}

// NewCell creates a cell holding initial
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the displayed value and whether a proposal is in flight
func (c *Cell[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.pending
}

// Set replaces the value outside of any proposal, e.g. on initial load.
// It is ignored while a proposal is pending so a slow load cannot clobber
// the in-flight guess.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return false
	}
	c.value = v
	return true
}

// Propose applies guess to the current value and marks the cell pending.
// A nil guess keeps the value and only marks it pending. It fails with
// ErrPending if another proposal has not finished.
func (c *Cell[T]) Propose(guess func(T) T) (*Proposal[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return nil, ErrPending
	}

	before := c.value
	if guess != nil {
		c.value = guess(before)
	}
	c.pending = true
	return &Proposal[T]{cell: c, before: before}, nil
}

// Proposal is one in-flight optimistic change
type Proposal[T any] struct {
	cell   *Cell[T]
	before T
	once   sync.Once
}

// Before returns the value the proposal started from
func (p *Proposal[T]) Before() T {
	return p.before
}

// Confirm keeps the guessed value
func (p *Proposal[T]) Confirm() {
	p.finish(func(c *Cell[T]) {})
}

// Revert restores the value from before the proposal
func (p *Proposal[T]) Revert() {
	p.finish(func(c *Cell[T]) { c.value = p.before })
}

// Resolve replaces the value with the authoritative one
func (p *Proposal[T]) Resolve(v T) {
	p.finish(func(c *Cell[T]) { c.value = v })
}

func (p *Proposal[T]) finish(apply func(c *Cell[T])) {
	p.once.Do(func() {
		p.cell.mu.Lock()
		defer p.cell.mu.Unlock()
		apply(p.cell)
		p.cell.pending = false
	})
}

// Plan describes one optimistic mutation
type Plan[T any] struct {
	// Guess computes the value shown while the mutation is in flight. Nil
	// means nothing is guessed; only the pending marker is shown.
	Guess func(T) T
	// Mutate performs the remote change, given the pre-proposal value.
	Mutate func(ctx context.Context, before T) error
	// Resync fetches the authoritative value after Mutate returns, whether
	// it failed or not. Nil means the guess is trusted on success and
	// reverted on failure.
	Resync func(ctx context.Context) (T, error)
}

// Run proposes, mutates and reconciles. It returns the mutation error, or
// the resync error when only the resync failed.
func Run[T any](ctx context.Context, cell *Cell[T], plan Plan[T]) error {
	p, err := cell.Propose(plan.Guess)
	if err != nil {
		return err
	}

	mutateErr := plan.Mutate(ctx, p.Before())

	if plan.Resync == nil {
		if mutateErr != nil {
			p.Revert()
		} else {
			p.Confirm()
		}
		return mutateErr
	}

	fresh, resyncErr := plan.Resync(ctx)
	switch {
	case resyncErr == nil:
		p.Resolve(fresh)
	case mutateErr != nil:
		p.Revert()
	default:
		p.Confirm()
	}

	if mutateErr != nil {
		return mutateErr
	}
	return resyncErr
}
