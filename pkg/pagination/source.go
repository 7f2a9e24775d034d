package pagination

import (
	"context"

	"golang.org/x/exp/constraints"
)

// Source is the capability a Paginator needs from its owner.
type Source[K, B any] interface {
	// Fetch loads the batch stored at key. It must not block indefinitely;
	// timeouts belong to the implementation.
	Fetch(ctx context.Context, key K) (B, error)

	// NextKey returns the cursor to use after a successful fetch at current.
	NextKey(current K) K
}

// SourceFuncs adapts two plain functions to the Source interface.
type SourceFuncs[K, B any] struct {
	FetchFunc   func(ctx context.Context, key K) (B, error)
	NextKeyFunc func(current K) K
}

// Fetch calls FetchFunc.
func (s SourceFuncs[K, B]) Fetch(ctx context.Context, key K) (B, error) {
	return s.FetchFunc(ctx, key)
}

// NextKey calls NextKeyFunc.
func (s SourceFuncs[K, B]) NextKey(current K) K {
	return s.NextKeyFunc(current)
}

// Increment returns a NextKey function for numeric page cursors.
func Increment[K constraints.Integer](step K) func(K) K {
	return func(current K) K {
		return current + step
	}
}
