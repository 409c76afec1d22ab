// Package pagedlist turns a page fetch function into a lazy sequence.
package pagedlist

import (
	"context"
	"iter"
)

// FetchFunc returns the items of the zero-based page n. An empty page
// ends the sequence.
type FetchFunc[T any] func(ctx context.Context, n int) ([]T, error)

// OnDemand fetches pages only when they are iterated. It holds no page
// cache, so every iteration issues fresh requests.
type OnDemand[T any] struct {
	fetch    FetchFunc[T]
	pageSize int
}

// New creates a paged list of pages holding at most pageSize items
func New[T any](fetch FetchFunc[T], pageSize int) *OnDemand[T] {
	return &OnDemand[T]{fetch: fetch, pageSize: pageSize}
}

// Page returns the items of the zero-based page n
func (l *OnDemand[T]) Page(ctx context.Context, n int) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fetch(ctx, n)
}

// All iterates every item from the first page
func (l *OnDemand[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return l.From(ctx, 0)
}

// From iterates every item starting at page n. Iteration stops at the
// first empty page, or after yielding a fetch error.
func (l *OnDemand[T]) From(ctx context.Context, n int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page := n; ; page++ {
			items, err := l.Page(ctx, page)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if len(items) == 0 {
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Slice returns the items with index in [start, end). A negative end
// reads until the sequence is exhausted.
func (l *OnDemand[T]) Slice(ctx context.Context, start, end int) ([]T, error) {
	if start < 0 {
		start = 0
	}

	firstPage, index := 0, 0
	if l.pageSize > 0 {
		firstPage = start / l.pageSize
		index = firstPage * l.pageSize
	}

	var out []T
	for item, err := range l.From(ctx, firstPage) {
		if err != nil {
			return out, err
		}
		if end >= 0 && index >= end {
			break
		}
		if index >= start {
			out = append(out, item)
		}
		index++
	}
	return out, nil
}
