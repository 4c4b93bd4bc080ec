// Package pool provides a typed sync.Pool for the receive and framing
// buffers the DNS listeners reuse across queries.
package pool

import "sync"

// Pool is a typed wrapper around sync.Pool.
type Pool[T any] struct {
	internal sync.Pool
}

// New creates a Pool whose empty Gets are filled by newFn.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		internal: sync.Pool{
			New: func() any {
				return newFn()
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.internal.Get().(T)
}

// Put returns item for reuse. Callers must not touch item afterwards.
func (p *Pool[T]) Put(item T) {
	p.internal.Put(item)
}
