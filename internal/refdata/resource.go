// Package refdata caches the reference catalogs fetched from the backend
// (emotes, finishers, chat presets). Each resource is fetched at most once at
// a time and at most once successfully until invalidated.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"thirteen-shop/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrAborted marks a fetch cancelled mid-flight. It is retryable.
var ErrAborted = errors.New("fetch aborted")

// State of a cached resource
type State int

const (
	StateNotFetched State = iota
	StateFetching
	StateReady
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	}
	return "not_fetched"
}

// fetchTimeout bounds a shared fetch once no single caller owns it
const fetchTimeout = 30 * time.Second

// FetchFunc loads the full collection of a resource
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Resource is a fetch-once collection
type Resource[T any] struct {
	name   string
	fetch  FetchFunc[T]
	group  singleflight.Group
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	items   []T
	lastErr error
}

// NewResource creates a resource in the NotFetched state
func NewResource[T any](name string, fetch FetchFunc[T]) *Resource[T] {
	return &Resource[T]{
		name:   name,
		fetch:  fetch,
		logger: util.Component("refdata").With(zap.String("resource", name)),
	}
}

// IsAborted reports whether err is a transient cancellation
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Get returns the cached collection, fetching it when needed. Callers arriving
// while a fetch is in flight wait for that fetch instead of issuing another.
func (r *Resource[T]) Get(ctx context.Context) ([]T, error) {
	r.mu.Lock()
	if r.state == StateReady {
		items := r.snapshot()
		r.mu.Unlock()
		return items, nil
	}
	r.state = StateFetching
	r.mu.Unlock()

	// The fetch is shared, so it must not die with the caller that started it.
	ch := r.group.DoChan(r.name, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return r.load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", r.name, ErrAborted)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]T)), nil
	}
}

func (r *Resource[T]) load(ctx context.Context) ([]T, error) {
	r.mu.Lock()
	if r.state == StateReady {
		items := r.snapshot()
		r.mu.Unlock()
		return items, nil
	}
	r.mu.Unlock()

	items, err := r.fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.items = items
		r.lastErr = nil
		r.state = StateReady
		util.RefDataFetchesTotal.WithLabelValues(r.name, "success").Inc()
		r.logger.Debug("Reference data fetched", zap.Int("count", len(items)))
		return r.snapshot(), nil

	case IsAborted(err):
		r.state = StateNotFetched
		util.RefDataFetchesTotal.WithLabelValues(r.name, "aborted").Inc()
		r.logger.Debug("Reference data fetch aborted, will retry", zap.Error(err))
		return nil, fmt.Errorf("%s: %w", r.name, ErrAborted)

	default:
		r.items = nil
		r.lastErr = err
		r.state = StateReady
		util.RefDataFetchesTotal.WithLabelValues(r.name, "error").Inc()
		r.logger.Error("Reference data fetch failed", zap.Error(err))
		return nil, fmt.Errorf("failed to fetch %s: %w", r.name, err)
	}
}

// Invalidate forgets the cached collection so the next Get fetches again
func (r *Resource[T]) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReady {
		r.state = StateNotFetched
	}
}

// State returns the current fetch state
func (r *Resource[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError is the error of the last genuine failure, cleared on success
func (r *Resource[T]) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Resource[T]) snapshot() []T {
	return clone(r.items)
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
