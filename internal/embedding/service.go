// Package embedding turns text into fixed-dimension, unit-length vectors.
//
// The expensive part of an embedder (loading a model, validating a remote
// endpoint) lives behind a Backend that Service initializes lazily on first
// use. Concurrent first callers share one initialization.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnavailable is returned when the backend cannot be initialized or fails
// to embed. Callers may retry.
var ErrUnavailable = errors.New("embedding unavailable")

// Provider embeds text. Embed(x) equals EmbedBatch([x])[0] and every vector
// has Dimension() components.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Backend is an initialized embedding resource. Output need not be normalized.
type Backend interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Loader initializes a Backend. It runs at most once at a time per Service.
type Loader func(ctx context.Context) (Backend, error)

// Service is a Provider with a lazily loaded, process-wide Backend.
// A failed load is not cached: the next call tries again.
type Service struct {
	load      Loader
	dimension int
	logger    *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	backend Backend
}

// NewService creates a Service. dimension is the expected vector size; a
// loaded backend reporting a different size is rejected. Zero accepts
// whatever the backend reports.
func NewService(load Loader, dimension int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		load:      load,
		dimension: dimension,
		logger:    logger,
	}
}

// Dimension returns the configured dimension, or the loaded backend's when
// none was configured. It never triggers a load.
func (s *Service) Dimension() int {
	if s.dimension > 0 {
		return s.dimension
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend != nil {
		return s.backend.Dimension()
	}
	return 0
}

// Ready loads the backend if needed.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.get(ctx)
	return err
}

// Embed returns the unit vector for text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one unit vector per text, in order. Any failure fails
// the whole call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	backend, err := s.get(ctx)
	if err != nil {
		return nil, err
	}

	vecs, err := backend.EmbedBatch(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", ErrUnavailable, len(vecs), len(texts))
	}

	dim := backend.Dimension()
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrUnavailable, i, len(v), dim)
		}
		out[i] = Normalize(v)
	}
	return out, nil
}

func (s *Service) get(ctx context.Context) (Backend, error) {
	s.mu.RLock()
	backend := s.backend
	s.mu.RUnlock()
	if backend != nil {
		return backend, nil
	}

	ch := s.group.DoChan("backend", func() (any, error) {
		s.mu.RLock()
		loaded := s.backend
		s.mu.RUnlock()
		if loaded != nil {
			return loaded, nil
		}

		start := time.Now()
		// a caller giving up must not abort the load the others are waiting on
		b, err := s.load(context.WithoutCancel(ctx))
		if err != nil {
			s.logger.Warn("embedding backend failed to load", "error", err, "duration", time.Since(start))
			return nil, err
		}
		if s.dimension > 0 && b.Dimension() != s.dimension {
			return nil, fmt.Errorf("backend dimension %d does not match configured %d", b.Dimension(), s.dimension)
		}

		s.mu.Lock()
		s.backend = b
		s.mu.Unlock()
		s.logger.Info("embedding backend loaded", "dimension", b.Dimension(), "duration", time.Since(start))
		return b, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, res.Err)
		}
		return res.Val.(Backend), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
