package ai

import (
	"context"
	"fmt"
	"sync"

	"purescan/internal/logger"
)

// Provider hands out the shared detector instance.
type Provider interface {
	Get(ctx context.Context) (*Instance, error)
}

// Registry holds the process-wide detector. The first successful Get loads it and
// every later Get returns the same instance. Failed loads are not remembered, so the
// next Get tries again. Only Close tears the instance down.
type Registry struct {
	load      LoadFunc
	preferred Backend
	fallback  Backend
	logger    *logger.Logger

	mu       sync.Mutex
	instance *Instance
	closed   bool
}

func NewRegistry(load LoadFunc, preferred, fallback Backend, logger *logger.Logger) *Registry {
	return &Registry{
		load:      load,
		preferred: preferred,
		fallback:  fallback,
		logger:    logger,
	}
}

func (r *Registry) Get(ctx context.Context) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: registry closed", ErrModelLoad)
	}
	if r.instance != nil {
		return r.instance, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instance, err := Load(r.load, r.preferred, r.fallback, r.logger)
	if err != nil {
		r.logger.Error("Detector load failed: %v", err)
		return nil, err
	}
	r.instance = instance
	return instance, nil
}

// Loaded reports whether an instance is cached.
func (r *Registry) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instance != nil
}

// Close releases the cached instance. Called once at application exit.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.instance == nil {
		return nil
	}
	err := r.instance.Close()
	r.instance = nil
	return err
}
