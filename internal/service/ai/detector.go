// Package ai loads the object-detection model and runs inference on frames.
package ai

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"purescan/internal/logger"
	"purescan/internal/model"
)

const (
	DefaultMaxResults     = 20
	DefaultScoreThreshold = 0.20
)

var (
	ErrModelLoad = errors.New("detector model load failed")
	ErrClosed    = errors.New("detector closed")
)

// Backend is an inference execution target.
type Backend string

const (
	BackendCUDA   Backend = "cuda"
	BackendOpenCL Backend = "opencl"
	BackendCPU    Backend = "cpu"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendCUDA, BackendOpenCL, BackendCPU:
		return b, nil
	case "":
		return BackendCPU, nil
	}
	return "", fmt.Errorf("unknown detector backend %q", s)
}

// Model is a loaded pretrained detector with a fixed class vocabulary.
type Model interface {
	Detect(img image.Image, maxResults int, scoreThreshold float64) ([]model.Detection, error)
	Close() error
}

// LoadFunc loads a Model on the given backend.
type LoadFunc func(backend Backend) (Model, error)

// Instance is a loaded model bound to the backend that accepted it.
// Detect calls are serialized.
type Instance struct {
	mu      sync.Mutex
	model   Model
	backend Backend
}

func NewInstance(m Model, backend Backend) *Instance {
	return &Instance{model: m, backend: backend}
}

func (i *Instance) Backend() Backend { return i.backend }

// Load tries preferred first and fallback second. It fails only when both do.
func Load(load LoadFunc, preferred, fallback Backend, logger *logger.Logger) (*Instance, error) {
	m, err := load(preferred)
	if err == nil {
		logger.Info("Detector loaded on %s backend", preferred)
		return NewInstance(m, preferred), nil
	}

	if fallback == "" || fallback == preferred {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, preferred, err)
	}

	logger.Warning("Detector backend %s unavailable (%v), falling back to %s", preferred, err, fallback)
	m, fallbackErr := load(fallback)
	if fallbackErr != nil {
		combined := multierr.Combine(
			fmt.Errorf("%s: %v", preferred, err),
			fmt.Errorf("%s: %v", fallback, fallbackErr),
		)
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, combined)
	}

	logger.Info("Detector loaded on %s backend", fallback)
	return NewInstance(m, fallback), nil
}

// Detect runs the model on frame. A nil or empty frame yields no detections.
// Results are at or above scoreThreshold, highest confidence first, at most maxResults long.
func (i *Instance) Detect(frame image.Image, maxResults int, scoreThreshold float64) ([]model.Detection, error) {
	if frame == nil || frame.Bounds().Empty() {
		return []model.Detection{}, nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if scoreThreshold < 0 {
		scoreThreshold = DefaultScoreThreshold
	}

	i.mu.Lock()
	if i.model == nil {
		i.mu.Unlock()
		return nil, ErrClosed
	}
	raw, err := i.model.Detect(frame, maxResults, scoreThreshold)
	i.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	results := make([]model.Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence >= scoreThreshold {
			results = append(results, d)
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Confidence > results[b].Confidence
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// Close releases the model. Further Detect calls fail with ErrClosed.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.model == nil {
		return nil
	}
	err := i.model.Close()
	i.model = nil
	return err
}
