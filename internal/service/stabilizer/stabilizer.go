// Package stabilizer turns noisy per-frame detector output into a steady list of
// detections to draw: it samples at most once per interval, keeps the last non-empty
// result alive through a grace window and drops classes outside the vocabulary.
package stabilizer

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"purescan/internal/model"
)

const (
	DefaultSampleInterval = 2 * time.Second
	DefaultGraceWindow    = 4 * time.Second
)

// Sampler runs the detector once on the current frame.
type Sampler func(ctx context.Context) ([]model.Detection, error)

// Options configures a Stabilizer. Zero values take the package defaults.
type Options struct {
	SampleInterval time.Duration
	GraceWindow    time.Duration
	Vocabulary     *Vocabulary
	Clock          clock.Clock
}

// Stabilizer owns the held detection set. Callers only ever see copies of it.
type Stabilizer struct {
	interval time.Duration
	grace    time.Duration
	vocab    *Vocabulary
	clock    clock.Clock

	mu           sync.Mutex
	held         []model.Detection
	lastSample   time.Time
	lastNonEmpty time.Time
	sampled      bool
	generation   uint64
}

// New creates a Stabilizer with an empty held set.
func New(opts Options) *Stabilizer {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.Vocabulary == nil {
		opts.Vocabulary = FoodVocabulary()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Stabilizer{
		interval: opts.SampleInterval,
		grace:    opts.GraceWindow,
		vocab:    opts.Vocabulary,
		clock:    opts.Clock,
	}
}

// Tick returns the detections to draw now, calling sample only if a full sample
// interval has passed since the previous call to it.
//
// A failed sample counts as an empty one: the held set survives only inside the
// grace window, and the error is returned alongside it.
// If ctx is cancelled, or Reset runs, while sample is in flight the result is
// discarded and ctx's error (or nil detections) is returned.
func (s *Stabilizer) Tick(ctx context.Context, sample Sampler) ([]model.Detection, error) {
	s.mu.Lock()
	now := s.clock.Now()
	if s.sampled && now.Sub(s.lastSample) < s.interval {
		held := model.CloneDetections(s.held)
		s.mu.Unlock()
		return held, nil
	}
	s.lastSample = now
	s.sampled = true
	generation := s.generation
	s.mu.Unlock()

	raw, err := sample(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if generation != s.generation {
		return nil, nil
	}
	if err != nil {
		s.expireLocked(now)
		return model.CloneDetections(s.held), err
	}

	if filtered := s.vocab.Filter(raw); len(filtered) > 0 {
		s.held = filtered
		s.lastNonEmpty = now
	} else {
		s.expireLocked(now)
	}
	return model.CloneDetections(s.held), nil
}

// expireLocked drops the held set once the grace window since the last non-empty
// sample has run out.
func (s *Stabilizer) expireLocked(now time.Time) {
	if now.Sub(s.lastNonEmpty) >= s.grace {
		s.held = nil
	}
}

// Held returns a copy of the current held set.
func (s *Stabilizer) Held() []model.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneDetections(s.held)
}

// Reset forgets everything, including any sample still in flight.
func (s *Stabilizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = nil
	s.lastSample = time.Time{}
	s.lastNonEmpty = time.Time{}
	s.sampled = false
	s.generation++
}

func (s *Stabilizer) Vocabulary() *Vocabulary { return s.vocab }
