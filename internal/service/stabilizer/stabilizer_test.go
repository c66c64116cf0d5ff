package stabilizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purescan/internal/model"
)

// scripted returns queued results in order and counts calls. Once the queue is
// drained it keeps returning nothing.
type scripted struct {
	queue [][]model.Detection
	calls int
}

func (s *scripted) sample(ctx context.Context) ([]model.Detection, error) {
	s.calls++
	if len(s.queue) == 0 {
		return nil, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next, nil
}

var (
	apple  = model.Detection{Label: "apple", Confidence: 0.8, X: 10, Y: 10, Width: 50, Height: 50}
	banana = model.Detection{Label: "banana", Confidence: 0.7, X: 100, Y: 20, Width: 80, Height: 30}
	person = model.Detection{Label: "person", Confidence: 0.99, X: 0, Y: 0, Width: 200, Height: 400}
)

func newTestStabilizer(mock *clock.Mock) *Stabilizer {
	return New(Options{
		SampleInterval: 2 * time.Second,
		GraceWindow:    4 * time.Second,
		Clock:          mock,
	})
}

func TestTick_ThrottlesSampling(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{}
	ctx := context.Background()

	// 100ms ticks over 10 seconds
	for i := 0; i < 100; i++ {
		_, err := stab.Tick(ctx, s.sample)
		require.NoError(t, err)
		mock.Add(100 * time.Millisecond)
	}

	assert.Equal(t, 5, s.calls)
}

func TestTick_HoldThenClear(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{apple}}}
	ctx := context.Background()

	held, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	require.Equal(t, []model.Detection{apple}, held)

	// every tick strictly inside the grace window keeps the t=0 result
	for elapsed := 100 * time.Millisecond; elapsed < 4*time.Second; elapsed += 100 * time.Millisecond {
		mock.Set(time.Unix(0, 0).Add(elapsed))
		held, err := stab.Tick(ctx, s.sample)
		require.NoError(t, err)
		assert.Equal(t, []model.Detection{apple}, held, "at %v", elapsed)
	}

	mock.Set(time.Unix(0, 0).Add(4 * time.Second))
	held, err = stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	assert.Empty(t, held)
	assert.Empty(t, stab.Held())
}

func TestTick_AllowlistFiltering(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{person, apple}, {person}}}
	ctx := context.Background()

	held, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	assert.Equal(t, []model.Detection{apple}, held)

	// a result containing only disallowed classes counts as empty
	mock.Add(2 * time.Second)
	held, err = stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	assert.Equal(t, []model.Detection{apple}, held)

	for _, d := range stab.Held() {
		assert.NotEqual(t, "person", d.Label)
	}
}

func TestTick_ReplacesNotMerges(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{apple}, {banana}}}
	ctx := context.Background()

	_, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)

	mock.Add(2 * time.Second)
	held, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	assert.Equal(t, []model.Detection{banana}, held)
}

func TestTick_ReturnsCopies(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{apple}}}

	held, err := stab.Tick(context.Background(), s.sample)
	require.NoError(t, err)
	held[0].Label = "mutated"

	assert.Equal(t, "apple", stab.Held()[0].Label)
}

func TestTick_CancelledSampleIsDiscarded(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	ctx, cancel := context.WithCancel(context.Background())

	held, err := stab.Tick(ctx, func(ctx context.Context) ([]model.Detection, error) {
		cancel()
		return []model.Detection{apple}, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, held)
	assert.Empty(t, stab.Held())
}

func TestTick_ResetDuringSampleIsDiscarded(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)

	held, err := stab.Tick(context.Background(), func(ctx context.Context) ([]model.Detection, error) {
		stab.Reset()
		return []model.Detection{apple}, nil
	})

	require.NoError(t, err)
	assert.Empty(t, held)
	assert.Empty(t, stab.Held())
}

func TestTick_SamplerErrorKeepsHeld(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{apple}}}
	ctx := context.Background()

	_, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)

	mock.Add(2 * time.Second)
	boom := errors.New("inference failed")
	held, err := stab.Tick(ctx, func(context.Context) ([]model.Detection, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []model.Detection{apple}, held)

	// the failed sample still consumed its slot
	calls := 0
	mock.Add(time.Second)
	_, err = stab.Tick(ctx, func(context.Context) ([]model.Detection, error) { calls++; return nil, nil })
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestTick_FailingSamplesClearAfterGrace(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{apple}}}
	ctx := context.Background()

	_, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)

	boom := errors.New("inference failed")
	failing := func(context.Context) ([]model.Detection, error) { return nil, boom }

	// inside the grace window the failure keeps the last boxes
	mock.Add(2 * time.Second)
	held, err := stab.Tick(ctx, failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []model.Detection{apple}, held)

	// once it runs out, repeated failures must not keep them on screen
	for i := 0; i < 30; i++ {
		mock.Add(2 * time.Second)
		held, err = stab.Tick(ctx, failing)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, held, "after %d failing samples", i+2)
	}
	assert.Empty(t, stab.Held())
}

func TestReset(t *testing.T) {
	mock := clock.NewMock()
	stab := newTestStabilizer(mock)
	s := &scripted{queue: [][]model.Detection{{apple}, {banana}}}
	ctx := context.Background()

	_, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	stab.Reset()
	assert.Empty(t, stab.Held())

	// next tick samples immediately even though the interval has not passed
	held, err := stab.Tick(ctx, s.sample)
	require.NoError(t, err)
	assert.Equal(t, 2, s.calls)
	assert.Equal(t, []model.Detection{banana}, held)
}

func TestVocabulary(t *testing.T) {
	v := FoodVocabulary()

	assert.True(t, v.Allowed("apple"))
	assert.False(t, v.Allowed("person"))
	assert.Equal(t, "Vegetable", v.Display("broccoli"))
	assert.Equal(t, "Vegetable", v.Display("carrot"))
	assert.Equal(t, GenericLabel, v.Display("bowl"))
	assert.Equal(t, GenericLabel, v.Display("person"))

	custom := NewVocabulary([]string{"apple"}, nil, "")
	assert.Equal(t, GenericLabel, custom.Display("apple"))
}
