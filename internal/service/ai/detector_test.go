package ai

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purescan/internal/logger"
	"purescan/internal/model"
)

type fakeModel struct {
	results []model.Detection
	err     error
	calls   int
	closed  bool
}

func (m *fakeModel) Detect(img image.Image, maxResults int, scoreThreshold float64) ([]model.Detection, error) {
	m.calls++
	return m.results, m.err
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

// loaderFor returns a LoadFunc that fails for every backend in failing.
func loaderFor(m Model, failing ...Backend) (LoadFunc, *[]Backend) {
	var mu sync.Mutex
	attempts := []Backend{}
	return func(b Backend) (Model, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, b)
		for _, f := range failing {
			if f == b {
				return nil, errors.New("no such accelerator")
			}
		}
		return m, nil
	}, &attempts
}

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func TestLoad_PreferredBackend(t *testing.T) {
	load, attempts := loaderFor(&fakeModel{})

	inst, err := Load(load, BackendCUDA, BackendCPU, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, BackendCUDA, inst.Backend())
	assert.Equal(t, []Backend{BackendCUDA}, *attempts)
}

func TestLoad_FallsBackWhenPreferredFails(t *testing.T) {
	m := &fakeModel{results: []model.Detection{{Label: "apple", Confidence: 0.9, Width: 10, Height: 10}}}
	load, attempts := loaderFor(m, BackendCUDA)

	inst, err := Load(load, BackendCUDA, BackendCPU, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, BackendCPU, inst.Backend())
	assert.Equal(t, []Backend{BackendCUDA, BackendCPU}, *attempts)

	dets, err := inst.Detect(frame(), DefaultMaxResults, DefaultScoreThreshold)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "apple", dets[0].Label)
}

func TestLoad_BothBackendsFail(t *testing.T) {
	load, _ := loaderFor(&fakeModel{}, BackendCUDA, BackendCPU)

	inst, err := Load(load, BackendCUDA, BackendCPU, logger.NewTestLogger())
	assert.Nil(t, inst)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestLoad_NoDistinctFallback(t *testing.T) {
	load, attempts := loaderFor(&fakeModel{}, BackendCPU)

	_, err := Load(load, BackendCPU, BackendCPU, logger.NewTestLogger())
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.Len(t, *attempts, 1)
}

func TestDetect_FiltersSortsAndTruncates(t *testing.T) {
	m := &fakeModel{results: []model.Detection{
		{Label: "apple", Confidence: 0.30},
		{Label: "banana", Confidence: 0.95},
		{Label: "cup", Confidence: 0.10},
		{Label: "pizza", Confidence: 0.60},
	}}
	inst := NewInstance(m, BackendCPU)

	dets, err := inst.Detect(frame(), 2, 0.20)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, "banana", dets[0].Label)
	assert.Equal(t, "pizza", dets[1].Label)
}

func TestDetect_EmptyFrame(t *testing.T) {
	m := &fakeModel{}
	inst := NewInstance(m, BackendCPU)

	dets, err := inst.Detect(nil, DefaultMaxResults, DefaultScoreThreshold)
	require.NoError(t, err)
	assert.Empty(t, dets)

	dets, err = inst.Detect(image.NewRGBA(image.Rectangle{}), DefaultMaxResults, DefaultScoreThreshold)
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Zero(t, m.calls)
}

func TestDetect_ModelError(t *testing.T) {
	inst := NewInstance(&fakeModel{err: errors.New("bad tensor")}, BackendCPU)

	_, err := inst.Detect(frame(), DefaultMaxResults, DefaultScoreThreshold)
	assert.ErrorContains(t, err, "bad tensor")
}

func TestInstanceClose(t *testing.T) {
	m := &fakeModel{}
	inst := NewInstance(m, BackendCPU)

	require.NoError(t, inst.Close())
	require.NoError(t, inst.Close())
	assert.True(t, m.closed)

	_, err := inst.Detect(frame(), DefaultMaxResults, DefaultScoreThreshold)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_LoadsOnceAndReuses(t *testing.T) {
	load, attempts := loaderFor(&fakeModel{})
	reg := NewRegistry(load, BackendCPU, BackendCPU, logger.NewTestLogger())

	first, err := reg.Get(context.Background())
	require.NoError(t, err)
	second, err := reg.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, *attempts, 1)
	assert.True(t, reg.Loaded())
}

func TestRegistry_FailureIsNotCached(t *testing.T) {
	fail := true
	m := &fakeModel{}
	reg := NewRegistry(func(b Backend) (Model, error) {
		if fail {
			return nil, errors.New("model file missing")
		}
		return m, nil
	}, BackendCPU, "", logger.NewTestLogger())

	_, err := reg.Get(context.Background())
	assert.ErrorIs(t, err, ErrModelLoad)
	assert.False(t, reg.Loaded())

	fail = false
	inst, err := reg.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, inst)
}

func TestRegistry_Close(t *testing.T) {
	m := &fakeModel{}
	load, _ := loaderFor(m)
	reg := NewRegistry(load, BackendCPU, "", logger.NewTestLogger())

	_, err := reg.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, reg.Close())
	assert.True(t, m.closed)

	_, err = reg.Get(context.Background())
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestRegistry_CancelledContext(t *testing.T) {
	load, attempts := loaderFor(&fakeModel{})
	reg := NewRegistry(load, BackendCPU, "", logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *attempts)
}

func TestClassLabel(t *testing.T) {
	assert.Equal(t, "banana", ClassLabel(52))
	assert.Equal(t, "unknown12", ClassLabel(12))
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("cuda")
	require.NoError(t, err)
	assert.Equal(t, BackendCUDA, b)

	_, err = ParseBackend("tpu")
	assert.Error(t, err)
}
