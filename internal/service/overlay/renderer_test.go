package overlay

import (
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purescan/internal/model"
)

func opaqueIn(img *image.RGBA, r image.Rectangle) int {
	count := 0
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y).A > 0 {
				count++
			}
		}
	}
	return count
}

func TestRender_PlaceholderWhenEmpty(t *testing.T) {
	surface := NewSurface()
	r := NewRenderer(nil)

	require.NoError(t, r.Render(surface, nil, 320, 240))

	img := surface.Snapshot()
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
	assert.Positive(t, opaqueIn(img, image.Rect(120, 100, 200, 140)))
	assert.Zero(t, opaqueIn(img, image.Rect(0, 0, 40, 40)))
}

func TestRender_DrawsBoxesAndTags(t *testing.T) {
	surface := NewSurface()
	r := NewRenderer(func(string) string { return "Apple" })
	dets := []model.Detection{{Label: "apple", Confidence: 0.876, X: 100, Y: 100, Width: 80, Height: 60}}

	require.NoError(t, r.Render(surface, dets, 320, 240))
	img := surface.Snapshot()

	// left edge of the box
	assert.Positive(t, opaqueIn(img, image.Rect(98, 120, 103, 140)))
	// tag above the top edge
	assert.Positive(t, opaqueIn(img, image.Rect(100, 80, 140, 100)))
	// inside the box stays transparent
	assert.Zero(t, opaqueIn(img, image.Rect(120, 120, 160, 150)))
	// far corner stays transparent
	assert.Zero(t, opaqueIn(img, image.Rect(280, 200, 320, 240)))

	assert.Equal(t, "Apple 88%", r.TagText(dets[0]))
}

func TestRender_ClearsAndResizes(t *testing.T) {
	surface := NewSurface()
	r := NewRenderer(nil)
	dets := []model.Detection{{Label: "apple", Confidence: 0.5, X: 10, Y: 30, Width: 20, Height: 20}}

	require.NoError(t, r.Render(surface, dets, 320, 240))
	first := surface.Snapshot()

	require.NoError(t, r.Render(surface, []model.Detection{{Label: "cake", Confidence: 0.5, X: 200, Y: 150, Width: 20, Height: 20}}, 640, 480))
	second := surface.Snapshot()

	assert.NotSame(t, first, second)
	assert.Equal(t, image.Rect(0, 0, 640, 480), second.Bounds())
	// nothing left over from the first render
	assert.Zero(t, opaqueIn(second, image.Rect(5, 25, 35, 55)))
	// the first snapshot is untouched by the second render
	assert.Equal(t, image.Rect(0, 0, 320, 240), first.Bounds())
}

func TestRender_DoesNotMutateDetections(t *testing.T) {
	dets := []model.Detection{{Label: "apple", Confidence: 0.5, X: 0, Y: 0, Width: 20, Height: 20}}
	before := model.CloneDetections(dets)

	require.NoError(t, NewRenderer(strings.ToUpper).Render(NewSurface(), dets, 100, 100))
	assert.Equal(t, before, dets)
}

func TestRender_InvalidSize(t *testing.T) {
	surface := NewSurface()
	r := NewRenderer(nil)
	require.NoError(t, r.Render(surface, nil, 10, 10))

	assert.Error(t, r.Render(surface, nil, 0, 10))
	assert.Nil(t, surface.Snapshot())
}

func TestSurface(t *testing.T) {
	s := NewSurface()
	w, h := s.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)

	require.NoError(t, NewRenderer(nil).Render(s, nil, 64, 32))
	w, h = s.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)

	s.Clear()
	assert.Nil(t, s.Snapshot())
}
