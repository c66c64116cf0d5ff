package capture

import (
	"bytes"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/service/camera"
	"purescan/internal/service/overlay"
)

// rawEncoder returns the pixel buffer itself so tests can compare pixels exactly.
type rawEncoder struct {
	block   chan struct{}
	entered chan struct{}
}

func (e *rawEncoder) Encode(img *image.RGBA) ([]byte, error) {
	if e.entered != nil {
		close(e.entered)
	}
	if e.block != nil {
		<-e.block
	}
	out := make([]byte, len(img.Pix))
	copy(out, img.Pix)
	return out, nil
}

func (e *rawEncoder) MimeType() string { return "application/octet-stream" }

type staticFrame struct {
	frame camera.Frame
	err   error
}

func (s staticFrame) Frame() (camera.Frame, error) { return s.frame, s.err }

func testFrame(w, h int) camera.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	return camera.Frame{Seq: 1, Timestamp: time.Unix(0, 0), Image: img}
}

func renderedSurface(t *testing.T, w, h int) *overlay.Surface {
	t.Helper()
	s := overlay.NewSurface()
	dets := []model.Detection{{Label: "apple", Confidence: 0.9, X: 20, Y: 30, Width: 60, Height: 40}}
	require.NoError(t, overlay.NewRenderer(nil).Render(s, dets, w, h))
	return s
}

func newTestPipeline(enc Encoder) *Pipeline {
	return NewPipeline(enc, clock.NewMock(), logger.NewTestLogger())
}

func TestCapture_CleanMatchesRawFrame(t *testing.T) {
	frame := testFrame(160, 120)
	p := newTestPipeline(&rawEncoder{})

	art, err := p.Capture(staticFrame{frame: frame}, renderedSurface(t, 160, 120), false)
	require.NoError(t, err)

	assert.Equal(t, frame.Image.Pix, art.Bytes)
	assert.False(t, art.Burned)
	assert.Equal(t, 160, art.Width)
	assert.Equal(t, 120, art.Height)
	assert.Equal(t, model.CaptureFilename, art.Filename)
	assert.NotEmpty(t, art.ID)
}

func TestCapture_BurnedDiffersInOverlayRegion(t *testing.T) {
	frame := testFrame(160, 120)
	p := newTestPipeline(&rawEncoder{})

	art, err := p.Capture(staticFrame{frame: frame}, renderedSurface(t, 160, 120), true)
	require.NoError(t, err)
	assert.True(t, art.Burned)

	burned := &image.RGBA{Pix: art.Bytes, Stride: 160 * 4, Rect: image.Rect(0, 0, 160, 120)}
	// left edge of the drawn box
	assert.NotEqual(t, frame.Image.RGBAAt(20, 50), burned.RGBAAt(20, 50))
	// untouched corner
	assert.Equal(t, frame.Image.RGBAAt(150, 110), burned.RGBAAt(150, 110))
	// the live frame itself was not drawn on
	assert.Equal(t, testFrame(160, 120).Image.Pix, frame.Image.Pix)
}

func TestCapture_ScalesMismatchedOverlay(t *testing.T) {
	frame := testFrame(160, 120)
	p := newTestPipeline(&rawEncoder{})

	art, err := p.Capture(staticFrame{frame: frame}, renderedSurface(t, 80, 60), true)
	require.NoError(t, err)
	assert.Equal(t, 160, art.Width)
	assert.Len(t, art.Bytes, 160*120*4)
	assert.NotEqual(t, frame.Image.Pix, art.Bytes)
}

func TestCapture_BurnWithoutOverlayIsClean(t *testing.T) {
	frame := testFrame(32, 32)
	p := newTestPipeline(&rawEncoder{})

	art, err := p.Capture(staticFrame{frame: frame}, overlay.NewSurface(), true)
	require.NoError(t, err)
	assert.False(t, art.Burned)
	assert.Equal(t, frame.Image.Pix, art.Bytes)

	art, err = p.Capture(staticFrame{frame: frame}, nil, true)
	require.NoError(t, err)
	assert.False(t, art.Burned)
}

func TestCapture_NoFrame(t *testing.T) {
	p := newTestPipeline(&rawEncoder{})

	_, err := p.Capture(staticFrame{err: camera.ErrNoFrame}, nil, false)
	assert.ErrorIs(t, err, ErrCapture)
	assert.ErrorIs(t, err, camera.ErrNoFrame)

	_, err = p.Capture(nil, nil, false)
	assert.ErrorIs(t, err, ErrCapture)

	_, err = p.Capture(staticFrame{frame: camera.Frame{}}, nil, false)
	assert.ErrorIs(t, err, ErrCapture)
	assert.False(t, p.InFlight())
}

func TestCapture_SingleInFlight(t *testing.T) {
	enc := &rawEncoder{block: make(chan struct{}), entered: make(chan struct{})}
	p := newTestPipeline(enc)
	src := staticFrame{frame: testFrame(16, 16)}

	var wg sync.WaitGroup
	var first *model.Artifact
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = p.Capture(src, nil, false)
	}()

	<-enc.entered
	assert.True(t, p.InFlight())
	second, err := p.Capture(src, nil, false)
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrCaptureInProgress)

	close(enc.block)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.NotNil(t, first)
	assert.False(t, p.InFlight())
}

func TestJPEGEncoder_Deterministic(t *testing.T) {
	frame := testFrame(64, 48)
	enc := NewJPEGEncoder(DefaultQuality)

	want, err := enc.Encode(frame.Image)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(want, []byte{0xFF, 0xD8}))

	art, err := NewPipeline(enc, clock.NewMock(), logger.NewTestLogger()).Capture(staticFrame{frame: frame}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, want, art.Bytes)
	assert.Equal(t, model.MimeTypeJPEG, art.MimeType)
}
