// Package capture freezes the live frame, optionally with the overlay burned in,
// into an encoded still.
package capture

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/service/camera"
	"purescan/internal/service/overlay"
)

var (
	ErrCapture           = errors.New("capture failed")
	ErrCaptureInProgress = errors.New("capture already in progress")
)

// maxPixels bounds the off-screen buffer (8K UHD).
const maxPixels = 7680 * 4320

// FrameReader yields the current live frame. *camera.Handle implements it.
type FrameReader interface {
	Frame() (camera.Frame, error)
}

// Encoder turns the composited buffer into file bytes.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
	MimeType() string
}

type Pipeline struct {
	encoder  Encoder
	clock    clock.Clock
	logger   *logger.Logger
	inFlight atomic.Bool
}

func NewPipeline(encoder Encoder, clk clock.Clock, logger *logger.Logger) *Pipeline {
	if encoder == nil {
		encoder = NewJPEGEncoder(DefaultQuality)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Pipeline{
		encoder: encoder,
		clock:   clk,
		logger:  logger,
	}
}

// Capture draws the current frame at native resolution into a fresh buffer, composites
// the overlay on top when burn is set and surface holds one, and encodes the result.
// Only one capture runs at a time; a concurrent call fails with ErrCaptureInProgress.
func (p *Pipeline) Capture(src FrameReader, surface *overlay.Surface, burn bool) (*model.Artifact, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCaptureInProgress
	}
	defer p.inFlight.Store(false)

	if src == nil {
		return nil, fmt.Errorf("%w: no frame source", ErrCapture)
	}
	frame, err := src.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	buf, err := newBuffer(frame.Image)
	if err != nil {
		return nil, err
	}

	burned := false
	if burn && surface != nil {
		if ov := surface.Snapshot(); ov != nil {
			composite(buf, ov)
			burned = true
		}
	}

	data, err := p.encoder.Encode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrCapture, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder returned no data", ErrCapture)
	}

	b := buf.Bounds()
	artifact := &model.Artifact{
		ID:        uuid.NewString(),
		Bytes:     data,
		Filename:  model.CaptureFilename,
		MimeType:  p.encoder.MimeType(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Burned:    burned,
		CreatedAt: p.clock.Now(),
	}
	p.logger.Info("Captured %dx%d still %s (%d bytes, overlay=%t)", artifact.Width, artifact.Height, artifact.ID, len(data), burned)
	return artifact, nil
}

// InFlight reports whether a capture is currently resolving.
func (p *Pipeline) InFlight() bool {
	return p.inFlight.Load()
}

func newBuffer(src *image.RGBA) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: frame has no image", ErrCapture)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrCapture)
	}
	if b.Dx()*b.Dy() > maxPixels {
		return nil, fmt.Errorf("%w: frame %dx%d exceeds buffer limit", ErrCapture, b.Dx(), b.Dy())
	}

	buf := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(buf, buf.Bounds(), src, b.Min, draw.Src)
	return buf, nil
}

// composite alpha-blends ov over dst, scaling it when the camera changed resolution
// after the overlay was rendered.
func composite(dst, ov *image.RGBA) {
	if ov.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), ov, ov.Bounds().Min, draw.Over)
		return
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), ov, ov.Bounds(), draw.Over, nil)
}
