// Package camera owns the live camera stream: acquire, explicit playback start,
// latest-frame access and idempotent release.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"purescan/internal/logger"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrNoFrame           = errors.New("camera has no frame")
)

// Facing selects which physical camera to open.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// ParseFacing accepts "environment", "user" or an empty string (environment).
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case "", FacingEnvironment:
		return FacingEnvironment, nil
	case FacingUser:
		return FacingUser, nil
	}
	return "", fmt.Errorf("unknown camera facing %q", s)
}

// Frame is one decoded video frame at native resolution. Never modified once published.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     *image.RGBA
}

func (f Frame) Width() int  { return f.Image.Bounds().Dx() }
func (f Frame) Height() int { return f.Image.Bounds().Dy() }

// Device is an opened camera. Opening does not start playback; Start must be called.
type Device interface {
	Start() error
	// Latest returns the most recent decoded frame, false until the first one arrives.
	Latest() (Frame, bool)
	Close() error
}

// Opener requests access to a camera.
// Errors must wrap ErrPermissionDenied or ErrDeviceUnavailable.
type Opener interface {
	Open(ctx context.Context, facing Facing) (Device, error)
}

// Handle owns one started Device until Release.
type Handle struct {
	id       string
	facing   Facing
	device   Device
	once     sync.Once
	released atomic.Bool
	closeErr error
}

func newHandle(device Device, facing Facing) *Handle {
	return &Handle{
		id:     uuid.NewString(),
		facing: facing,
		device: device,
	}
}

func (h *Handle) ID() string     { return h.id }
func (h *Handle) Facing() Facing { return h.facing }

// Released reports whether Release has been called. A nil handle counts as released.
func (h *Handle) Released() bool {
	return h == nil || h.released.Load()
}

// Frame returns the latest frame, or ErrNoFrame if the stream has not produced one yet
// or the handle is released.
func (h *Handle) Frame() (Frame, error) {
	if h.Released() {
		return Frame{}, fmt.Errorf("%w: handle released", ErrNoFrame)
	}
	frame, ok := h.device.Latest()
	if !ok || frame.Image == nil {
		return Frame{}, ErrNoFrame
	}
	return frame, nil
}

// Release stops the underlying device. Safe to call any number of times and on nil.
// Only the first call can return an error.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	first := false
	h.once.Do(func() {
		first = true
		h.released.Store(true)
		h.closeErr = h.device.Close()
	})
	if !first {
		return nil
	}
	return h.closeErr
}

// FrameSource hands out at most one live Handle at a time.
type FrameSource struct {
	opener  Opener
	logger  *logger.Logger
	mu      sync.Mutex
	current *Handle
}

func NewFrameSource(opener Opener, logger *logger.Logger) *FrameSource {
	return &FrameSource{
		opener: opener,
		logger: logger,
	}
}

// Acquire releases any held handle, opens the camera for facing and starts playback.
func (s *FrameSource) Acquire(ctx context.Context, facing Facing) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if err := s.current.Release(); err != nil {
			s.logger.Warning("Releasing previous camera handle %s: %v", s.current.ID(), err)
		}
		s.current = nil
	}

	device, err := s.opener.Open(ctx, facing)
	if err != nil {
		return nil, classify(err)
	}

	if err := device.Start(); err != nil {
		startErr := fmt.Errorf("%w: start playback: %v", ErrDeviceUnavailable, err)
		return nil, multierr.Append(startErr, device.Close())
	}

	h := newHandle(device, facing)
	s.current = h
	s.logger.Info("Camera %s acquired (handle %s)", facing, h.ID())
	return h, nil
}

// Release releases h and forgets it if it is the current handle. nil is a no-op.
func (s *FrameSource) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	if s.current == h {
		s.current = nil
	}
	s.mu.Unlock()
	return h.Release()
}

// Current returns the live handle, if any.
func (s *FrameSource) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// classify makes sure every open error matches one of the two public sentinels.
func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
