package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	"purescan/internal/config"
	"purescan/internal/logger"
)

// readBackoff is how long the read loop waits after an empty read.
const readBackoff = 10 * time.Millisecond

// Webcam opens local V4L2/AVFoundation devices through OpenCV.
type Webcam struct {
	devices map[Facing]int
	width   int
	height  int
	logger  *logger.Logger
}

func NewWebcam(config *config.Config, logger *logger.Logger) *Webcam {
	return &Webcam{
		devices: map[Facing]int{
			FacingEnvironment: config.EnvironmentDevice,
			FacingUser:        config.UserDevice,
		},
		width:  config.FrameWidth,
		height: config.FrameHeight,
		logger: logger,
	}
}

// Open maps facing to a device index and opens it. Frames are not read until Start.
func (w *Webcam) Open(ctx context.Context, facing Facing) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	id, ok := w.devices[facing]
	if !ok {
		return nil, fmt.Errorf("%w: no device configured for %q", ErrDeviceUnavailable, facing)
	}

	if err := checkDeviceAccess(id); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrDeviceUnavailable, id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, id)
	}

	if w.width > 0 && w.height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(w.width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(w.height))
	}

	w.logger.Info("Opened camera device %d for %s", id, facing)
	return &webcamDevice{
		id:      id,
		vc:      vc,
		logger:  w.logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// checkDeviceAccess turns an inaccessible /dev/videoN into ErrPermissionDenied, which
// OpenCV itself reports only as a failed open.
func checkDeviceAccess(id int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	path := fmt.Sprintf("/dev/video%d", id)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s does not exist", ErrDeviceUnavailable, path)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

type webcamDevice struct {
	id     int
	vc     *gocv.VideoCapture
	logger *logger.Logger

	mu     sync.RWMutex
	latest Frame
	has    bool
	seq    uint64

	started   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

func (d *webcamDevice) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}
	go d.readLoop()
	return nil
}

func (d *webcamDevice) Latest() (Frame, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.has
}

func (d *webcamDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		if d.started.Load() {
			<-d.stopped
		}
		err = d.vc.Close()
		d.logger.Info("Closed camera device %d", d.id)
	})
	return err
}

func (d *webcamDevice) readLoop() {
	defer close(d.stopped)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-d.done:
			return
		default:
		}

		if ok := d.vc.Read(&mat); !ok || mat.Empty() {
			time.Sleep(readBackoff)
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			d.logger.Warning("Camera %d: failed to convert frame: %v", d.id, err)
			continue
		}

		d.mu.Lock()
		d.seq++
		d.latest = Frame{Seq: d.seq, Timestamp: time.Now(), Image: toRGBA(img)}
		d.has = true
		d.mu.Unlock()
	}
}

// toRGBA returns img itself when it is already *image.RGBA at origin, otherwise a copy.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
