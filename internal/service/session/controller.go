// Package session drives one open-to-close camera session: camera attach, background
// detector load, the sampling loop and captures.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"purescan/internal/config"
	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/service/ai"
	"purescan/internal/service/camera"
	"purescan/internal/service/capture"
	"purescan/internal/service/overlay"
	"purescan/internal/service/stabilizer"
	"purescan/internal/service/ticker"
)

// tickErrorEvery limits how often sampling errors are logged and broadcast.
const tickErrorEvery = 15 * time.Second

// Settings holds the tunables a Controller reads from config.
type Settings struct {
	TickInterval   time.Duration
	MaxResults     int
	ScoreThreshold float64
}

func SettingsFromConfig(config *config.Config) Settings {
	return Settings{
		TickInterval:   config.TickInterval,
		MaxResults:     config.MaxResults,
		ScoreThreshold: config.ScoreThreshold,
	}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Source     *camera.FrameSource
	Detectors  ai.Provider
	Stabilizer *stabilizer.Stabilizer
	Renderer   *overlay.Renderer
	Capture    *capture.Pipeline
	Clock      clock.Clock
	Logger     *logger.Logger
	Listener   Listener
	// OnCapture receives every artifact produced by Capture.
	OnCapture func(*model.Artifact)
}

// Options are the caller's choices for Open.
type Options struct {
	Facing        camera.Facing `json:"facing"`
	LiveDetection bool          `json:"liveDetection"`
}

// Status is a point-in-time view of the session.
type Status struct {
	State         State             `json:"state"`
	Facing        camera.Facing     `json:"facing,omitempty"`
	LiveDetection bool              `json:"liveDetection"`
	Detector      DetectorStatus    `json:"detector"`
	Backend       string            `json:"backend,omitempty"`
	Detections    []model.Detection `json:"detections"`
	Capturing     bool              `json:"capturing"`
	FrameReady    bool              `json:"frameReady"`
}

// Controller owns one camera session and its detection loop.
type Controller struct {
	settings  Settings
	source    *camera.FrameSource
	detectors ai.Provider
	stab      *stabilizer.Stabilizer
	renderer  *overlay.Renderer
	surface   *overlay.Surface
	pipeline  *capture.Pipeline
	clock     clock.Clock
	logger    *logger.Logger
	listener  Listener
	onCapture func(*model.Artifact)

	mu             sync.Mutex
	state          State
	facing         camera.Facing
	live           bool
	attempt        uint64
	handle         *camera.Handle
	detector       *ai.Instance
	detectorStatus DetectorStatus
	loop           *ticker.Task
	detections     []model.Detection
	lastErrAt      time.Time
	wg             sync.WaitGroup
}

// NewController fills unset settings and deps with defaults.
func NewController(settings Settings, deps Deps) *Controller {
	if settings.TickInterval <= 0 {
		settings.TickInterval = 100 * time.Millisecond
	}
	if settings.MaxResults <= 0 {
		settings.MaxResults = ai.DefaultMaxResults
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Stabilizer == nil {
		deps.Stabilizer = stabilizer.New(stabilizer.Options{Clock: deps.Clock})
	}
	if deps.Renderer == nil {
		deps.Renderer = overlay.NewRenderer(deps.Stabilizer.Vocabulary().Display)
	}
	if deps.Capture == nil {
		deps.Capture = capture.NewPipeline(nil, deps.Clock, deps.Logger)
	}
	return &Controller{
		settings:       settings,
		source:         deps.Source,
		detectors:      deps.Detectors,
		stab:           deps.Stabilizer,
		renderer:       deps.Renderer,
		surface:        overlay.NewSurface(),
		pipeline:       deps.Capture,
		clock:          deps.Clock,
		logger:         deps.Logger,
		listener:       deps.Listener,
		onCapture:      deps.OnCapture,
		state:          StateClosed,
		detectorStatus: DetectorIdle,
	}
}

// Open attaches the camera. It only succeeds from Closed. A camera failure moves the
// session to PermissionError and is returned; the session then waits for Retry or
// UseManualUpload.
func (c *Controller) Open(ctx context.Context, opts Options) error {
	if opts.Facing == "" {
		opts.Facing = camera.FacingEnvironment
	}

	c.mu.Lock()
	if c.state != StateClosed {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: open from %s", ErrInvalidState, state)
	}
	c.facing = opts.Facing
	c.live = opts.LiveDetection
	c.setStateLocked(StateOpening)
	attempt := c.beginAttemptLocked()
	c.mu.Unlock()

	return c.attach(ctx, attempt)
}

// Retry re-requests the camera after a failure. It is never done automatically.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StatePermissionError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidState, state)
	}
	c.setStateLocked(StateOpening)
	attempt := c.beginAttemptLocked()
	c.mu.Unlock()

	return c.attach(ctx, attempt)
}

// UseManualUpload abandons the camera for this session. Images then arrive through
// the upload path only; Close is the only way out.
func (c *Controller) UseManualUpload() error {
	c.mu.Lock()
	if c.state != StatePermissionError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: manual upload from %s", ErrInvalidState, state)
	}
	handle := c.teardownLocked()
	c.setStateLocked(StateManualUpload)
	c.mu.Unlock()

	return c.source.Release(handle)
}

// SetLiveDetection toggles the sampling loop. The preference is remembered while the
// camera is still opening.
func (c *Controller) SetLiveDetection(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateManualUpload, StateClosed:
		return fmt.Errorf("%w: live detection in %s", ErrInvalidState, c.state)
	}
	if c.live == on {
		return nil
	}
	c.live = on

	switch {
	case on && c.state == StateReady:
		c.startDetectionLocked()
	case !on && c.state == StateSampling:
		c.stopLoopLocked()
		c.setStateLocked(StateReady)
	}
	return nil
}

// Capture freezes the current frame, with the overlay burned in when burn is set,
// and hands the artifact to the capture callback.
func (c *Controller) Capture(ctx context.Context, burn bool) (*model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != StateReady && c.state != StateSampling {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: capture in %s", ErrInvalidState, state)
	}
	handle := c.handle
	detections := model.CloneDetections(c.detections)
	c.mu.Unlock()

	artifact, err := c.pipeline.Capture(handle, c.surface, burn)
	if err != nil {
		return nil, err
	}
	if artifact.Burned {
		artifact.Detections = detections
	}

	c.mu.Lock()
	c.emitLocked(Event{Type: EventCaptured, Capture: artifact.ID})
	c.mu.Unlock()

	if c.onCapture != nil {
		c.onCapture(artifact)
	}
	return artifact, nil
}

// Close ends the session from any state. The detector stays loaded for the next one.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.beginAttemptLocked()
	handle := c.teardownLocked()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	return c.source.Release(handle)
}

// Wait blocks until background detector loads have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := Status{
		State:         c.state,
		Facing:        c.facing,
		LiveDetection: c.live,
		Detector:      c.detectorStatus,
		Detections:    model.CloneDetections(c.detections),
		Capturing:     c.pipeline.InFlight(),
	}
	if c.detector != nil {
		status.Backend = string(c.detector.Backend())
	}
	if c.handle != nil {
		if _, err := c.handle.Frame(); err == nil {
			status.FrameReady = true
		}
	}
	if status.Detections == nil {
		status.Detections = []model.Detection{}
	}
	return status
}

// Frame returns the latest camera frame while a camera is attached.
func (c *Controller) Frame() (camera.Frame, error) {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle == nil {
		return camera.Frame{}, camera.ErrNoFrame
	}
	return handle.Frame()
}

// Overlay returns the last rendered overlay, nil when none is shown.
func (c *Controller) Overlay() *image.RGBA {
	return c.surface.Snapshot()
}

// attach acquires the camera for the given attempt. A Close that lands while the
// camera is being acquired wins: the fresh handle is released straight away.
func (c *Controller) attach(ctx context.Context, attempt uint64) error {
	c.mu.Lock()
	facing := c.facing
	c.mu.Unlock()

	handle, err := c.source.Acquire(ctx, facing)

	c.mu.Lock()
	if c.attempt != attempt || c.state != StateOpening {
		c.mu.Unlock()
		if handle != nil {
			if relErr := c.source.Release(handle); relErr != nil {
				c.logger.Warning("Releasing abandoned camera handle: %v", relErr)
			}
		}
		return fmt.Errorf("%w: session changed while opening", ErrInvalidState)
	}
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Warning("Camera %s unavailable: %v", facing, err)
		c.state = StatePermissionError
		c.emitLocked(c.permissionEvent(err))
		return err
	}

	c.handle = handle
	c.setStateLocked(StateReady)
	if c.live {
		c.startDetectionLocked()
	}
	return nil
}

func (c *Controller) permissionEvent(err error) Event {
	reason := ReasonDeviceUnavailable
	if errors.Is(err, camera.ErrPermissionDenied) {
		reason = ReasonPermissionDenied
	}
	return Event{
		Type:   EventStateChanged,
		Reason: reason,
		Error:  err.Error(),
	}
}

// startDetectionLocked starts sampling if the detector is loaded, or starts loading it.
// The camera stays usable as a plain viewfinder while the load runs.
func (c *Controller) startDetectionLocked() {
	if c.detector != nil {
		c.startLoopLocked()
		return
	}
	if c.detectorStatus == DetectorLoading {
		return
	}
	if c.detectors == nil {
		c.detectorStatus = DetectorFailed
		c.emitLocked(Event{Type: EventModelError, Error: "no detector configured"})
		return
	}

	c.detectorStatus = DetectorLoading
	c.emitLocked(Event{Type: EventModelLoading})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		instance, err := c.detectors.Get(context.Background())

		c.mu.Lock()
		defer c.mu.Unlock()

		if err != nil {
			c.logger.Error("Detector unavailable, live detection disabled: %v", err)
			c.detectorStatus = DetectorFailed
			c.emitLocked(Event{Type: EventModelError, Error: err.Error()})
			return
		}

		c.detector = instance
		c.detectorStatus = DetectorReady
		c.emitLocked(Event{Type: EventModelLoaded, Backend: string(instance.Backend())})
		if c.live && c.state == StateReady {
			c.startLoopLocked()
		}
	}()
}

func (c *Controller) startLoopLocked() {
	if c.loop != nil {
		return
	}
	c.stab.Reset()
	c.loop = ticker.New(c.clock, c.settings.TickInterval, c.tick)
	if err := c.loop.Start(context.Background()); err != nil {
		c.logger.Error("Starting sampling loop: %v", err)
		c.loop = nil
		return
	}
	c.setStateLocked(StateSampling)
}

// stopLoopLocked cancels the loop and wipes everything it produced. A tick still in
// flight finds its context cancelled and drops its result.
func (c *Controller) stopLoopLocked() {
	if c.loop != nil {
		c.loop.Stop()
		c.loop = nil
	}
	c.stab.Reset()
	c.surface.Clear()
	c.detections = nil
}

// teardownLocked stops everything and returns the camera handle for release.
func (c *Controller) teardownLocked() *camera.Handle {
	c.stopLoopLocked()
	handle := c.handle
	c.handle = nil
	return handle
}

// beginAttemptLocked invalidates any attach still in progress.
func (c *Controller) beginAttemptLocked() uint64 {
	c.attempt++
	return c.attempt
}

// tick is one sampling loop iteration: sample (throttled by the stabilizer), then
// render the held set.
func (c *Controller) tick(ctx context.Context) {
	c.mu.Lock()
	handle := c.handle
	detector := c.detector
	c.mu.Unlock()

	if handle == nil || detector == nil {
		return
	}
	frame, err := handle.Frame()
	if err != nil {
		// stream not producing yet
		return
	}

	held, err := c.stab.Tick(ctx, func(ctx context.Context) ([]model.Detection, error) {
		return detector.Detect(frame.Image, c.settings.MaxResults, c.settings.ScoreThreshold)
	})
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil || c.state != StateSampling {
		return
	}
	if err != nil {
		c.reportTickErrorLocked(err)
	}

	c.detections = held
	if renderErr := c.renderer.Render(c.surface, held, frame.Width(), frame.Height()); renderErr != nil {
		c.reportTickErrorLocked(renderErr)
	}
}

func (c *Controller) reportTickErrorLocked(err error) {
	now := c.clock.Now()
	if now.Sub(c.lastErrAt) <= tickErrorEvery {
		return
	}
	c.lastErrAt = now
	c.logger.Error("Detection tick failed: %v", err)
	c.emitLocked(Event{Type: EventTickError, Error: err.Error()})
}

func (c *Controller) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.logger.Info("Session %s -> %s", c.state, state)
	c.state = state
	c.emitLocked(Event{Type: EventStateChanged})
}

func (c *Controller) emitLocked(e Event) {
	if c.listener == nil {
		return
	}
	if e.State == "" {
		e.State = c.state
	}
	e.Detector = c.detectorStatus
	e.At = c.clock.Now()
	c.listener.OnSessionEvent(e)
}
