package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"purescan/internal/config"
	"purescan/internal/logger"
	"purescan/internal/service/ai"
	"purescan/internal/service/camera"
	"purescan/internal/service/capture"
	"purescan/internal/service/overlay"
	"purescan/internal/service/session"
	"purescan/internal/service/stabilizer"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("capture: %v", err)
	}
}

func run() error {
	facingFlag := flag.String("facing", "environment", "Camera to open: environment or user")
	out := flag.String("out", "camera-capture.jpg", "Output file")
	burn := flag.Bool("burn", true, "Burn detection boxes into the capture")
	live := flag.Bool("live", true, "Run live detection and wait for a detection before capturing")
	wait := flag.Duration("wait", 10*time.Second, "Maximum time to wait for a detection")
	flag.Parse()

	facing, err := camera.ParseFacing(*facingFlag)
	if err != nil {
		return fmt.Errorf("invalid -facing: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	logs := logger.NewWriterLogger(os.Stderr)

	preferred, err := ai.ParseBackend(cfg.PreferredBackend)
	if err != nil {
		return fmt.Errorf("invalid DETECTOR_BACKEND: %w", err)
	}
	fallback, err := ai.ParseBackend(cfg.FallbackBackend)
	if err != nil {
		return fmt.Errorf("invalid DETECTOR_FALLBACK_BACKEND: %w", err)
	}
	detectors := ai.NewRegistry(ai.NewDNNLoader(cfg, logs), preferred, fallback, logs)
	defer detectors.Close()

	stab := stabilizer.New(stabilizer.Options{SampleInterval: cfg.SampleInterval, GraceWindow: cfg.GraceWindow})
	renderer := overlay.NewRenderer(stab.Vocabulary().Display)
	controller := session.NewController(session.SettingsFromConfig(cfg), session.Deps{
		Source:     camera.NewFrameSource(camera.NewWebcam(cfg, logs), logs),
		Detectors:  detectors,
		Stabilizer: stab,
		Renderer:   renderer,
		Capture:    capture.NewPipeline(capture.NewJPEGEncoder(cfg.JPEGQuality), nil, logs),
		Logger:     logs,
		Listener: session.ListenerFunc(func(e session.Event) {
			if e.Type == session.EventModelError {
				fmt.Printf("⚠️  Detector unavailable: %s\n", e.Error)
			}
		}),
	})
	defer controller.Close()

	fmt.Printf("Opening %s camera...\n", facing)
	if err := controller.Open(ctx, session.Options{Facing: facing, LiveDetection: *live}); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	if *live {
		waitForDetections(ctx, controller, *wait)
	} else {
		waitForFrame(ctx, controller, *wait)
	}

	artifact, err := controller.Capture(ctx, *burn)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(*out, artifact.Bytes, 0644); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}

	fmt.Printf("✅ Saved %dx%d capture to %s\n", artifact.Width, artifact.Height, *out)
	for _, d := range artifact.Detections {
		fmt.Printf("   - %s\n", renderer.TagText(d))
	}
	return nil
}

// waitForDetections polls the session until it shows at least one detection.
func waitForDetections(ctx context.Context, c *session.Controller, limit time.Duration) {
	deadline := time.After(limit)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			fmt.Printf("⚠️  No detection within %s, capturing anyway\n", limit)
			return
		case <-tick.C:
			if status := c.Status(); len(status.Detections) > 0 {
				return
			}
		}
	}
}

// waitForFrame polls until the camera has delivered its first frame.
func waitForFrame(ctx context.Context, c *session.Controller, limit time.Duration) {
	deadline := time.After(limit)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
			if c.Status().FrameReady {
				return
			}
		}
	}
}
