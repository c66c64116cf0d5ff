package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"purescan/internal/config"
	"purescan/internal/logger"
	"purescan/internal/repository/sqlite"
	"purescan/internal/route"
	"purescan/internal/service"
	"purescan/internal/service/ai"
	"purescan/internal/service/analysis"
	"purescan/internal/service/camera"
	"purescan/internal/service/capture"
	"purescan/internal/service/overlay"
	"purescan/internal/service/session"
	"purescan/internal/service/stabilizer"
	"purescan/internal/service/storage"
	"purescan/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	detectors     *ai.Registry
	controller    *session.Controller
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	manager       *service.Manager
	server        *http.Server
}

// NewApp wires every component from cfg. Nothing runs until Run.
func NewApp(cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	scanRepo := sqlite.NewScanRepository(db)

	preferred, err := ai.ParseBackend(cfg.PreferredBackend)
	if err != nil {
		db.Close()
		return nil, err
	}
	fallback, err := ai.ParseBackend(cfg.FallbackBackend)
	if err != nil {
		db.Close()
		return nil, err
	}
	detectors := ai.NewRegistry(ai.NewDNNLoader(cfg, log), preferred, fallback, log)

	stab := stabilizer.New(stabilizer.Options{
		SampleInterval: cfg.SampleInterval,
		GraceWindow:    cfg.GraceWindow,
	})
	label := stab.Vocabulary().Display

	hub := websocket.NewHubService(log)
	buffer := storage.NewBufferService(cfg, log, scanRepo, nil)
	mng := service.NewManager(analysis.New(cfg, log), buffer, hub, label, cfg, log)

	controller := session.NewController(session.SettingsFromConfig(cfg), session.Deps{
		Source:     camera.NewFrameSource(camera.NewWebcam(cfg, log), log),
		Detectors:  detectors,
		Stabilizer: stab,
		Renderer:   overlay.NewRenderer(label),
		Capture:    capture.NewPipeline(capture.NewJPEGEncoder(cfg.JPEGQuality), nil, log),
		Logger:     log,
		Listener:   hub,
		OnCapture:  mng.HandleCapture,
	})

	router := route.SetupRoutes(cfg, log, controller, mng, hub, scanRepo)

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		detectors:     detectors,
		controller:    controller,
		bufferService: buffer,
		hubService:    hub,
		manager:       mng,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is done or the server fails, then shuts everything down in
// dependency order: HTTP, camera session, analysis workers, scan buffer, viewers.
func (a *App) Run(ctx context.Context) error {
	bufferCtx, stopBuffer := context.WithCancel(context.Background())
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopBuffer()
	defer stopHub()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hubService.Run(hubCtx) })
	g.Go(func() error { return a.bufferService.Run(bufferCtx) })

	g.Go(func() error {
		fmt.Printf("🚀 PureScan Server\n")
		fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
		fmt.Printf("📁 Scans: %s\n", a.config.ScanDirectory)
		fmt.Printf("🤖 AI Model: %s (%s, fallback %s)\n", a.config.ModelPath, a.config.PreferredBackend, a.config.FallbackBackend)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("🛑 Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := a.server.Shutdown(shutdownCtx)

		err = multierr.Append(err, a.controller.Close())
		a.controller.Wait()
		a.manager.Stop()
		stopBuffer()
		stopHub()
		return err
	})

	return multierr.Append(g.Wait(), a.close())
}

func (a *App) close() error {
	return multierr.Combine(
		a.detectors.Close(),
		a.db.Close(),
	)
}
