package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"purescan/internal/config"
	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/service/analysis"
)

// UnknownFood names a scan when neither the analysis nor the detector named the item.
const UnknownFood = "Unknown food"

var (
	ErrQueueFull = errors.New("analysis queue full")
	ErrStopped   = errors.New("manager stopped")
)

// ScanSink receives finished scans. storage.BufferService implements it.
type ScanSink interface {
	AddScan(imageData []byte, mimeType string, scan model.Scan)
}

// Publisher pushes messages to viewers. websocket.HubService implements it.
type Publisher interface {
	Publish(msgType string, data interface{})
}

// Manager runs captured and uploaded stills through analysis on a worker pool.
type Manager struct {
	analyzer  analysis.Analyzer
	sink      ScanSink
	publisher Publisher
	label     func(string) string
	logger    *logger.Logger

	processingQueue chan AnalysisTask
	numWorkers      int

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type AnalysisTask struct {
	ID         string
	Image      []byte
	MimeType   string
	Source     model.ScanSource
	Detections []model.Detection
}

// AnalysisResult is published to viewers once a task finishes.
type AnalysisResult struct {
	TaskID string      `json:"taskId"`
	Scan   *model.Scan `json:"scan,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewManager starts the worker pool. label maps detector labels to display names.
func NewManager(analyzer analysis.Analyzer, sink ScanSink, publisher Publisher, label func(string) string, config *config.Config, logger *logger.Logger) *Manager {
	workers := config.AnalysisWorkers
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		analyzer:        analyzer,
		sink:            sink,
		publisher:       publisher,
		label:           label,
		logger:          logger,
		numWorkers:      workers,
		processingQueue: make(chan AnalysisTask, 16),
		ctx:             ctx,
		cancel:          cancel,
	}

	for i := 0; i < manager.numWorkers; i++ {
		manager.wg.Add(1)
		go manager.processingWorker(i)
	}

	manager.logger.Info("🎬 Manager started with %d analysis worker(s)", manager.numWorkers)
	return manager
}

// HandleCapture queues a camera capture for analysis.
func (m *Manager) HandleCapture(artifact *model.Artifact) {
	_, err := m.enqueue(AnalysisTask{
		ID:         artifact.ID,
		Image:      artifact.Bytes,
		MimeType:   artifact.MimeType,
		Source:     model.ScanSourceCamera,
		Detections: model.CloneDetections(artifact.Detections),
	})
	if err != nil {
		m.logger.Warning("⚠️  Capture %s not analysed: %v", artifact.ID, err)
	}
}

// HandleUpload queues a manually uploaded image and returns its task id.
func (m *Manager) HandleUpload(image []byte, mimeType string) (string, error) {
	return m.enqueue(AnalysisTask{
		ID:       uuid.NewString(),
		Image:    image,
		MimeType: mimeType,
		Source:   model.ScanSourceUpload,
	})
}

func (m *Manager) enqueue(task AnalysisTask) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return "", ErrStopped
	}

	select {
	case m.processingQueue <- task:
		m.logger.Info("📷 %s image %s queued for analysis", task.Source, task.ID)
		return task.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// processingWorker analyses queued images until the queue is closed.
func (m *Manager) processingWorker(workerID int) {
	defer m.wg.Done()

	m.logger.Info("🔧 Analysis worker %d started", workerID)

	for task := range m.processingQueue {
		m.process(task)
	}

	m.logger.Info("🔧 Analysis worker %d stopped", workerID)
}

func (m *Manager) process(task AnalysisTask) {
	assessment, err := m.analyzer.Analyze(m.ctx, task.Image, task.MimeType)
	if err != nil {
		m.logger.Error("Analysis of %s failed: %v", task.ID, err)
		m.publish(AnalysisResult{TaskID: task.ID, Error: err.Error()})
		return
	}

	scan := model.Scan{
		UID:        task.ID,
		FoodName:   m.foodName(assessment, task.Detections),
		Score:      assessment.Score,
		Grade:      assessment.Grade,
		Analysis:   assessment.Text,
		Source:     task.Source,
		Detections: task.Detections,
	}
	if m.sink != nil {
		m.sink.AddScan(task.Image, task.MimeType, scan)
	}

	m.logger.Info("✅ %s scored %d (%s)", scan.FoodName, scan.Score, scan.Grade)
	m.publish(AnalysisResult{TaskID: task.ID, Scan: &scan})
}

func (m *Manager) foodName(assessment *model.Assessment, detections []model.Detection) string {
	if assessment.FoodName != "" {
		return assessment.FoodName
	}
	if len(detections) > 0 {
		if m.label != nil {
			return m.label(detections[0].Label)
		}
		return detections[0].Label
	}
	return UnknownFood
}

func (m *Manager) publish(result AnalysisResult) {
	if m.publisher != nil {
		m.publisher.Publish("analysis", result)
	}
}

// Stop rejects new work, cancels running analyses and waits for the workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.processingQueue)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("🛑 All analysis workers stopped")
}
