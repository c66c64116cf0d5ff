package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"purescan/internal/config"
	"purescan/internal/dto"
	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/repository"
)

const (
	// ScanBufferLimit limits how many scans are buffered before an early flush.
	ScanBufferLimit = 10
	// ScanBufferFlushInterval defines how often (seconds) buffered scans are flushed to disk.
	ScanBufferFlushInterval = 30

	timestampLayout = "2006-01-02_15-04_05.000"
)

// BufferService buffers analysed scans in memory and periodically flushes them to
// disk and the scan repository.
type BufferService struct {
	scansDir      string
	limit         int
	flushInterval time.Duration
	scans         []dto.BufferedScan
	mu            sync.Mutex
	logger        *logger.Logger
	scanRepo      repository.ScanRepository
	clock         clock.Clock
}

// NewBufferService creates a new BufferService. clk may be nil.
func NewBufferService(config *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository, clk clock.Clock) *BufferService {
	if clk == nil {
		clk = clock.New()
	}
	limit := config.ScanBufferLimit
	if limit <= 0 {
		limit = ScanBufferLimit
	}
	interval := config.ScanFlushInterval
	if interval <= 0 {
		interval = ScanBufferFlushInterval
	}
	return &BufferService{
		scansDir:      config.ScanDirectory,
		limit:         limit,
		flushInterval: time.Duration(interval) * time.Second,
		scans:         make([]dto.BufferedScan, 0, limit),
		logger:        logger,
		scanRepo:      scanRepo,
		clock:         clk,
	}
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushScans()
			return nil
		case <-ticker.C:
			s.FlushScans()
		}
	}
}

// AddScan appends a scan and its image to the buffer. A full buffer is flushed first.
func (s *BufferService) AddScan(imageData []byte, mimeType string, scan model.Scan) {
	s.mu.Lock()
	full := len(s.scans) >= s.limit
	s.mu.Unlock()
	if full {
		s.logger.Info("Scan buffer full (%d) - flushing early", s.limit)
		s.FlushScans()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = s.clock.Now()
	}
	s.scans = append(s.scans, dto.BufferedScan{
		Timestamp: scan.CreatedAt.Format(timestampLayout),
		MimeType:  mimeType,
		Scan:      scan,
		Data:      imageData,
	})
	s.logger.Info("Scan buffer size: %d/%d", len(s.scans), s.limit)
}

// Pending reports how many scans wait for the next flush.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}

// FlushScans writes buffered images to disk, records them in the repository and
// resets the buffer. It returns the number of scans saved.
func (s *BufferService) FlushScans() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.scans) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.scansDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, buffered := range s.scans {
		filename := fmt.Sprintf("%s_%s%s", buffered.Timestamp, buffered.Scan.UID, extensionFor(buffered.MimeType))
		fullpath := filepath.Join(s.scansDir, filename)

		if err := os.WriteFile(fullpath, buffered.Data, 0644); err != nil {
			s.logger.Error("Error saving image %s: %v", filename, err)
			continue
		}

		if s.scanRepo != nil {
			scan := buffered.Scan
			scan.ImagePath = filename
			if _, err := s.scanRepo.Insert(&scan); err != nil {
				s.logger.Error("Error saving scan to database %s: %v", filename, err)
				continue
			}
		}

		savedCount++
	}

	s.logger.Info("Flushed %d scans to disk", savedCount)
	s.scans = s.scans[:0]
	return savedCount
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
