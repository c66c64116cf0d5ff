package ai

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"purescan/internal/config"
	"purescan/internal/logger"
	"purescan/internal/model"
)

// SSD MobileNet input geometry.
const (
	inputSize  = 300
	inputScale = 1.0 / 127.5
	inputMean  = 127.5
)

// dnnModel wraps an OpenCV SSD network (TensorFlow frozen graph + pbtxt).
type dnnModel struct {
	net     gocv.Net
	backend Backend
}

// NewDNNLoader returns a LoadFunc reading the network described by config.
func NewDNNLoader(config *config.Config, logger *logger.Logger) LoadFunc {
	return func(backend Backend) (Model, error) {
		m, err := loadDNN(config.ModelPath, config.ModelConfigPath, backend)
		if err != nil {
			return nil, err
		}
		logger.Info("Detection network ready on %s", backend)
		return m, nil
	}
}

func loadDNN(modelPath, configPath string, backend Backend) (*dnnModel, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("model config file: %w", err)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, errors.New("failed to load network")
	}

	netBackend, netTarget, err := netTargets(backend)
	if err != nil {
		net.Close()
		return nil, err
	}
	if err := net.SetPreferableBackend(netBackend); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend %s: %w", backend, err)
	}
	if err := net.SetPreferableTarget(netTarget); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target %s: %w", backend, err)
	}

	m := &dnnModel{net: net, backend: backend}
	if err := m.warmUp(); err != nil {
		net.Close()
		return nil, fmt.Errorf("warm-up on %s: %w", backend, err)
	}
	return m, nil
}

func netTargets(backend Backend) (gocv.NetBackendType, gocv.NetTargetType, error) {
	switch backend {
	case BackendCUDA:
		return gocv.NetBackendCUDA, gocv.NetTargetCUDA, nil
	case BackendOpenCL:
		return gocv.NetBackendDefault, gocv.NetTargetFP16, nil
	case BackendCPU:
		return gocv.NetBackendDefault, gocv.NetTargetCPU, nil
	}
	return 0, 0, fmt.Errorf("unsupported backend %q", backend)
}

// warmUp runs one forward pass on a blank input. Accelerators that are configured
// but unusable fail here (sometimes by panicking inside OpenCV) instead of mid-session.
func (m *dnnModel) warmUp() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forward pass panicked: %v", r)
		}
	}()

	blank := gocv.NewMatWithSize(inputSize, inputSize, gocv.MatTypeCV8UC3)
	defer blank.Close()

	blob := gocv.BlobFromImage(blank, inputScale, image.Pt(inputSize, inputSize),
		gocv.NewScalar(inputMean, inputMean, inputMean, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return errors.New("forward pass returned empty output")
	}
	return nil
}

func (m *dnnModel) Detect(img image.Image, maxResults int, scoreThreshold float64) ([]model.Detection, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return []model.Detection{}, nil
	}

	blob := gocv.BlobFromImage(mat, inputScale, image.Pt(inputSize, inputSize),
		gocv.NewScalar(inputMean, inputMean, inputMean, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	cols := float32(mat.Cols())
	rows := float32(mat.Rows())
	results := make([]model.Detection, 0, maxResults)

	// Each row: [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized.
	detections := output.Reshape(1, output.Total()/7)
	defer detections.Close()
	for i := 0; i < detections.Rows(); i++ {
		confidence := float64(detections.GetFloatAt(i, 2))
		if confidence < scoreThreshold {
			continue
		}
		classID := int(detections.GetFloatAt(i, 1))
		x1 := clamp(int(detections.GetFloatAt(i, 3)*cols), 0, mat.Cols())
		y1 := clamp(int(detections.GetFloatAt(i, 4)*rows), 0, mat.Rows())
		x2 := clamp(int(detections.GetFloatAt(i, 5)*cols), 0, mat.Cols())
		y2 := clamp(int(detections.GetFloatAt(i, 6)*rows), 0, mat.Rows())
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		results = append(results, model.Detection{
			Label:      ClassLabel(classID),
			Confidence: confidence,
			X:          x1,
			Y:          y1,
			Width:      x2 - x1,
			Height:     y2 - y1,
		})
	}
	return results, nil
}

func (m *dnnModel) Close() error {
	return m.net.Close()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
