package handler

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"strconv"

	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/service"
	"purescan/internal/service/camera"
	"purescan/internal/service/capture"
	"purescan/internal/service/session"
)

// Session is the camera session the handlers drive. *session.Controller implements it.
type Session interface {
	Open(ctx context.Context, opts session.Options) error
	Retry(ctx context.Context) error
	UseManualUpload() error
	SetLiveDetection(on bool) error
	Capture(ctx context.Context, burn bool) (*model.Artifact, error)
	Close() error
	Status() session.Status
	Frame() (camera.Frame, error)
	Overlay() *image.RGBA
}

type openRequest struct {
	Facing        string `json:"facing"`
	LiveDetection bool   `json:"liveDetection"`
}

type liveRequest struct {
	Enabled bool `json:"enabled"`
}

// OpenSessionHandler attaches the camera. A denied or missing camera is not an HTTP
// error: the returned status carries the permission_error state.
func OpenSessionHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		var req openRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
		}
		facing, err := camera.ParseFacing(req.Facing)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err = s.Open(r.Context(), session.Options{Facing: facing, LiveDetection: req.LiveDetection})
		respondStatus(w, s, err, logger)
	}
}

// RetrySessionHandler re-requests the camera after a permission error.
func RetrySessionHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		respondStatus(w, s, s.Retry(r.Context()), logger)
	}
}

// ManualUploadHandler switches a failed session to the manual upload fallback.
func ManualUploadHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		respondStatus(w, s, s.UseManualUpload(), logger)
	}
}

// LiveDetectionHandler toggles live detection.
func LiveDetectionHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req liveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		respondStatus(w, s, s.SetLiveDetection(req.Enabled), logger)
	}
}

// CloseSessionHandler ends the session from any state.
func CloseSessionHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := s.Close(); err != nil {
			// The session is closed either way; a failed device close is only logged.
			logger.Warning("Closing camera: %v", err)
		}
		writeJSON(w, http.StatusOK, s.Status(), logger)
	}
}

// SessionStatusHandler reports the current session state.
func SessionStatusHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Status(), logger)
	}
}

// CaptureHandler freezes the current frame. With ?burn=true the overlay is burned in;
// with ?raw=true the encoded image is returned instead of its metadata.
func CaptureHandler(s Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		q := r.URL.Query()
		burn, _ := strconv.ParseBool(q.Get("burn"))
		raw, _ := strconv.ParseBool(q.Get("raw"))

		artifact, err := s.Capture(r.Context(), burn)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		if raw {
			w.Header().Set("Content-Type", artifact.MimeType)
			w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
			w.Write(artifact.Bytes)
			return
		}
		writeJSON(w, http.StatusOK, artifact, logger)
	}
}

// FramePreviewHandler serves the live frame, overlay included, as a small JPEG.
func FramePreviewHandler(s Session, width, quality int, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, err := s.Frame()
		if err != nil {
			writeError(w, err, logger)
			return
		}

		data, err := Preview(frame.Image, s.Overlay(), width, quality)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", model.MimeTypeJPEG)
		w.Header().Set("Cache-Control", "no-store")
		w.Write(data)
	}
}

// respondStatus writes the session status, or the error when err is not a camera
// failure the session already absorbed.
func respondStatus(w http.ResponseWriter, s Session, err error, logger *logger.Logger) {
	if err != nil && !isCameraFailure(err) {
		writeError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, s.Status(), logger)
}

func isCameraFailure(err error) bool {
	return errors.Is(err, camera.ErrPermissionDenied) || errors.Is(err, camera.ErrDeviceUnavailable)
}

// statusCode maps service errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, capture.ErrCaptureInProgress):
		return http.StatusConflict
	case errors.Is(err, camera.ErrNoFrame), errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, logger *logger.Logger) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
