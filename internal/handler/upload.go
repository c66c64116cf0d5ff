package handler

import (
	"io"
	"net/http"
	"strings"

	"purescan/internal/logger"
)

// MaxUploadSize bounds a manually uploaded image (10 MB).
const MaxUploadSize = 10 << 20

// Uploads accepts images for analysis. *service.Manager implements it.
type Uploads interface {
	HandleUpload(image []byte, mimeType string) (string, error)
}

// UploadScanHandler takes a multipart "image" file and queues it for analysis.
// The result arrives later on the viewer websocket under the returned task id.
func UploadScanHandler(uploads Uploads, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			http.Error(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "Image file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Unable to read upload", http.StatusBadRequest)
			return
		}

		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			http.Error(w, "Unsupported file type: "+mimeType, http.StatusUnsupportedMediaType)
			return
		}

		taskID, err := uploads.HandleUpload(data, mimeType)
		if err != nil {
			writeError(w, err, logger)
			return
		}

		logger.Info("Upload %s accepted (%s, %d bytes)", taskID, mimeType, len(data))
		writeJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID}, logger)
	}
}
