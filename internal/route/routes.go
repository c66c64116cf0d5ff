package route

import (
	"net/http"
	"os"
	"path/filepath"

	"purescan/internal/config"
	"purescan/internal/handler"
	"purescan/internal/logger"
	"purescan/internal/repository"
)

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers static file serving, the session API, scan history and the
// viewer websocket.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, session handler.Session, uploads handler.Uploads,
	viewers handler.Viewers, scanRepo repository.ScanRepository) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	// Session endpoints
	mux.HandleFunc("/api/session", handler.SessionStatusHandler(session, logger))
	mux.HandleFunc("/api/session/open", handler.OpenSessionHandler(session, logger))
	mux.HandleFunc("/api/session/close", handler.CloseSessionHandler(session, logger))
	mux.HandleFunc("/api/session/retry", handler.RetrySessionHandler(session, logger))
	mux.HandleFunc("/api/session/manual", handler.ManualUploadHandler(session, logger))
	mux.HandleFunc("/api/session/live", handler.LiveDetectionHandler(session, logger))
	mux.HandleFunc("/api/session/capture", handler.CaptureHandler(session, logger))
	mux.HandleFunc("/api/session/frame", handler.FramePreviewHandler(session, cfg.PreviewWidth, cfg.PreviewQuality, logger))

	// Scan endpoints
	mux.HandleFunc("/api/scan/upload", handler.UploadScanHandler(uploads, logger))
	mux.HandleFunc("/api/scans", handler.GetScansHandler(cfg, logger, scanRepo))
	mux.HandleFunc("/api/scans/view", handler.ViewScanHandler(cfg))
	mux.HandleFunc("/api/scans/delete", handler.DeleteScanHandler(cfg, logger, scanRepo))
	mux.HandleFunc("/api/scans/clear", handler.ClearScansHandler(cfg, logger, scanRepo))

	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(viewers, logger))

	// Log endpoints
	mux.HandleFunc("/logs", handler.ShowLogsHandler(cfg))
	mux.HandleFunc("/logs/clear", handler.ClearLogsHandler(logger))

	// Automatic HTML handler mapping for example: /history -> /static/history.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDir))

	return mux
}
