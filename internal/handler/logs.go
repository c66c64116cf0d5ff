package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"purescan/internal/config"
	"purescan/internal/logger"
)

// ShowLogsHandler serves one level's log file (?level=info|warning|error) as text/plain.
func ShowLogsHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, ok := logFile(r.URL.Query().Get("level"))
		if !ok {
			http.Error(w, "Unknown log level", http.StatusBadRequest)
			return
		}
		serveLogFile(w, r, cfg.LogDirectory, filename)
	}
}

// ClearLogsHandler truncates one level's log file.
func ClearLogsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		filename, ok := logFile(r.URL.Query().Get("level"))
		if !ok {
			http.Error(w, "Unknown log level", http.StatusBadRequest)
			return
		}
		if err := logger.CleanLogs(filename); err != nil {
			http.Error(w, "Unable to clear log", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func logFile(level string) (string, bool) {
	if level == "" {
		level = "info"
	}
	name := level + ".log"
	for _, f := range logger.LogFiles {
		if f == name {
			return name, true
		}
	}
	return "", false
}

// serveLogFile is a helper that sets headers and serves a log file if it exists.
func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, filePath)
}
