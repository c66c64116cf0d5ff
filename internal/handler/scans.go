package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"purescan/internal/config"
	"purescan/internal/dto"
	"purescan/internal/logger"
	"purescan/internal/model"
	"purescan/internal/repository"
)

// GetScansHandler returns a filtered, paginated page of the scan history.
func GetScansHandler(cfg *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.ScanFilters{
			Food:       q.Get("food"),
			Grade:      model.Grade(q.Get("grade")),
			Source:     model.ScanSource(q.Get("source")),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		scans, err := scanRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying scans from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := scanRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting scans: %v", err)
			totalCount = len(scans)
		}

		foods, err := scanRepo.GetFoodNames()
		if err != nil {
			logger.Error("Error listing food names: %v", err)
			foods = []string{}
		}

		infos := make([]dto.ScanInfo, 0, len(scans))
		for _, scan := range scans {
			objects := make([]string, 0, len(scan.Detections))
			for _, det := range scan.Detections {
				objects = append(objects, det.Label)
			}

			local := scan.CreatedAt.Local()
			infos = append(infos, dto.ScanInfo{
				ID:        scan.ID,
				UID:       scan.UID,
				FoodName:  scan.FoodName,
				Score:     scan.Score,
				Grade:     scan.Grade,
				Analysis:  scan.Analysis,
				Image:     scan.ImagePath,
				Source:    scan.Source,
				Date:      local,
				TimeOfDay: local,
				Objects:   objects,
			})
		}

		data := dto.ScansData{
			Scans:       infos,
			Foods:       foods,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// DeleteScanHandler removes a scan and its image.
func DeleteScanHandler(cfg *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Scan id required", http.StatusBadRequest)
			return
		}

		scan, err := scanRepo.GetByID(id)
		if err != nil {
			logger.Error("Error loading scan %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if scan == nil {
			http.NotFound(w, r)
			return
		}

		filePath := filepath.Join(cfg.ScanDirectory, filepath.Base(scan.ImagePath))
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file %s: %v", filePath, err)
		}

		if err := scanRepo.Delete(id); err != nil {
			logger.Error("Failed to delete from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Deleted scan: %d", id)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "deleted", "id": id})
	}
}

// ClearScansHandler deletes every stored image and clears the history.
func ClearScansHandler(cfg *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := os.ReadDir(cfg.ScanDirectory)
		if err != nil && !os.IsNotExist(err) {
			logger.Error("Error reading scans directory: %v", err)
			http.Error(w, "Unable to read scans directory", http.StatusInternalServerError)
			return
		}

		for _, file := range files {
			if !file.IsDir() {
				filePath := filepath.Join(cfg.ScanDirectory, file.Name())
				if err := os.Remove(filePath); err != nil {
					logger.Error("Error deleting file %s: %v", file.Name(), err)
				}
			}
		}

		if err := scanRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing database: %v", err)
		}

		logger.Info("All scans cleared from directory: %s", cfg.ScanDirectory)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ViewScanHandler serves a single stored image named by the "image" query parameter.
func ViewScanHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		image := r.URL.Query().Get("image")
		if image == "" {
			http.Error(w, "Image parameter is required", http.StatusBadRequest)
			return
		}
		filePath := filepath.Join(cfg.ScanDirectory, filepath.Base(image))
		http.ServeFile(w, r, filePath)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
