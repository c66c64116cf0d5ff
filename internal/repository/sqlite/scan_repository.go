package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"purescan/internal/dto"
	"purescan/internal/model"
)

const scanColumns = `id, uid, food_name, score, grade, analysis, image_path, source, detections, created_at`

// ScanRepository implements repository.ScanRepository for SQLite.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new SQLite scan repository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Insert adds a new scan record to the database.
func (r *ScanRepository) Insert(scan *model.Scan) (int64, error) {
	detections, err := json.Marshal(detectionsOrEmpty(scan.Detections))
	if err != nil {
		return 0, fmt.Errorf("failed to encode detections: %w", err)
	}

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO scans (uid, food_name, score, grade, analysis, image_path, source, detections, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scan.UID, scan.FoodName, scan.Score, string(scan.Grade), scan.Analysis, scan.ImagePath,
		string(scan.Source), string(detections), scan.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert scan: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a scan by its ID. A missing scan is (nil, nil).
func (r *ScanRepository) GetByID(id int64) (*model.Scan, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.getOne(`SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
}

// GetByUID retrieves a scan by its public identifier.
func (r *ScanRepository) GetByUID(uid string) (*model.Scan, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.getOne(`SELECT `+scanColumns+` FROM scans WHERE uid = ?`, uid)
}

func (r *ScanRepository) getOne(query string, arg interface{}) (*model.Scan, error) {
	scan, err := scanRow(r.db.Conn().QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return scan, nil
}

// GetAll retrieves scans based on filter criteria, newest first.
func (r *ScanRepository) GetAll(filter *dto.ScanFilters) ([]model.Scan, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + scanColumns + ` FROM scans` + where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	scans := []model.Scan{}
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

// GetTotalCount returns the total count of scans matching the filter.
func (r *ScanRepository) GetTotalCount(filter *dto.ScanFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM scans`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// GetFoodNames returns a list of all distinct food names.
func (r *ScanRepository) GetFoodNames() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT food_name FROM scans ORDER BY food_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query food names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan food name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes a scan by its ID.
func (r *ScanRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM scans WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	return nil
}

// DeleteAll removes every scan.
func (r *ScanRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM scans`); err != nil {
		return fmt.Errorf("failed to delete scans: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(row rowScanner) (*model.Scan, error) {
	var (
		scan       model.Scan
		grade      string
		source     string
		detections string
	)
	if err := row.Scan(&scan.ID, &scan.UID, &scan.FoodName, &scan.Score, &grade, &scan.Analysis,
		&scan.ImagePath, &source, &detections, &scan.CreatedAt); err != nil {
		return nil, err
	}
	scan.Grade = model.Grade(grade)
	scan.Source = model.ScanSource(source)
	if err := json.Unmarshal([]byte(detections), &scan.Detections); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	return &scan, nil
}

func whereClause(filter *dto.ScanFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var conds []string
	var args []interface{}

	if filter.Food != "" {
		conds = append(conds, "food_name = ?")
		args = append(args, filter.Food)
	}
	if filter.Grade != "" {
		conds = append(conds, "grade = ?")
		args = append(args, string(filter.Grade))
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, string(filter.Source))
	}
	if !filter.DateAfter.IsZero() {
		conds = append(conds, "DATE(created_at) >= DATE(?)")
		args = append(args, filter.DateAfter.Format("2006-01-02"))
	}
	if !filter.DateBefore.IsZero() {
		conds = append(conds, "DATE(created_at) <= DATE(?)")
		args = append(args, filter.DateBefore.Format("2006-01-02"))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func detectionsOrEmpty(d []model.Detection) []model.Detection {
	if d == nil {
		return []model.Detection{}
	}
	return d
}
