package repository

import (
	"purescan/internal/dto"
	"purescan/internal/model"
)

// ScanRepository defines the interface for scan history operations.
type ScanRepository interface {
	// Create operations
	Insert(scan *model.Scan) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Scan, error)
	GetByUID(uid string) (*model.Scan, error)
	GetAll(filter *dto.ScanFilters) ([]model.Scan, error)
	GetTotalCount(filter *dto.ScanFilters) (int, error)
	GetFoodNames() ([]string, error)

	// Delete operations
	Delete(id int64) error
	DeleteAll() error
}
