// ScanFilters describe user-provided filters to narrow the scan history.
package dto

import (
	"time"

	"purescan/internal/model"
)

type ScanFilters struct {
	Food       string
	Grade      model.Grade
	Source     model.ScanSource
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
