package dto

import (
	"encoding/json"
	"time"

	"purescan/internal/model"
)

// ScanInfo is one row of the history list.
type ScanInfo struct {
	ID        int64            `json:"id"`
	UID       string           `json:"uid"`
	FoodName  string           `json:"foodName"`
	Score     int              `json:"score"`
	Grade     model.Grade      `json:"grade"`
	Analysis  string           `json:"analysis"`
	Image     string           `json:"image"`
	Source    model.ScanSource `json:"source"`
	Date      time.Time        `json:"date"`
	TimeOfDay time.Time        `json:"timeOfDay"`
	Objects   []string         `json:"objects"`
}

// MarshalJSON customizes JSON output for ScanInfo to format date and time-of-day.
func (s ScanInfo) MarshalJSON() ([]byte, error) {
	type Alias ScanInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      s.Date.Format("02-01-2006"),
		TimeOfDay: s.TimeOfDay.Format("15:04"),
		Alias:     (Alias)(s),
	})
}
