package model

import "time"

// Grade buckets an assessment score.
type Grade string

const (
	GradePremium   Grade = "premium"
	GradeAverage   Grade = "average"
	GradeHazardous Grade = "hazardous"
)

// GradeFor maps a 0-100 score onto its grade.
func GradeFor(score int) Grade {
	switch {
	case score >= 70:
		return GradePremium
	case score >= 30:
		return GradeAverage
	default:
		return GradeHazardous
	}
}

// Assessment is the analysis collaborator's verdict for one image.
type Assessment struct {
	Score    int    `json:"score"`
	Text     string `json:"text"`
	FoodName string `json:"foodName"`
	Grade    Grade  `json:"grade"`
}

// ScanSource tells where the scanned image came from.
type ScanSource string

const (
	ScanSourceCamera ScanSource = "camera"
	ScanSourceUpload ScanSource = "upload"
)

// Scan is one stored entry of the scan history.
type Scan struct {
	ID         int64       `json:"id"`
	UID        string      `json:"uid"`
	FoodName   string      `json:"foodName"`
	Score      int         `json:"score"`
	Grade      Grade       `json:"grade"`
	Analysis   string      `json:"analysis"`
	ImagePath  string      `json:"imagePath"`
	Source     ScanSource  `json:"source"`
	CreatedAt  time.Time   `json:"createdAt"`
	Detections []Detection `json:"detections,omitempty"`
}
