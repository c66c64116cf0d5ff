package model

import "time"

const (
	// CaptureFilename is the name given to every camera capture.
	CaptureFilename = "camera-capture.jpg"
	MimeTypeJPEG    = "image/jpeg"
)

// Artifact is one encoded still produced by a capture.
type Artifact struct {
	ID         string      `json:"id"`
	Bytes      []byte      `json:"-"`
	Filename   string      `json:"filename"`
	MimeType   string      `json:"mimeType"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Burned     bool        `json:"burned"`
	Detections []Detection `json:"detections,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}
