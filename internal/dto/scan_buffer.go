package dto

import "purescan/internal/model"

// BufferedScan holds an analysed image before it is flushed to disk.
type BufferedScan struct {
	Timestamp string
	MimeType  string
	Scan      model.Scan
	Data      []byte
}
