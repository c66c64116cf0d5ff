// ScansData is a paginated response payload for the scan history.
package dto

type ScansData struct {
	Scans       []ScanInfo `json:"scans"`
	Foods       []string   `json:"foods"`
	Length      int        `json:"length"`
	TotalPages  int        `json:"totalPages"`
	CurrentPage int        `json:"currentPage"`
	Limit       int        `json:"pageSize"`
}
