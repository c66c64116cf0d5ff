package model

import "image"

// Detection is one object found in one frame. Coordinates are frame pixels.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Rect returns the bounding box as an image.Rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
}

// CloneDetections returns a copy that the caller may keep.
func CloneDetections(in []Detection) []Detection {
	if in == nil {
		return nil
	}
	out := make([]Detection, len(in))
	copy(out, in)
	return out
}
