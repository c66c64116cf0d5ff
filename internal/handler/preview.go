package handler

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// Preview composites overlay onto frame, scales the result down to width when it is
// wider and encodes it as JPEG. A nil overlay previews the bare frame.
func Preview(frame, overlay *image.RGBA, width, quality int) ([]byte, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, errors.New("empty frame")
	}

	var img image.Image = frame
	if overlay != nil && !overlay.Bounds().Empty() {
		fb := frame.Bounds()
		var top image.Image = overlay
		if overlay.Bounds().Size() != fb.Size() {
			top = imaging.Resize(overlay, fb.Dx(), fb.Dy(), imaging.Linear)
		}
		img = imaging.Overlay(frame, top, fb.Min, 1.0)
	}

	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Linear)
	}

	if quality <= 0 || quality > 100 {
		quality = 60
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
