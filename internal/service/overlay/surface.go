// Package overlay draws the detection overlay on a transparent surface that sits
// over the live frame.
package overlay

import (
	"image"
	"sync/atomic"
)

// Surface holds the most recently rendered overlay. Rendered images are never
// modified after they are stored, so a snapshot can be read without locking.
type Surface struct {
	img atomic.Pointer[image.RGBA]
}

func NewSurface() *Surface {
	return &Surface{}
}

// Snapshot returns the last rendered overlay, or nil if nothing is drawn.
func (s *Surface) Snapshot() *image.RGBA {
	return s.img.Load()
}

// Clear removes the overlay.
func (s *Surface) Clear() {
	s.img.Store(nil)
}

// Size reports the dimensions of the current overlay.
func (s *Surface) Size() (width, height int) {
	img := s.img.Load()
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *Surface) store(img *image.RGBA) {
	s.img.Store(img)
}
