package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"purescan/internal/model"
)

// DefaultQuality keeps stills small for the analysis upload.
const DefaultQuality = 80

// JPEGEncoder encodes through OpenCV's imencode.
type JPEGEncoder struct {
	Quality int
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &JPEGEncoder{Quality: quality}
}

func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %v", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), e.Quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (e *JPEGEncoder) MimeType() string { return model.MimeTypeJPEG }
