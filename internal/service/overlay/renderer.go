package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"purescan/internal/model"
)

// Placeholder is drawn when there is nothing to show.
const Placeholder = "Searching for food..."

var (
	defaultBoxColor  = color.RGBA{R: 16, G: 185, B: 129, A: 255}
	defaultTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	placeholderFill  = color.RGBA{R: 0, G: 0, B: 0, A: 140}
)

const tagPadding = 4.0

type Renderer struct {
	// Label translates a raw class label for display. nil shows the raw label.
	Label     func(string) string
	BoxColor  color.Color
	TextColor color.Color
}

func NewRenderer(label func(string) string) *Renderer {
	return &Renderer{
		Label:     label,
		BoxColor:  defaultBoxColor,
		TextColor: defaultTextColor,
	}
}

// Render draws detections on a fresh transparent width x height image and swaps it
// into surface. The previous overlay is discarded, never drawn over.
func (r *Renderer) Render(surface *Surface, detections []model.Detection, width, height int) error {
	if width <= 0 || height <= 0 {
		surface.Clear()
		return fmt.Errorf("invalid overlay size %dx%d", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	dc := gg.NewContextForRGBA(img)

	if len(detections) == 0 {
		r.drawPlaceholder(dc, width, height)
	} else {
		lineWidth := math.Max(2, float64(width)/320)
		for _, d := range detections {
			r.drawDetection(dc, d, lineWidth)
		}
	}

	surface.store(img)
	return nil
}

// TagText is the text shown above a detection box.
func (r *Renderer) TagText(d model.Detection) string {
	label := d.Label
	if r.Label != nil {
		label = r.Label(d.Label)
	}
	return fmt.Sprintf("%s %d%%", label, int(math.Round(d.Confidence*100)))
}

func (r *Renderer) drawDetection(dc *gg.Context, d model.Detection, lineWidth float64) {
	x, y := float64(d.X), float64(d.Y)
	w, h := float64(d.Width), float64(d.Height)

	dc.SetColor(r.BoxColor)
	dc.SetLineWidth(lineWidth)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()

	text := r.TagText(d)
	textW, textH := dc.MeasureString(text)
	tagW := textW + 2*tagPadding
	tagH := textH + 2*tagPadding

	// Sit on the top edge, or just inside it when the box touches the frame top.
	tagY := y - tagH
	if tagY < 0 {
		tagY = y
	}

	dc.SetColor(r.BoxColor)
	dc.DrawRectangle(x, tagY, tagW, tagH)
	dc.Fill()

	dc.SetColor(r.TextColor)
	dc.DrawStringAnchored(text, x+tagPadding, tagY+tagH/2, 0, 0.5)
}

func (r *Renderer) drawPlaceholder(dc *gg.Context, width, height int) {
	cx, cy := float64(width)/2, float64(height)/2
	textW, textH := dc.MeasureString(Placeholder)

	dc.SetColor(placeholderFill)
	dc.DrawRoundedRectangle(cx-textW/2-3*tagPadding, cy-textH/2-2*tagPadding,
		textW+6*tagPadding, textH+4*tagPadding, 2*tagPadding)
	dc.Fill()

	dc.SetColor(r.TextColor)
	dc.DrawStringAnchored(Placeholder, cx, cy, 0.5, 0.5)
}
