package analysis

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"purescan/internal/model"
)

const (
	demoDelay = 3 * time.Second
	demoScore = 100
	demoText  = "PERFECT QUALITY. No contaminants detected. Optimal freshness confirmed."
)

// Demo pretends to think for a few seconds and approves everything.
type Demo struct {
	clock clock.Clock
	Delay time.Duration
}

func NewDemo(clk clock.Clock) *Demo {
	if clk == nil {
		clk = clock.New()
	}
	return &Demo{clock: clk, Delay: demoDelay}
}

func (d *Demo) Analyze(ctx context.Context, image []byte, mimeType string) (*model.Assessment, error) {
	timer := d.clock.Timer(d.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return &model.Assessment{
		Score: demoScore,
		Text:  demoText,
		Grade: model.GradeFor(demoScore),
	}, nil
}
