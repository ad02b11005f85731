package metrics

import (
	"context"
	"io"
	"time"

	"github.com/olekukonko/ts"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress is a terminal progress bar. A total of zero or less means the
// end is unknown (random scans without a cap) and the bar only counts.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	open      bool
}

// NewProgress renders a bar labelled name on out
func NewProgress(ctx context.Context, out io.Writer, name string, total int64) *Progress {
	container := mpb.NewWithContext(ctx,
		mpb.WithOutput(out),
		mpb.WithWidth(barWidth()),
		mpb.WithRefreshRate(200*time.Millisecond),
	)

	open := total <= 0
	if open {
		total = 0
	}

	bar := container.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("[%d / %d]", decor.WCSyncWidth),
			decor.Percentage(decor.WCSyncSpace),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), "done",
			),
		),
	)

	return &Progress{container: container, bar: bar, open: open}
}

// Add advances the bar by n items that took elapsed in total
func (p *Progress) Add(n int, elapsed time.Duration) {
	if p.open {
		p.bar.SetTotal(p.bar.Current()+int64(n)+1, false)
	}
	p.bar.EwmaIncrBy(n, elapsed)
}

// Done completes the bar and waits for the final render
func (p *Progress) Done() {
	p.bar.SetTotal(-1, true)
	p.container.Wait()
}

// barWidth sizes the bar to half the terminal, with a fallback when stdout
// is not a terminal.
func barWidth() int {
	size, err := ts.GetSize()
	if err != nil || size.Col() <= 0 {
		return 40
	}
	width := size.Col() / 2
	if width < 20 {
		width = 20
	}
	return width
}
