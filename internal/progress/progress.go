// Package progress reports commit-rewrite progress on a terminal bar,
// adapted from pkg/zeta/transfer.go's download-progress rendering:
// same mpb setup, driven by a commit counter instead of byte counts.
package progress

import (
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Reporter drives a single mpb bar over a known total of commits. A
// zero-value Reporter (as returned by New with quiet=true) is a no-op.
type Reporter struct {
	progress *mpb.Progress
	bar      *mpb.Bar
}

// New starts a progress bar titled task over total commits. When quiet
// is true, every method is a no-op.
func New(task string, total int, quiet bool) *Reporter {
	if quiet || total <= 0 {
		return &Reporter{}
	}
	p := mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithAutoRefresh(),
		mpb.WithWidth(80),
	)
	bar := p.New(int64(total),
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(
			decor.Name(task, decor.WC{W: len(task), C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30), "done"),
		),
	)
	return &Reporter{progress: p, bar: bar}
}

// Add advances the bar by n commits.
func (r *Reporter) Add(n int) {
	if r.bar != nil {
		r.bar.IncrBy(n)
	}
}

// Done marks the bar complete and waits for the render goroutine to
// flush its final frame.
func (r *Reporter) Done() {
	if r.progress == nil {
		return
	}
	for !r.bar.Completed() {
		r.bar.IncrBy(1)
	}
	r.progress.Wait()
}
