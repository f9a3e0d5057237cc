// Package progress renders a throttled text progress bar for long-running
// mesh operations.
package progress

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/schollz/progressbar/v3"
)

// DefaultInterval is the minimum time between two rendered updates.
const DefaultInterval = 100 * time.Millisecond

const (
	barWidth = 20
	// steps is the resolution of the underlying bar; fractions are
	// rendered in hundredths of a percent.
	steps = 10000
)

// Reporter writes progress lines for one job. A nil *Reporter is valid and
// discards all updates, so operations can take one unconditionally.
type Reporter struct {
	title    string
	out      io.Writer
	interval time.Duration
	now      func() time.Time
	last     time.Time
	bar      *progressbar.ProgressBar
	done     bool
}

// New creates a reporter writing to out.
func New(title string, out io.Writer) *Reporter {
	return &Reporter{
		title:    title,
		out:      out,
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// WithInterval sets the throttle interval and returns r.
func (r *Reporter) WithInterval(d time.Duration) *Reporter {
	if r != nil {
		r.interval = d
	}
	return r
}

// WithClock replaces the time source and returns r.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	if r != nil {
		r.now = now
	}
	return r
}

// Update reports a completion fraction in [0,1]. Updates arriving sooner
// than the interval after the last rendered one are dropped, except the
// final one (fraction >= 1), which is always rendered once.
func (r *Reporter) Update(fraction float64) {
	if r == nil || r.out == nil || r.done {
		return
	}
	now := r.now()
	if fraction < 1 && !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now

	fraction = math.Max(0, math.Min(1, fraction))
	if r.bar == nil {
		r.bar = r.newBar()
	}
	if fraction >= 1 {
		r.done = true
		r.bar.Finish()
		return
	}
	// Reaching the maximum completes the bar; only a fraction of 1 may.
	r.bar.Set(min(int(math.Round(fraction*steps)), steps-1))
}

func (r *Reporter) newBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(r.title+":"),
		progressbar.OptionSetWidth(barWidth),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "#",
			SaucerPadding: "-",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetPredictTime(false),
		// Reporter throttles on its own clock.
		progressbar.OptionThrottle(0),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(r.out, " DONE\n")
		}),
	)
}

// Step reports progress as done out of total.
func (r *Reporter) Step(done, total int) {
	if total <= 0 {
		r.Update(1)
		return
	}
	r.Update(float64(done) / float64(total))
}

// Done renders the final 100% line.
func (r *Reporter) Done() {
	r.Update(1)
}
