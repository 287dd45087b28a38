package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Progress reports a known number of steps. On a terminal it draws a bar;
// elsewhere it prints one line per step.
type Progress struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	out   io.Writer
	total int
	done  int
}

// NewProgress starts progress reporting for total steps.
func (w *Writer) NewProgress(total int, description string) *Progress {
	p := &Progress{out: w.out, total: total}
	if IsTTY(w.out) && !DetectCI() {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w.out),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return p
}

// Step records one finished step with a short message. Safe for
// concurrent use.
func (p *Progress) Step(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.bar != nil {
		p.bar.Describe(message)
		_ = p.bar.Add(1)
		return
	}
	_, _ = fmt.Fprintf(p.out, "[%d/%d] %s\n", p.done, p.total, message)
}

// Set moves progress to done steps without a message.
func (p *Progress) Set(done int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	if p.bar != nil {
		_ = p.bar.Set(done)
	}
}

// Finish completes the bar.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
