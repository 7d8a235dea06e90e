package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar is a single-line stage progress bar.
type Bar struct {
	total     int
	current   int
	label     string
	out       io.Writer
	mu        sync.Mutex
	startTime time.Time
	done      bool
}

// New creates a new progress bar writing to stdout
func New(total int) *Bar {
	return NewWriter(os.Stdout, total)
}

// NewWriter creates a progress bar writing to w.
func NewWriter(w io.Writer, total int) *Bar {
	if total < 1 {
		total = 1
	}
	return &Bar{
		total:     total,
		out:       w,
		startTime: time.Now(),
	}
}

// Stage moves to the next stage and shows its label. The bar counts the
// stages already finished, so the first call renders 0/total.
func (b *Bar) Stage(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.label != "" && b.current < b.total {
		b.current++
	}
	b.label = label
	b.render()
}

// Note updates the label of the current stage without advancing.
func (b *Bar) Note(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.label = label
	b.render()
}

// Finish marks the progress as complete
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		b.current = b.total
		b.label = "done"
		b.render()
		fmt.Fprintln(b.out) // New line after completion
		b.done = true
	}
}

// render displays the progress bar
func (b *Bar) render() {
	if b.done {
		return
	}

	const barWidth = 30
	filled := barWidth * b.current / b.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(b.out, "\r[%s] %d/%d %-32s %s   ",
		bar,
		b.current,
		b.total,
		truncate(b.label, 32),
		formatDuration(time.Since(b.startTime)),
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
