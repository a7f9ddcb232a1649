// Package progress draws a one-line spinner for long copies on a
// terminal and stays silent otherwise.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const tick = 100 * time.Millisecond

// Tracker counts files and bytes and redraws the line on a ticker.
type Tracker struct {
	out     io.Writer
	message string

	mu         sync.Mutex
	files      int
	totalFiles int
	bytes      int64
	totalBytes int64
	started    time.Time
	done       chan struct{}
	stopped    chan struct{}
}

// New returns a tracker writing to out.
func New(out io.Writer, message string) *Tracker {
	return &Tracker{out: out, message: message}
}

// ForTerminal returns a tracker on stderr, or nil when stderr is not a
// terminal.
func ForTerminal(message string) *Tracker {
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return New(os.Stderr, message)
}

func (p *Tracker) Start(files int, bytes int64) {
	p.mu.Lock()
	p.totalFiles, p.totalBytes = files, bytes
	p.files, p.bytes = 0, 0
	p.started = time.Now()
	p.done = make(chan struct{})
	p.stopped = make(chan struct{})
	p.mu.Unlock()
	go p.render()
}

// Add counts one finished file of n bytes.
func (p *Tracker) Add(n int64) {
	p.mu.Lock()
	p.files++
	p.bytes += n
	p.mu.Unlock()
}

func (p *Tracker) Finish() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	<-p.stopped
}

func (p *Tracker) render() {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	defer close(p.stopped)
	frame := 0
	for {
		select {
		case <-p.done:
			p.mu.Lock()
			fmt.Fprintf(p.out, "\r✓ %s (%d files, %s, %s)          \n",
				p.message, p.files, humanize.Bytes(uint64(p.bytes)),
				time.Since(p.started).Round(time.Millisecond))
			p.done = nil
			p.mu.Unlock()
			return
		case <-ticker.C:
			p.mu.Lock()
			fmt.Fprintf(p.out, "\r%s %s %s", spinner[frame%len(spinner)], p.message, p.line())
			p.mu.Unlock()
			frame++
		}
	}
}

func (p *Tracker) line() string {
	if p.totalBytes > 0 {
		percent := float64(p.bytes) / float64(p.totalBytes) * 100
		return fmt.Sprintf("[%d/%d] %s/%s %.0f%%  ", p.files, p.totalFiles,
			humanize.Bytes(uint64(p.bytes)), humanize.Bytes(uint64(p.totalBytes)), percent)
	}
	return fmt.Sprintf("[%d/%d]  ", p.files, p.totalFiles)
}
