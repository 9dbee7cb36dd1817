package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker renders a spinner with a running count of streamed items.
type Tracker struct {
	w         io.Writer
	total     int
	current   int
	message   string
	unit      string
	mu        sync.Mutex
	startTime time.Time
	done      chan struct{}
	stopped   chan struct{}
}

// New starts a tracker writing to w. A total of 0 means unknown.
func New(w io.Writer, total int, message, unit string) *Tracker {
	p := &Tracker{
		w:         w,
		total:     total,
		message:   message,
		unit:      unit,
		startTime: time.Now(),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go p.render()
	return p
}

func (p *Tracker) render() {
	defer close(p.stopped)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	frame := 0

	for {
		select {
		case <-p.done:
			p.mu.Lock()
			elapsed := time.Since(p.startTime)
			fmt.Fprintf(p.w, "\r✓ %s (%d %s, %s)          \n",
				p.message, p.current, p.unit, elapsed.Round(time.Millisecond))
			p.mu.Unlock()
			return

		case <-ticker.C:
			p.mu.Lock()
			if p.total > 0 {
				percent := float64(p.current) / float64(p.total) * 100
				fmt.Fprintf(p.w, "\r%s %s [%d/%d] %.0f%%  ",
					spinner[frame%len(spinner)],
					p.message,
					p.current,
					p.total,
					percent)
			} else {
				fmt.Fprintf(p.w, "\r%s %s [%d %s]  ",
					spinner[frame%len(spinner)],
					p.message,
					p.current,
					p.unit)
			}
			p.mu.Unlock()
			frame++
		}
	}
}

func (p *Tracker) Increment() {
	p.mu.Lock()
	p.current++
	p.mu.Unlock()
}

// Finish prints the summary line and waits for the renderer to stop.
func (p *Tracker) Finish() {
	close(p.done)
	<-p.stopped
}
