package progress

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	defaultTermWidth  = 80
	defaultTermHeight = 24
)

// A State renders one line of the live display. Bar and Spinner
// implement it.
type State interface {
	String() string
}

// Progress repaints a block of State lines in place on stderr-style
// terminals. Lines are appended with Add and painted oldest first;
// when the block outgrows the terminal only the newest lines stay in
// the repaint window.
type Progress struct {
	mu sync.Mutex

	// frames are buffered so each repaint lands in one write
	w *bufio.Writer

	lines []State

	// painted is the height of the block currently on screen
	painted int

	ticker *time.Ticker
}

func NewProgress(w io.Writer) *Progress {
	p := &Progress{
		w:      bufio.NewWriter(w),
		ticker: time.NewTicker(100 * time.Millisecond),
	}

	// hide cursor
	fmt.Fprint(p.w, "\033[?25l")

	go func() {
		for range p.ticker.C {
			p.render()
		}
	}()

	return p
}

func (p *Progress) Add(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lines = append(p.lines, state)
}

// StopAndClear halts the repaint loop, stops any spinners in the
// block, and erases the painted lines. It reports whether this call
// stopped a running display.
func (p *Progress) StopAndClear() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	stopped := p.ticker != nil
	if stopped {
		p.ticker.Stop()
		p.ticker = nil

		for _, line := range p.lines {
			if spinner, ok := line.(*Spinner); ok {
				spinner.Stop()
			}
		}

		for range p.painted - 1 {
			fmt.Fprint(p.w, "\033[A")
		}
		fmt.Fprint(p.w, "\033[2K", "\033[1G")
		p.painted = 0
	}

	// show cursor
	fmt.Fprint(p.w, "\033[?25h")
	p.w.Flush()
	return stopped
}

func (p *Progress) render() {
	_, termHeight, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		termHeight = defaultTermHeight
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// a tick can land after StopAndClear; never paint over the
	// cleared block
	if p.ticker == nil {
		return
	}

	// synchronized output: the whole block repaints as one frame
	fmt.Fprint(p.w, "\033[?2026h")
	defer fmt.Fprint(p.w, "\033[?2026l")

	for range p.painted - 1 {
		fmt.Fprint(p.w, "\033[A")
	}
	fmt.Fprint(p.w, "\033[1G")

	visible := min(len(p.lines), termHeight)
	for i := len(p.lines) - visible; i < len(p.lines); i++ {
		fmt.Fprint(p.w, p.lines[i].String(), "\033[K")
		if i < len(p.lines)-1 {
			fmt.Fprint(p.w, "\n")
		}
	}

	p.painted = visible
	p.w.Flush()
}
