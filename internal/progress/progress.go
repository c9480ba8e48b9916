// Package progress renders shared progress for concurrent workers.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Sink receives progress from the pipeline and the search. It is purely
// observational and must be safe for concurrent use.
type Sink interface {
	Start(label string, total int)
	Advance()
	Announce(msg string)
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Start(string, int) {}
func (Nop) Advance()          {}
func (Nop) Announce(string)   {}

const defaultWidth = 40

// Bar is a single-line terminal progress bar. On non-terminal writers it
// degrades to plain lines.
type Bar struct {
	mu    sync.Mutex
	w     io.Writer
	tty   bool
	width int

	label string
	total int
	done  int
}

// NewBar creates a bar writing to w. When w is a terminal the bar takes half
// of its width.
func NewBar(w io.Writer) *Bar {
	b := &Bar{w: w, width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b.tty = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols/2 > 10 {
			b.width = cols / 2
		}
	}
	return b
}

// Start resets the bar for a new phase.
func (b *Bar) Start(label string, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.label != "" && b.tty {
		fmt.Fprintln(b.w)
	}
	b.label = label
	b.total = total
	b.done = 0
	if b.tty {
		b.render()
		return
	}
	fmt.Fprintf(b.w, "%s (%d)\n", label, total)
}

// Advance marks one unit done.
func (b *Bar) Advance() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done++
	if b.tty {
		b.render()
	}
}

// Announce prints msg above the bar.
func (b *Bar) Announce(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tty {
		fmt.Fprintln(b.w, msg)
		return
	}
	fmt.Fprintf(b.w, "\r\x1b[K%s\n", msg)
	b.render()
}

// Finish ends the current line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tty {
		fmt.Fprintln(b.w)
	} else if b.label != "" {
		fmt.Fprintf(b.w, "%s: %d/%d\n", b.label, b.done, b.total)
	}
	b.label = ""
}

// Done returns the number of finished units in the current phase.
func (b *Bar) Done() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// render draws "<label>   [=====>     ]". Caller holds b.mu.
func (b *Bar) render() {
	inner := b.width - 3
	filled := inner
	if b.total > 0 && b.done < b.total {
		filled = b.done * inner / b.total
	}
	pad := b.width - len(b.label)
	if pad < 1 {
		pad = 1
	}
	fmt.Fprintf(b.w, "\r\x1b[K%s%s[%s>%s]",
		b.label,
		strings.Repeat(" ", pad),
		strings.Repeat("=", filled),
		strings.Repeat(" ", inner-filled),
	)
}
