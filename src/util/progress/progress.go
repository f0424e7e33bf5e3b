// Package progress reports how far a long file copy has got.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/go-units"
)

// DefaultInterval is the minimum time between two progress lines.
const DefaultInterval = 2 * time.Second

// Reader wraps an io.Reader and periodically writes progress updates to out.
type Reader struct {
	r           io.Reader
	out         io.Writer
	label       string
	total       int64
	read        int64
	mu          sync.Mutex
	lastPrinted time.Time
	interval    time.Duration
	done        bool
}

// NewReader creates a progress Reader. If total is 0, percentage is omitted.
// A nil out disables reporting.
func NewReader(r io.Reader, total int64, label string, out io.Writer) *Reader {
	return &Reader{r: r, out: out, label: label, total: total, lastPrinted: time.Now(), interval: DefaultInterval}
}

// Every sets the minimum time between two progress lines.
func (p *Reader) Every(d time.Duration) *Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	return p
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		p.read += int64(n)
		if now := time.Now(); now.Sub(p.lastPrinted) >= p.interval {
			p.print()
			p.lastPrinted = now
		}
	}
	if err == io.EOF && !p.done {
		p.done = true
		p.print()
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (p *Reader) BytesRead() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

func (p *Reader) print() {
	if p.out == nil {
		return
	}
	if p.total > 0 {
		pct := float64(p.read) / float64(p.total) * 100
		fmt.Fprintf(p.out, "[%s] %.1f%% (%s/%s)\n", p.label, pct, units.BytesSize(float64(p.read)), units.BytesSize(float64(p.total)))
	} else {
		fmt.Fprintf(p.out, "[%s] %s\n", p.label, units.BytesSize(float64(p.read)))
	}
}
