package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Progress is the one piece of state shared between range workers: the
// cumulative byte counter. Every mutation goes through the mutex.
type Progress struct {
	mu       sync.Mutex
	current  int64
	total    int64
	started  time.Time
	segments bool // count segments instead of bytes
}

func NewProgress(total int64) *Progress {
	return &Progress{total: total, started: time.Now()}
}

func (p *Progress) Add(n int64) {
	p.mu.Lock()
	p.current += n
	p.mu.Unlock()
}

func (p *Progress) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Progress) Total() int64 { return p.total }

// Monitor renders the aggregate progress bar once per second and returns
// when the counter reaches the expected total or ctx is cancelled.
func (p *Progress) Monitor(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := p.Current()
			p.render(current)
			if current >= p.total {
				fmt.Println()
				return
			}
		}
	}
}

func (p *Progress) render(current int64) {
	if p.total == 0 {
		return
	}

	percent := float64(current) / float64(p.total) * 100

	elapsed := time.Since(p.started).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := uint64(float64(current) / elapsed)

	// [====>     ] 50.0% | 12 MB/s | 500 MB/1.0 GB
	const barWidth = 25
	completedWidth := int(percent / 100 * barWidth)
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	if p.segments {
		fmt.Printf("\r[%s] %5.1f%% | %d/%d segments      ", bar, percent, current, p.total)
		return
	}
	fmt.Printf("\r[%s] %5.1f%% | %s/s | %s/%s      ",
		bar, percent, humanize.Bytes(speed), humanize.Bytes(uint64(current)), humanize.Bytes(uint64(p.total)))
}

// SegmentProgress adapts Progress to per-segment advancement for the HLS
// fetch path, where the unit is one segment rather than one byte.
type SegmentProgress struct {
	p *Progress
}

func NewSegmentProgress(totalSegments int) *SegmentProgress {
	return &SegmentProgress{p: &Progress{total: int64(totalSegments), started: time.Now(), segments: true}}
}

func (s *SegmentProgress) Advance(n int) { s.p.Add(int64(n)) }

func (s *SegmentProgress) Monitor(ctx context.Context) { s.p.Monitor(ctx) }
