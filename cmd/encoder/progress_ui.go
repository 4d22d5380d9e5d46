package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"epg-encoder/internal/orchestrator"
)

var _ orchestrator.ProgressView = (*progressUI)(nil)

const barWidth = 30

// progressUI redraws one status line per stage on an interactive terminal.
// Updates arrive from the stage's consumer goroutine; Begin and Finish from
// the pipeline, so every field is guarded by mu.
type progressUI struct {
	w           io.Writer
	minInterval time.Duration
	now         func() time.Time

	mu        sync.Mutex
	stage     orchestrator.Stage
	startedAt time.Time
	lastDraw  time.Time
	current   uint64
	total     uint64
	width     int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:           w,
		minInterval: 200 * time.Millisecond,
		now:         time.Now,
	}
}

func (p *progressUI) Begin(item orchestrator.Item, stage orchestrator.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.startedAt = p.now()
	p.lastDraw = time.Time{}
	p.current, p.total, p.width = 0, 0, 0
	fmt.Fprintf(p.w, "%s %s...\n", stageVerb(stage), displayName(item))
}

func (p *progressUI) Update(stage orchestrator.Stage, current, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current, p.total = current, total
	if now := p.now(); now.Sub(p.lastDraw) >= p.minInterval {
		p.drawLocked(now)
	}
}

func (p *progressUI) Finish(_ orchestrator.Item, _ orchestrator.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drawLocked(p.now())
	fmt.Fprintln(p.w)
}

func (p *progressUI) drawLocked(now time.Time) {
	p.lastDraw = now
	elapsed := now.Sub(p.startedAt)

	var detail string
	if p.stage == orchestrator.StageTranscode {
		detail = fmt.Sprintf("%s/%s", formatClock(p.current), formatClock(p.total))
	} else {
		detail = fmt.Sprintf("%s/%s %s/s", formatBytes(p.current), formatBytes(p.total), formatBytes(rate(p.current, elapsed)))
	}

	line := fmt.Sprintf("[%s] [%s] %3d%% %s (ETA: %s)",
		formatClock(uint64(elapsed.Seconds())), bar(p.current, p.total), percent(p.current, p.total),
		detail, formatETA(p.current, p.total, elapsed))
	// Pad over a longer previous line.
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.width = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

func stageVerb(s orchestrator.Stage) string {
	switch s {
	case orchestrator.StageDownload:
		return "Downloading"
	case orchestrator.StageTranscode:
		return "Encoding"
	case orchestrator.StageUpload:
		return "Uploading"
	default:
		return "Cleaning up"
	}
}

func displayName(it orchestrator.Item) string {
	if name := strings.TrimSpace(it.Name); name != "" {
		return name
	}
	return it.FileName
}

func bar(current, total uint64) string {
	if total == 0 {
		return strings.Repeat("-", barWidth)
	}
	filled := int(min(current, total) * barWidth / total)
	if filled >= barWidth {
		return strings.Repeat("#", barWidth)
	}
	return strings.Repeat("#", filled) + ">" + strings.Repeat("-", barWidth-filled-1)
}

func percent(current, total uint64) int {
	if total == 0 {
		return 0
	}
	return int(min(current, total) * 100 / total)
}

func rate(current uint64, elapsed time.Duration) uint64 {
	if elapsed <= 0 {
		return 0
	}
	return uint64(float64(current) / elapsed.Seconds())
}

func formatETA(current, total uint64, elapsed time.Duration) string {
	if current == 0 || current >= total || elapsed <= 0 {
		return "0.0s"
	}
	remain := elapsed.Seconds() * float64(total-current) / float64(current)
	return fmt.Sprintf("%.1fs", remain)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatClock(sec uint64) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// pickProgressWriter returns the terminal to draw progress on, preferring
// stdout since logs go to stderr.
func pickProgressWriter() (io.Writer, bool) {
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	return nil, false
}
