package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoDuration is returned when ffprobe reports no usable container duration.
var ErrNoDuration = errors.New("source duration unavailable")

// Stream is one entry of ffprobe's streams array. Channels is nil when
// ffprobe did not report a channel count at all.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Channels  *int   `json:"channels,omitempty"`
}

// Format is ffprobe's format section. Numbers arrive as strings.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// ProbeResult is the parsed output of a single ffprobe call.
type ProbeResult struct {
	Format  Format   `json:"format"`
	Streams []Stream `json:"streams"`
}

// DurationSecs returns the container duration truncated to whole seconds.
func (p *ProbeResult) DurationSecs() (uint64, error) {
	raw := strings.TrimSpace(p.Format.Duration)
	if raw == "" {
		return 0, ErrNoDuration
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, raw)
	}
	return uint64(f), nil
}

// Prober runs ffprobe.
type Prober struct {
	// Path is the ffprobe executable; empty means "ffprobe" on PATH.
	Path string
}

// Probe inspects path with one JSON ffprobe call.
func (p Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON decodes raw ffprobe JSON output.
func ParseJSON(data []byte) (*ProbeResult, error) {
	var pr ProbeResult
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return &pr, nil
}
