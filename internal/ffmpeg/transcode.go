// Package ffmpeg probes recordings with ffprobe and re-encodes them with a
// fixed AV1/MP4 profile, turning ffmpeg's -progress output into samples.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"epg-encoder/internal/progress"
)

// Transcoder runs ffmpeg with the fixed profile.
type Transcoder struct {
	// FFmpegPath is the ffmpeg executable; empty means "ffmpeg" on PATH.
	FFmpegPath string
	Prober     Prober
	Logger     *slog.Logger
}

// Transcode re-encodes src into dst. It probes src for its duration and
// audio layout, offers (0, total) as soon as ffmpeg starts, then one sample
// per progress block. Output validity beyond the exit status is not checked.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string, sink progress.Sink[Progress]) error {
	if sink == nil {
		sink = progress.Discard[Progress]()
	}

	pr, err := t.Prober.Probe(ctx, src)
	if err != nil {
		return err
	}
	total, err := pr.DurationSecs()
	if err != nil {
		return fmt.Errorf("probe %s: %w", src, err)
	}
	maps, err := AudioMaps(pr.Streams)
	if err != nil {
		return fmt.Errorf("probe %s: %w", src, err)
	}

	bin := t.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	args := BuildArgs(src, dst, maps)
	if t.Logger != nil {
		t.Logger.Debug("starting ffmpeg",
			slog.String("source", src),
			slog.Uint64("duration_secs", total),
			slog.Any("audio_maps", maps),
			slog.Any("args", args))
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	sink.TrySend(Progress{CurrentSecs: 0, TotalSecs: total})

	// The pipe is drained to EOF before Wait so ffmpeg never blocks on a
	// full stdout.
	parseErr := readProgress(stdout, total, sink)

	if err := cmd.Wait(); err != nil {
		return &ExitError{Err: err, Stderr: stderr.String()}
	}
	if parseErr != nil {
		return fmt.Errorf("ffmpeg progress: %w", parseErr)
	}
	return nil
}

// readProgress consumes r to EOF. The first parse error is returned, but
// reading continues so the writer is never stalled.
func readProgress(r io.Reader, total uint64, sink progress.Sink[Progress]) error {
	parser := newProgressParser(total)
	sc := bufio.NewScanner(r)

	var firstErr error
	for sc.Scan() {
		if firstErr != nil {
			continue
		}
		p, ok, err := parser.line(sc.Text())
		if err != nil {
			firstErr = err
			continue
		}
		if ok {
			sink.TrySend(p)
		}
	}
	if err := sc.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
