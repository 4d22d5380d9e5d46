package ffmpeg

import (
	"errors"
	"fmt"
)

// ErrAudioChannelsMissing means an audio stream carried no channel count.
// The profile relies on every audio stream declaring one.
var ErrAudioChannelsMissing = errors.New("audio stream has no channel count")

// Fixed transcode profile.
const (
	VideoCodec      = "libsvtav1"
	VideoCRF        = "38"
	DeinterlaceVF   = "yadif=1"
	SubtitleCodec   = "mov_text"
	AnalyzeDuration = "100M"
	ProbeSize       = "100M"
)

// AudioMaps returns one "0:<index>" map per audio stream that has at least
// one channel. Silent (zero-channel) streams are left out.
func AudioMaps(streams []Stream) ([]string, error) {
	var maps []string
	for i, s := range streams {
		if s.CodecType != "audio" {
			continue
		}
		if s.Channels == nil {
			return nil, fmt.Errorf("stream %d: %w", i, ErrAudioChannelsMissing)
		}
		if *s.Channels == 0 {
			continue
		}
		maps = append(maps, fmt.Sprintf("0:%d", i))
	}
	return maps, nil
}

// BuildArgs assembles the ffmpeg argument list (without the executable).
// Progress is written as key=value blocks to stdout.
func BuildArgs(src, dst string, audioMaps []string) []string {
	args := make([]string, 0, 48+2*len(audioMaps))

	// --- Preamble ---
	args = append(args,
		"-hide_banner", "-nostdin", "-nostats",
		"-progress", "pipe:1",
		"-y",
		"-analyzeduration", AnalyzeDuration,
		"-probesize", ProbeSize,
		"-ignore_unknown",
		"-fix_sub_duration",
	)

	// --- Input ---
	args = append(args, "-i", src)

	// --- Video and subtitle maps ---
	args = append(args, "-map", "0:v", "-map", "0:s?")

	// --- Codecs and filters ---
	args = append(args,
		"-vcodec", VideoCodec,
		"-crf", VideoCRF,
		"-vf", DeinterlaceVF,
		"-absf", "aac_adtstoasc",
		"-fflags", "+discardcorrupt",
		"-acodec", "copy",
		"-scodec", SubtitleCodec,
	)

	// --- Audio maps ---
	for _, m := range audioMaps {
		args = append(args, "-map", m)
	}

	return append(args, dst)
}
