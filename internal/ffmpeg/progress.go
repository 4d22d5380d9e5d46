package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissingOutTime is returned when a -progress block ends without any
	// out_time field.
	ErrMissingOutTime = errors.New("progress block has no out_time")

	// ErrBadProgress is returned when an out_time value cannot be parsed.
	ErrBadProgress = errors.New("unparsable progress sample")
)

// Progress is elapsed output media time against the probed source duration,
// both in whole seconds.
type Progress struct {
	CurrentSecs uint64
	TotalSecs   uint64
}

// progressParser turns ffmpeg's -progress key=value stream into samples. A
// block ends at its "progress=" line. Samples never go backwards and never
// exceed the total.
type progressParser struct {
	total uint64
	last  uint64

	outTimeUS string
	outTimeMS string
	outTime   string
}

func newProgressParser(total uint64) *progressParser {
	return &progressParser{total: total}
}

// line feeds one line and reports a sample when a block completes.
func (p *progressParser) line(raw string) (Progress, bool, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return Progress{}, false, nil
	}
	value = strings.TrimSpace(value)

	switch key {
	case "out_time_us":
		p.outTimeUS = value
	case "out_time_ms":
		// Despite the name ffmpeg reports microseconds here too.
		p.outTimeMS = value
	case "out_time":
		p.outTime = value
	case "progress":
		return p.endBlock(value == "end")
	}
	return Progress{}, false, nil
}

func (p *progressParser) endBlock(final bool) (Progress, bool, error) {
	us, ms, hms := p.outTimeUS, p.outTimeMS, p.outTime
	p.outTimeUS, p.outTimeMS, p.outTime = "", "", ""

	if final {
		p.last = p.total
		return Progress{CurrentSecs: p.total, TotalSecs: p.total}, true, nil
	}

	var (
		secs uint64
		err  error
	)
	switch {
	case us != "":
		secs, err = parseMicros(us)
	case ms != "":
		secs, err = parseMicros(ms)
	case hms != "":
		secs, err = parseClock(hms)
	default:
		return Progress{}, false, ErrMissingOutTime
	}
	if errors.Is(err, errNotAvailable) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, err
	}

	if secs > p.total {
		secs = p.total
	}
	if secs < p.last {
		secs = p.last
	}
	p.last = secs
	return Progress{CurrentSecs: secs, TotalSecs: p.total}, true, nil
}

var errNotAvailable = errors.New("N/A")

func parseMicros(v string) (uint64, error) {
	if v == "N/A" {
		return 0, errNotAvailable
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadProgress, v)
	}
	if n < 0 {
		return 0, nil
	}
	return uint64(n / 1_000_000), nil
}

// parseClock parses "HH:MM:SS.micro", possibly with a leading minus.
func parseClock(v string) (uint64, error) {
	if v == "N/A" {
		return 0, errNotAvailable
	}
	if strings.HasPrefix(v, "-") {
		return 0, nil
	}
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadProgress, v)
	}
	h, err1 := strconv.ParseUint(parts[0], 10, 64)
	m, err2 := strconv.ParseUint(parts[1], 10, 64)
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || s < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadProgress, v)
	}
	return h*3600 + m*60 + uint64(s), nil
}
