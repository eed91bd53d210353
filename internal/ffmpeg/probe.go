package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single ffprobe run.
const DefaultProbeTimeout = 15 * time.Second

var errBadRate = errors.New("invalid rate")

// ProbeResult is what ffprobe reported about a source.
type ProbeResult struct {
	Width     int
	Height    int
	Framerate float64
	HasVideo  bool
	HasAudio  bool
}

// Prober runs ffprobe.
type Prober struct {
	Binary  string
	Timeout time.Duration
}

// NewProber returns a prober for the given ffprobe binary.
func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{Binary: binary, Timeout: DefaultProbeTimeout}
}

// Probe inspects the streams of source. The first video stream provides the
// size and framerate.
func (p *Prober) Probe(ctx context.Context, source string) (*ProbeResult, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ffprobe -v error -show_entries stream=codec_type,width,height,r_frame_rate,avg_frame_rate
	// -of default=noprint_wrappers=1 input.mp4
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate",
		"-of", "default=noprint_wrappers=1",
		source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe %s: %w: %s", source, err, msg)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", source, err)
	}

	return parseProbeOutput(stdout.String()), nil
}

func parseProbeOutput(out string) *ProbeResult {
	result := &ProbeResult{}
	var codecType string
	videoDone := false

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		if key == "codec_type" {
			if codecType == "video" {
				videoDone = true
			}
			codecType = value
			switch value {
			case "video":
				result.HasVideo = true
			case "audio":
				result.HasAudio = true
			}
			continue
		}
		if codecType != "video" || videoDone {
			continue
		}

		switch key {
		case "width":
			result.Width, _ = strconv.Atoi(value)
		case "height":
			result.Height, _ = strconv.Atoi(value)
		case "r_frame_rate":
			if rate, err := ParseRate(value); err == nil {
				result.Framerate = rate
			}
		case "avg_frame_rate":
			if rate, err := ParseRate(value); err == nil && result.Framerate == 0 {
				result.Framerate = rate
			}
		}
	}
	return result
}

// ParseRate parses "30000/1001" or "25" into frames per second.
func ParseRate(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", errBadRate, s)
	}
	d := 1.0
	if found {
		d, err = strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, fmt.Errorf("%w %q", errBadRate, s)
		}
	}
	rate := n / d
	if d == 0 || !(rate > 0) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w %q", errBadRate, s)
	}
	return rate, nil
}
