package ffmpeg

import "github.com/smazurov/streamgear/internal/plan"

// InputKind selects how the primary video reaches ffmpeg.
type InputKind int

const (
	// InputSource reads a file or URL directly.
	InputSource InputKind = iota
	// InputRawVideo reads raw frames from stdin.
	InputRawVideo
)

// Input describes the primary video input.
type Input struct {
	Kind InputKind
	// Source path or URL, InputSource only.
	Path string
	// Raw frame layout, InputRawVideo only.
	PixFmt    string // bgr24, rgb24, gray, bgra, rgba
	Width     int
	Height    int
	Framerate float64
}

// Params is everything needed to build one DASH packaging command.
type Params struct {
	Input Input

	// Audio is a separate audio file or URL. Empty uses the source's own
	// audio when SourceHasAudio is set.
	Audio          string
	SourceHasAudio bool

	Targets []plan.Target
	VCodec  string
	GOP     int // 0 means twice the primary framerate

	Livestream bool
	// Passthrough flags in key order. Keys in dashDefaults replace the default
	// value instead of being appended.
	Passthrough map[string]string

	// Manifest is the .mpd output path.
	Manifest string
	// Progress enables key=value progress reports on stdout.
	Progress bool
}

func (p *Params) hasAudio() bool {
	return p.Audio != "" || p.SourceHasAudio
}
