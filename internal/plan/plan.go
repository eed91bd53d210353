// Package plan expands secondary stream descriptors into the ordered list of
// encode targets a session produces. The primary target at source resolution
// is always first; descriptors that cannot be turned into a target are dropped
// and reported, never returned as errors.
package plan

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smazurov/streamgear/internal/logging"
)

// DefaultFramerate is used when neither the caller nor the source knows one.
const DefaultFramerate = 25.0

// Descriptor is one raw secondary stream request, as the caller wrote it.
type Descriptor struct {
	Resolution   string `toml:"-resolution,omitempty"`
	VideoBitrate string `toml:"-video_bitrate,omitempty"`
	AudioBitrate string `toml:"-audio_bitrate,omitempty"`
	Framerate    string `toml:"-framerate,omitempty"`
}

// Source describes the primary input.
type Source struct {
	Width     int
	Height    int
	Framerate float64
}

// Globals are the session-wide settings every target inherits.
type Globals struct {
	BPP          float64
	VideoBitrate int64 // bits/s for the primary, 0 derives from BPP
	AudioBitrate int64 // bits/s for the primary, 0 leaves the encoder default
}

// Target is one video rendition.
type Target struct {
	Width        int
	Height       int
	VideoBitrate int64
	AudioBitrate int64
	Framerate    float64
	Primary      bool
	Derived      bool // VideoBitrate came from BPP
}

// Resolution returns the target size as "WxH".
func (t Target) Resolution() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// Drop records a descriptor that did not become a target.
type Drop struct {
	Index      int
	Descriptor Descriptor
	Reason     string
}

// Fallback records a descriptor field that was replaced by its fallback while
// the descriptor itself was kept.
type Fallback struct {
	Index  int
	Field  string
	Value  string
	Reason string
}

// Plan is the result of Build.
type Plan struct {
	Targets   []Target
	Drops     []Drop
	Fallbacks []Fallback
}

// Build returns the targets for src. The primary target comes first, followed
// by accepted descriptors in input order.
func Build(src Source, g Globals, descriptors []Descriptor) *Plan {
	fps := src.Framerate
	if !(fps > 0) {
		fps = DefaultFramerate
	}

	primary := Target{
		Width:        src.Width,
		Height:       src.Height,
		VideoBitrate: g.VideoBitrate,
		AudioBitrate: g.AudioBitrate,
		Framerate:    fps,
		Primary:      true,
	}
	if primary.VideoBitrate <= 0 {
		primary.VideoBitrate = DeriveBitrate(g.BPP, src.Width, src.Height, fps)
		primary.Derived = true
	}

	p := &Plan{Targets: []Target{primary}}
	seen := map[[2]int]bool{{src.Width, src.Height}: true}

	for i, d := range descriptors {
		if strings.TrimSpace(d.Resolution) == "" {
			p.Drops = append(p.Drops, Drop{Index: i, Descriptor: d, Reason: "missing resolution"})
			continue
		}
		w, h, err := ParseResolution(d.Resolution)
		if err != nil {
			p.Drops = append(p.Drops, Drop{Index: i, Descriptor: d, Reason: err.Error()})
			continue
		}
		if seen[[2]int{w, h}] {
			p.Drops = append(p.Drops, Drop{Index: i, Descriptor: d, Reason: "duplicate resolution"})
			continue
		}

		t := Target{Width: w, Height: h, Framerate: fps}

		if d.Framerate != "" {
			rate, err := strconv.ParseFloat(strings.TrimSpace(d.Framerate), 64)
			if err == nil && rate > 0 && !math.IsInf(rate, 0) {
				t.Framerate = rate
			} else {
				p.Fallbacks = append(p.Fallbacks, Fallback{Index: i, Field: "-framerate", Value: d.Framerate, Reason: "not a positive number"})
			}
		}

		if d.VideoBitrate != "" {
			if rate, err := ParseBitrate(d.VideoBitrate); err == nil {
				t.VideoBitrate = rate
			} else {
				p.Fallbacks = append(p.Fallbacks, Fallback{Index: i, Field: "-video_bitrate", Value: d.VideoBitrate, Reason: err.Error()})
			}
		}
		if t.VideoBitrate == 0 {
			t.VideoBitrate = DeriveBitrate(g.BPP, w, h, t.Framerate)
			t.Derived = true
		}

		if d.AudioBitrate != "" {
			if rate, err := ParseBitrate(d.AudioBitrate); err == nil {
				t.AudioBitrate = rate
			} else {
				p.Fallbacks = append(p.Fallbacks, Fallback{Index: i, Field: "-audio_bitrate", Value: d.AudioBitrate, Reason: err.Error()})
			}
		}

		seen[[2]int{w, h}] = true
		p.Targets = append(p.Targets, t)
	}

	return p
}

// Primary returns the primary target.
func (p *Plan) Primary() Target {
	return p.Targets[0]
}

// Secondary returns every target after the primary.
func (p *Plan) Secondary() []Target {
	return p.Targets[1:]
}

// LogIssues writes one warning per drop and fallback.
func (p *Plan) LogIssues(logger logging.Logger) {
	for _, d := range p.Drops {
		logger.Warn("Dropping stream descriptor",
			"index", d.Index,
			"resolution", d.Descriptor.Resolution,
			"reason", d.Reason)
	}
	for _, f := range p.Fallbacks {
		logger.Warn("Stream descriptor field replaced by fallback",
			"index", f.Index,
			"key", f.Field,
			"value", f.Value,
			"reason", f.Reason)
	}
}

// DeriveBitrate returns bpp*w*h*fps bits/s rounded to the nearest kbit/s,
// never below 1 kbit/s.
func DeriveBitrate(bpp float64, w, h int, fps float64) int64 {
	bits := bpp * float64(w) * float64(h) * fps
	kbits := int64(math.Round(bits / 1000))
	if kbits < 1 {
		kbits = 1
	}
	return kbits * 1000
}
