package ffmpeg

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/smazurov/streamgear/internal/plan"
)

// Args is an ffmpeg argument vector, without the binary.
type Args []string

// String renders the arguments for logs, quoting tokens that need it.
func (a Args) String() string {
	quoted := make([]string, len(a))
	for i, arg := range a {
		if arg == "" || strings.ContainsAny(arg, " \t\"'$") {
			quoted[i] = strconv.Quote(arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}

// DASH muxer options with defaults that passthrough may replace.
var dashDefaults = []struct {
	key  string
	def  string
	live bool
}{
	{"-seg_duration", "4", false},
	{"-window_size", "5", true},
	{"-extra_window_size", "5", true},
}

const defaultAudioCodec = "aac"

// BuildArgs builds the ffmpeg arguments that package p.Input into a DASH
// manifest with one video representation per target.
func BuildArgs(p *Params) Args {
	args := Args{"-hide_banner", "-loglevel", "level+info", "-y"}

	switch p.Input.Kind {
	case InputRawVideo:
		args = append(args,
			"-f", "rawvideo",
			"-pix_fmt", p.Input.PixFmt,
			"-s", fmt.Sprintf("%dx%d", p.Input.Width, p.Input.Height),
			"-framerate", formatRate(p.Input.Framerate),
			"-i", "-")
	default:
		args = append(args, "-nostdin", "-i", p.Input.Path)
	}

	audioInput := "0"
	if p.Audio != "" {
		args = append(args, "-i", p.Audio)
		audioInput = "1"
	}

	for range p.Targets {
		args = append(args, "-map", "0:v:0")
	}

	// One audio representation for the primary and one per secondary target
	// that asked for its own audio bitrate.
	var audioRates []int64
	if p.hasAudio() {
		for i, t := range p.Targets {
			if i == 0 || t.AudioBitrate > 0 {
				audioRates = append(audioRates, t.AudioBitrate)
			}
		}
		for range audioRates {
			args = append(args, "-map", audioInput+":a:0?")
		}
	}

	args = append(args, "-c:v", p.VCodec)
	if p.Input.Kind == InputRawVideo {
		args = append(args, "-pix_fmt", "yuv420p")
	}

	primaryRate := 0.0
	if len(p.Targets) > 0 {
		primaryRate = p.Targets[0].Framerate
	}
	for i, t := range p.Targets {
		args = append(args, fmt.Sprintf("-b:v:%d", i), plan.FormatBitrate(t.VideoBitrate))
		if !t.Primary {
			args = append(args, fmt.Sprintf("-s:v:%d", i), t.Resolution())
		}
		if t.Framerate > 0 && math.Abs(t.Framerate-primaryRate) > 1e-9 {
			args = append(args, fmt.Sprintf("-r:v:%d", i), formatRate(t.Framerate))
		}
	}

	gop := p.GOP
	if gop <= 0 {
		gop = int(math.Round(2 * primaryRate))
		if gop <= 0 {
			gop = 60
		}
	}
	args = append(args,
		"-g", strconv.Itoa(gop),
		"-keyint_min", strconv.Itoa(gop),
		"-sc_threshold", "0")

	if len(audioRates) > 0 {
		if p.Audio != "" {
			args = append(args, "-shortest")
		}
		args = append(args, "-c:a", defaultAudioCodec)
		for j, rate := range audioRates {
			if rate > 0 {
				args = append(args, fmt.Sprintf("-b:a:%d", j), plan.FormatBitrate(rate))
			}
		}
	}

	keys := make([]string, 0, len(p.Passthrough))
	for k := range p.Passthrough {
		if !isDashOption(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k)
		if v := p.Passthrough[k]; v != "" {
			args = append(args, v)
		}
	}

	if p.Progress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	args = append(args, "-f", "dash")
	for _, opt := range dashDefaults {
		if opt.live && !p.Livestream {
			continue
		}
		value := opt.def
		if v, ok := p.Passthrough[opt.key]; ok && v != "" {
			value = v
		}
		args = append(args, opt.key, value)
	}

	adaptationSets := "id=0,streams=v"
	if len(audioRates) > 0 {
		adaptationSets += " id=1,streams=a"
	}
	args = append(args,
		"-use_template", "1",
		"-use_timeline", "1",
		"-adaptation_sets", adaptationSets,
		"-init_seg_name", "init-$RepresentationID$.$ext$",
		"-media_seg_name", "chunk-$RepresentationID$-$Number%05d$.$ext$",
		p.Manifest)

	return args
}

func isDashOption(key string) bool {
	for _, opt := range dashDefaults {
		if opt.key == key {
			return true
		}
	}
	return false
}

// formatRate renders a framerate the way ffmpeg parses it. Rates within
// 0.001 of an NTSC rate are written as the exact fraction.
func formatRate(fps float64) string {
	for _, base := range []float64{24, 30, 60} {
		ntsc := base * 1000 / 1001
		if math.Abs(fps-ntsc) < 0.001 {
			return fmt.Sprintf("%d/1001", int(base*1000))
		}
	}
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
