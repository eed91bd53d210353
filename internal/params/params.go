// Package params turns the caller's loosely typed session options into a
// validated Config. Nothing here fails: every unusable value is replaced by
// its default and reported as an Issue.
package params

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/plan"
)

// Recognized keys.
const (
	KeyVideoSource     = "-video_source"
	KeyLivestream      = "-livestream"
	KeyInputFramerate  = "-input_framerate"
	KeyBPP             = "-bpp"
	KeyGOP             = "-gop"
	KeyVCodec          = "-vcodec"
	KeyClearPrevAssets = "-clear_prev_assets"
	KeyRemoveAtExit    = "-remove_at_exit"
	KeyAudio           = "-audio"
	KeyStreams         = "-streams"
	KeyVideoBitrate    = "-b:v:0"
	KeyAudioBitrate    = "-b:a:0"
)

// Defaults.
const (
	DefaultBPP    = 0.1
	DefaultVCodec = "libx264"
	minBPP        = 0.001
)

// Flags the command builder owns. They are never taken from passthrough.
var reservedFlags = map[string]bool{
	"-i": true, "-f": true, "-y": true, "-map": true, "-c": true, "-codec": true,
	"-c:v": true, "-c:a": true, "-acodec": true, "-s": true, "-r": true,
	"-pix_fmt": true, "-an": true, "-vn": true, "-g": true, "-b:v": true, "-b:a": true,
	"-adaptation_sets": true, "-init_seg_name": true, "-media_seg_name": true,
	"-use_template": true, "-use_timeline": true, "-streaming": true,
	"-progress": true, "-loglevel": true, "-nostdin": true, "-hide_banner": true,
}

var perStreamFlag = regexp.MustCompile(`^-(s|b|r|c|map|filter|codec)(:[vas])?(:\d+)?$`)

// Config is the normalized session configuration.
type Config struct {
	VideoSource     string
	Livestream      bool
	InputFramerate  float64 // 0 when not supplied
	BPP             float64
	GOP             int // 0 derives twice the framerate
	VCodec          string
	ClearPrevAssets bool
	RemoveAtExit    bool
	Audio           string
	VideoBitrate    int64 // primary, bits/s, 0 derives from BPP
	AudioBitrate    int64 // primary, bits/s, 0 leaves the encoder default
	Streams         []plan.Descriptor
	Passthrough     map[string]string
}

// Issue describes a key whose value was not used as given.
type Issue struct {
	Key    string
	Value  any
	Status Status
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s=%v: %s", i.Key, i.Value, i.Reason)
}

// Default returns the configuration used for an empty mapping.
func Default() Config {
	return Config{BPP: DefaultBPP, VCodec: DefaultVCodec}
}

// Normalize validates raw and returns the resulting Config together with the
// list of keys that were rejected.
func Normalize(raw map[string]any) (Config, []Issue) {
	n := normalizer{raw: raw}
	cfg := Default()

	cfg.VideoSource = n.str(KeyVideoSource, "", isSource).Value
	cfg.Livestream = n.boolean(KeyLivestream)
	cfg.InputFramerate = n.float(KeyInputFramerate, 0, func(f float64) bool { return f > 0 })
	cfg.BPP = n.float(KeyBPP, DefaultBPP, func(f float64) bool { return f > minBPP })
	cfg.GOP = n.integer(KeyGOP, 0, func(i int) bool { return i > 0 })
	cfg.VCodec = n.str(KeyVCodec, DefaultVCodec, func(s string) bool { return !strings.ContainsAny(s, " \t\n") }).Value
	cfg.ClearPrevAssets = n.boolean(KeyClearPrevAssets)
	cfg.RemoveAtExit = n.boolean(KeyRemoveAtExit)
	cfg.Audio = n.str(KeyAudio, "", isSource).Value
	cfg.VideoBitrate = n.bitrate(KeyVideoBitrate)
	cfg.AudioBitrate = n.bitrate(KeyAudioBitrate)
	cfg.Streams = n.streams()
	cfg.Passthrough = n.passthrough()

	return cfg, n.issues
}

// ToMap renders cfg back into the mapping form. Normalize(cfg.ToMap()) == cfg.
func (c Config) ToMap() map[string]any {
	m := map[string]any{
		KeyBPP:    c.BPP,
		KeyVCodec: c.VCodec,
	}
	if c.VideoSource != "" {
		m[KeyVideoSource] = c.VideoSource
	}
	if c.Livestream {
		m[KeyLivestream] = true
	}
	if c.InputFramerate > 0 {
		m[KeyInputFramerate] = c.InputFramerate
	}
	if c.GOP > 0 {
		m[KeyGOP] = c.GOP
	}
	if c.ClearPrevAssets {
		m[KeyClearPrevAssets] = true
	}
	if c.RemoveAtExit {
		m[KeyRemoveAtExit] = true
	}
	if c.Audio != "" {
		m[KeyAudio] = c.Audio
	}
	if c.VideoBitrate > 0 {
		m[KeyVideoBitrate] = plan.FormatBitrate(c.VideoBitrate)
	}
	if c.AudioBitrate > 0 {
		m[KeyAudioBitrate] = plan.FormatBitrate(c.AudioBitrate)
	}
	if len(c.Streams) > 0 {
		streams := make([]map[string]any, 0, len(c.Streams))
		for _, d := range c.Streams {
			streams = append(streams, descriptorMap(d))
		}
		m[KeyStreams] = streams
	}
	for k, v := range c.Passthrough {
		m[k] = v
	}
	return m
}

// PassthroughArgs returns the passthrough flags as argv pairs in key order.
// Empty values produce a bare flag.
func (c Config) PassthroughArgs() []string {
	keys := make([]string, 0, len(c.Passthrough))
	for k := range c.Passthrough {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		args = append(args, k)
		if v := c.Passthrough[k]; v != "" {
			args = append(args, v)
		}
	}
	return args
}

// LogIssues writes one warning per issue.
func LogIssues(logger logging.Logger, issues []Issue) {
	for _, i := range issues {
		logger.Warn("Ignoring session parameter, using default",
			"key", i.Key,
			"value", fmt.Sprint(i.Value),
			"reason", i.Reason)
	}
}

// IsReserved reports whether key is owned by the command builder.
func IsReserved(key string) bool {
	return reservedFlags[key] || perStreamFlag.MatchString(key)
}

type normalizer struct {
	raw    map[string]any
	issues []Issue
}

func (n *normalizer) note(key string, status Status, reason string) {
	if status == Rejected {
		n.issues = append(n.issues, Issue{Key: key, Value: n.raw[key], Status: status, Reason: reason})
	}
}

func (n *normalizer) boolean(key string) bool {
	r := ParseBool(n.raw[key], false)
	n.note(key, r.Status, r.Reason)
	return r.Value
}

func (n *normalizer) float(key string, def float64, valid func(float64) bool) float64 {
	r := ParseFloat(n.raw[key], def, valid)
	n.note(key, r.Status, r.Reason)
	return r.Value
}

func (n *normalizer) integer(key string, def int, valid func(int) bool) int {
	r := ParseInt(n.raw[key], def, valid)
	n.note(key, r.Status, r.Reason)
	return r.Value
}

func (n *normalizer) str(key, def string, valid func(string) bool) Result[string] {
	r := ParseString(n.raw[key], def, valid)
	n.note(key, r.Status, r.Reason)
	return r
}

func (n *normalizer) bitrate(key string) int64 {
	v, ok := n.raw[key]
	if !ok || v == nil {
		return 0
	}
	s, ok := scalarString(v)
	if !ok {
		n.note(key, Rejected, "not a bitrate")
		return 0
	}
	bits, err := plan.ParseBitrate(s)
	if err != nil {
		n.note(key, Rejected, err.Error())
		return 0
	}
	return bits
}

func (n *normalizer) streams() []plan.Descriptor {
	v, ok := n.raw[KeyStreams]
	if !ok || v == nil {
		return nil
	}

	var items []any
	switch s := v.(type) {
	case []plan.Descriptor:
		if len(s) == 0 {
			return nil
		}
		return append([]plan.Descriptor(nil), s...)
	case []map[string]any:
		for _, m := range s {
			items = append(items, m)
		}
	case []any:
		items = s
	default:
		n.note(KeyStreams, Rejected, "not a list of stream descriptors")
		return nil
	}

	if len(items) == 0 {
		return nil
	}
	out := make([]plan.Descriptor, 0, len(items))
	for i, item := range items {
		var d plan.Descriptor
		switch m := item.(type) {
		case map[string]any:
			d = n.descriptor(i, m)
		case plan.Descriptor:
			d = m
		default:
			// Kept empty so the plan builder drops it at the same index.
			n.issues = append(n.issues, Issue{Key: fmt.Sprintf("%s[%d]", KeyStreams, i), Value: item, Status: Rejected, Reason: "not a mapping"})
		}
		out = append(out, d)
	}
	return out
}

func (n *normalizer) descriptor(index int, m map[string]any) plan.Descriptor {
	var d plan.Descriptor
	for k, v := range m {
		s, ok := scalarString(v)
		key := fmt.Sprintf("%s[%d].%s", KeyStreams, index, k)
		if !ok {
			n.issues = append(n.issues, Issue{Key: key, Value: v, Status: Rejected, Reason: "not a scalar"})
			continue
		}
		switch k {
		case "-resolution":
			d.Resolution = s
		case "-video_bitrate":
			d.VideoBitrate = s
		case "-audio_bitrate":
			d.AudioBitrate = s
		case "-framerate":
			d.Framerate = s
		default:
			n.issues = append(n.issues, Issue{Key: key, Value: v, Status: Rejected, Reason: "unknown stream key"})
		}
	}
	return d
}

var known = map[string]bool{
	KeyVideoSource: true, KeyLivestream: true, KeyInputFramerate: true, KeyBPP: true,
	KeyGOP: true, KeyVCodec: true, KeyClearPrevAssets: true, KeyRemoveAtExit: true,
	KeyAudio: true, KeyStreams: true, KeyVideoBitrate: true, KeyAudioBitrate: true,
}

func (n *normalizer) passthrough() map[string]string {
	var out map[string]string
	for k, v := range n.raw {
		if known[k] {
			continue
		}
		if !strings.HasPrefix(k, "-") || len(k) < 2 {
			n.note(k, Rejected, "unknown key")
			continue
		}
		if IsReserved(k) {
			n.note(k, Rejected, "flag is managed by streamgear")
			continue
		}
		s, ok := scalarString(v)
		if !ok || strings.ContainsAny(s, "\n\x00") {
			n.note(k, Rejected, "not a scalar")
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = s
	}
	return out
}

// isSource accepts URLs with a scheme and host, and existing local files.
func isSource(s string) bool {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && len(u.Scheme) > 1 && (u.Host != "" || u.Opaque != "") {
		return true
	}
	fi, err := os.Stat(s)
	return err == nil && !fi.IsDir()
}

func descriptorMap(d plan.Descriptor) map[string]any {
	m := map[string]any{}
	if d.Resolution != "" {
		m["-resolution"] = d.Resolution
	}
	if d.VideoBitrate != "" {
		m["-video_bitrate"] = d.VideoBitrate
	}
	if d.AudioBitrate != "" {
		m["-audio_bitrate"] = d.AudioBitrate
	}
	if d.Framerate != "" {
		m["-framerate"] = d.Framerate
	}
	return m
}
