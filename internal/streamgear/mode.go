package streamgear

import "github.com/smazurov/streamgear/internal/params"

// Mode is how a session gets its video. It is fixed at construction.
type Mode int

const (
	// ModeSingleSource transcodes a file or URL in one blocking run.
	ModeSingleSource Mode = iota
	// ModeRealTime encodes frames pushed with Feed.
	ModeRealTime
	// ModeRealTimeLive is ModeRealTime with a live (dynamic) manifest.
	ModeRealTimeLive
)

func (m Mode) String() string {
	switch m {
	case ModeSingleSource:
		return "single_source"
	case ModeRealTime:
		return "real_time"
	case ModeRealTimeLive:
		return "real_time_live"
	}
	return "unknown"
}

// RealTime reports whether frames are fed by the caller.
func (m Mode) RealTime() bool {
	return m == ModeRealTime || m == ModeRealTimeLive
}

// SelectMode picks the mode for a normalized config. A source always means
// single-source transcoding; the livestream flag then only marks the
// manifest live.
func SelectMode(cfg params.Config) Mode {
	switch {
	case cfg.VideoSource != "":
		return ModeSingleSource
	case cfg.Livestream:
		return ModeRealTimeLive
	default:
		return ModeRealTime
	}
}

// State is the session lifecycle state.
type State string

// Session states.
const (
	StateCreated     State = "created"
	StateRunning     State = "running"
	StateTerminating State = "terminating"
	StateTerminated  State = "terminated"
	StateFailed      State = "failed"
)
