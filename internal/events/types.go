package events

// Event type constants for kelindar/event.
const (
	TypeParamRejected uint32 = iota + 1
	TypeStreamDropped
	TypeSessionState
	TypeManifestReady
	TypeSessionMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ParamRejectedEvent is published for every session parameter that was
// replaced by its default.
type ParamRejectedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Key       string `json:"key" example:"-bpp" doc:"Parameter key"`
	Value     string `json:"value" example:"unknown" doc:"Rejected value"`
	Reason    string `json:"reason" example:"not a number" doc:"Why the value was rejected"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ParamRejectedEvent.
func (e ParamRejectedEvent) Type() uint32 { return TypeParamRejected }

// StreamDroppedEvent is published for every secondary stream descriptor the
// plan builder did not turn into a target.
type StreamDroppedEvent struct {
	SessionID  string `json:"session_id" doc:"Session identifier"`
	Index      int    `json:"index" example:"1" doc:"Position in the -streams list"`
	Resolution string `json:"resolution" example:"unxun" doc:"Requested resolution"`
	Reason     string `json:"reason" example:"duplicate resolution" doc:"Why the descriptor was dropped"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamDroppedEvent.
func (e StreamDroppedEvent) Type() uint32 { return TypeStreamDropped }

// SessionStateEvent reports session lifecycle changes.
type SessionStateEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Mode      string `json:"mode" example:"real_time" doc:"Operating mode"`
	State     string `json:"state" example:"running" doc:"New state"`
	ExitCode  int    `json:"exit_code,omitempty" doc:"Encoder exit code once terminated"`
	Error     string `json:"error,omitempty" doc:"Failure description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateEvent.
func (e SessionStateEvent) Type() uint32 { return TypeSessionState }

// ManifestReadyEvent is published once a session's manifest passed validation.
type ManifestReadyEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Path      string `json:"path" example:"/srv/dash/dash_4f1c2a9b.mpd" doc:"Manifest path"`
	Video     int    `json:"video_representations" example:"2" doc:"Video representations"`
	Audio     int    `json:"audio_representations" example:"1" doc:"Audio representations"`
	Live      bool   `json:"live" doc:"Whether the manifest is dynamic"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ManifestReadyEvent.
func (e ManifestReadyEvent) Type() uint32 { return TypeManifestReady }

// SessionMetricsEvent carries encoder progress.
type SessionMetricsEvent struct {
	SessionID       string  `json:"session_id"`
	Frame           int64   `json:"frame"`
	FPS             float64 `json:"fps"`
	Speed           float64 `json:"speed"`
	DroppedFrames   int64   `json:"dropped_frames"`
	DuplicateFrames int64   `json:"duplicate_frames"`
	FramesFed       int64   `json:"frames_fed"`
}

// Type returns the event type identifier for SessionMetricsEvent.
func (e SessionMetricsEvent) Type() uint32 { return TypeSessionMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"plan" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
