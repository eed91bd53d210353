// Package metrics provides Prometheus metrics for transcoding sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgear",
		Subsystem: "ffmpeg",
		Name:      "frames",
		Help:      "Frames encoded by FFmpeg",
	}, []string{"session_id"})

	encoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgear",
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current FFmpeg encoding FPS",
	}, []string{"session_id"})

	encoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgear",
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "FFmpeg processing speed multiplier",
	}, []string{"session_id"})

	encoderDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgear",
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"session_id"})

	encoderDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgear",
		Subsystem: "ffmpeg",
		Name:      "duplicate_frames_total",
		Help:      "Total duplicate frames",
	}, []string{"session_id"})

	framesFed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgear",
		Subsystem: "session",
		Name:      "frames_fed_total",
		Help:      "Frames written to the encoder input",
	}, []string{"session_id"})

	bytesFed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgear",
		Subsystem: "session",
		Name:      "bytes_fed_total",
		Help:      "Raw frame bytes written to the encoder input",
	}, []string{"session_id"})

	representations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgear",
		Subsystem: "session",
		Name:      "representations",
		Help:      "Representations listed in the session manifest",
	}, []string{"session_id", "kind"})

	encoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgear",
		Subsystem: "ffmpeg",
		Name:      "exits_total",
		Help:      "Encoder process exits by reason",
	}, []string{"reason"})

	// Local cache for SSE exporter access.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// Exit reasons for RecordExit.
const (
	ExitClean  = "clean"
	ExitFailed = "failed"
	ExitKilled = "killed"
)

// SessionMetrics holds current metric values for a session.
type SessionMetrics struct {
	Frame           int64
	FPS             float64
	Speed           float64
	DroppedFrames   int64
	DuplicateFrames int64
	FramesFed       int64
	BytesFed        int64
}

// Progress is one encoder progress sample.
type Progress struct {
	Frame           int64
	FPS             float64
	Speed           float64
	DroppedFrames   int64
	DuplicateFrames int64
}

// SetProgress records the latest encoder progress for a session.
func SetProgress(sessionID string, p Progress) {
	encoderFrames.WithLabelValues(sessionID).Set(float64(p.Frame))
	encoderFPS.WithLabelValues(sessionID).Set(p.FPS)
	encoderSpeed.WithLabelValues(sessionID).Set(p.Speed)
	encoderDroppedFrames.WithLabelValues(sessionID).Set(float64(p.DroppedFrames))
	encoderDuplicateFrames.WithLabelValues(sessionID).Set(float64(p.DuplicateFrames))
	updateCache(sessionID, func(m *SessionMetrics) {
		m.Frame = p.Frame
		m.FPS = p.FPS
		m.Speed = p.Speed
		m.DroppedFrames = p.DroppedFrames
		m.DuplicateFrames = p.DuplicateFrames
	})
}

// AddFrameFed counts one frame of size bytes written to the encoder.
func AddFrameFed(sessionID string, size int) {
	framesFed.WithLabelValues(sessionID).Inc()
	bytesFed.WithLabelValues(sessionID).Add(float64(size))
	updateCache(sessionID, func(m *SessionMetrics) {
		m.FramesFed++
		m.BytesFed += int64(size)
	})
}

// SetRepresentations records how many video and audio representations the
// session manifest lists.
func SetRepresentations(sessionID string, video, audio int) {
	representations.WithLabelValues(sessionID, "video").Set(float64(video))
	representations.WithLabelValues(sessionID, "audio").Set(float64(audio))
}

// RecordExit counts an encoder exit.
func RecordExit(reason string) {
	encoderExits.WithLabelValues(reason).Inc()
}

// ExitReason classifies an exit code.
func ExitReason(code int, killed bool) string {
	switch {
	case killed:
		return ExitKilled
	case code == 0:
		return ExitClean
	default:
		return ExitFailed
	}
}

// DeleteSession removes all per-session metrics.
func DeleteSession(sessionID string) {
	encoderFrames.DeleteLabelValues(sessionID)
	encoderFPS.DeleteLabelValues(sessionID)
	encoderSpeed.DeleteLabelValues(sessionID)
	encoderDroppedFrames.DeleteLabelValues(sessionID)
	encoderDuplicateFrames.DeleteLabelValues(sessionID)
	framesFed.DeleteLabelValues(sessionID)
	bytesFed.DeleteLabelValues(sessionID)
	representations.DeleteLabelValues(sessionID, "video")
	representations.DeleteLabelValues(sessionID, "audio")

	sessionCacheMu.Lock()
	delete(sessionCache, sessionID)
	sessionCacheMu.Unlock()
}

// GetSession returns current metric values for a session.
func GetSession(sessionID string) *SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	if m, ok := sessionCache[sessionID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllSessions returns metrics for all active sessions.
func GetAllSessions() map[string]*SessionMetrics {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	result := make(map[string]*SessionMetrics, len(sessionCache))
	for id, m := range sessionCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(sessionID string, update func(*SessionMetrics)) {
	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		m = &SessionMetrics{}
		sessionCache[sessionID] = m
	}
	update(m)
}
