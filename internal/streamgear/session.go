// Package streamgear turns a file, URL or stream of raw frames into a DASH
// package: a manifest plus segments for every accepted rendition.
//
// A Session is created from an output path and a parameter mapping. The
// parameters decide its Mode: with a video source it runs Transcode once,
// without one it encodes frames handed to Feed until Terminate.
//
// A Session is not safe for concurrent Feed/Transcode/Terminate calls.
// Status and the other accessors may be called from any goroutine.
package streamgear

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/events"
	"github.com/smazurov/streamgear/internal/ffmpeg"
	"github.com/smazurov/streamgear/internal/frame"
	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/metrics"
	"github.com/smazurov/streamgear/internal/params"
	"github.com/smazurov/streamgear/internal/plan"
	"github.com/smazurov/streamgear/internal/process"
)

// Prober reports stream properties of a file or URL.
type Prober interface {
	Probe(ctx context.Context, source string) (*ffmpeg.ProbeResult, error)
}

// FramerateSource reports the rate frames are produced at, 0 if unknown.
// capture.Source implements it.
type FramerateSource interface {
	Framerate() float64
}

// Options tunes a Session. The zero value is usable.
type Options struct {
	FFmpegBin  string
	FFprobeBin string
	// GracefulTimeout bounds how long Terminate waits for the transcoder to
	// finish after end of stream before killing it.
	GracefulTimeout time.Duration
	KillTimeout     time.Duration

	Logger logging.Logger
	Bus    *events.Bus
	Prober Prober
	// FramerateSource is asked for the input rate when -input_framerate is
	// not set.
	FramerateSource FramerateSource
	SessionID       string
}

// Status is a snapshot of a session.
type Status struct {
	ID        string   `json:"id" doc:"Session identifier"`
	Mode      string   `json:"mode" example:"real_time" doc:"Operating mode"`
	State     string   `json:"state" example:"running" doc:"Lifecycle state"`
	Manifest  string   `json:"manifest" doc:"Manifest path"`
	Targets   []string `json:"targets,omitempty" example:"[\"1280x720\",\"640x360\"]" doc:"Accepted renditions"`
	FramesFed int64    `json:"frames_fed" doc:"Frames written to the transcoder"`
	ExitCode  int      `json:"exit_code" doc:"Transcoder exit code"`
	PID       int      `json:"pid,omitempty" doc:"Transcoder process id while running"`
}

// Session owns one transcoder run and its output directory.
type Session struct {
	id       string
	mode     Mode
	cfg      params.Config
	issues   []params.Issue
	assets   *assets.Manager
	opts     Options
	logger   logging.Logger
	ffLogger *slog.Logger
	bus      *events.Bus
	prober   Prober

	mu        sync.Mutex
	state     State
	proc      *process.Process
	plan      *plan.Plan
	shape     frame.Shape
	startErr  error
	ran       bool
	closed    bool
	framesFed int64
	exitCode  int
}

// New normalizes raw, picks the mode and prepares the output directory.
// output is a directory or a .mpd path. Invalid parameters are replaced by
// their defaults and logged; only output directory problems are errors.
func New(output string, raw map[string]any, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("streamgear")
	}
	if opts.FFmpegBin == "" {
		opts.FFmpegBin = "ffmpeg"
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()[:8]
	}

	s := &Session{
		id:       opts.SessionID,
		opts:     opts,
		logger:   opts.Logger,
		ffLogger: logging.GetLogger("ffmpeg").With("session_id", opts.SessionID),
		bus:      opts.Bus,
		prober:   opts.Prober,
		state:    StateCreated,
	}
	if s.prober == nil {
		s.prober = ffmpeg.NewProber(opts.FFprobeBin)
	}

	s.cfg, s.issues = params.Normalize(raw)
	params.LogIssues(s.logger, s.issues)
	now := time.Now().Format(time.RFC3339)
	for _, issue := range s.issues {
		s.bus.Publish(events.ParamRejectedEvent{
			SessionID: s.id,
			Key:       issue.Key,
			Value:     fmt.Sprint(issue.Value),
			Reason:    issue.Reason,
			Timestamp: now,
		})
	}
	s.mode = SelectMode(s.cfg)

	am, err := assets.New(output, s.logger)
	if err != nil {
		return nil, err
	}
	if err := am.Prepare(s.cfg.ClearPrevAssets); err != nil {
		am.Release()
		return nil, err
	}
	s.assets = am

	s.logger.Info("Session created",
		"session_id", s.id,
		"mode", s.mode.String(),
		"manifest", am.ManifestPath())
	s.publishState(StateCreated, nil)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the operating mode.
func (s *Session) Mode() Mode { return s.mode }

// Config returns the normalized parameters.
func (s *Session) Config() params.Config { return s.cfg }

// Issues returns the parameters that were replaced by defaults.
func (s *Session) Issues() []params.Issue { return s.issues }

// ManifestPath returns where the manifest is written.
func (s *Session) ManifestPath() string { return s.assets.ManifestPath() }

// Dir returns the output directory.
func (s *Session) Dir() string { return s.assets.Dir() }

// Plan returns the stream plan, nil until the transcoder was started.
func (s *Session) Plan() *plan.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot for reporting.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:        s.id,
		Mode:      s.mode.String(),
		State:     string(s.state),
		Manifest:  s.assets.ManifestPath(),
		FramesFed: s.framesFed,
		ExitCode:  s.exitCode,
	}
	if s.plan != nil {
		for _, t := range s.plan.Targets {
			st.Targets = append(st.Targets, t.Resolution())
		}
	}
	if s.proc != nil && s.state == StateRunning {
		st.PID = s.proc.Info().PID
	}
	return st
}

// WaitForManifest blocks until the transcoder has written the manifest.
func (s *Session) WaitForManifest(ctx context.Context) error {
	return s.assets.WaitForManifest(ctx)
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.publishState(state, err)
}

func (s *Session) publishState(state State, err error) {
	ev := events.SessionStateEvent{
		SessionID: s.id,
		Mode:      s.mode.String(),
		State:     string(state),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.mu.Lock()
	ev.ExitCode = s.exitCode
	s.mu.Unlock()
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(ev)
}

// buildPlan expands the configured streams for a primary of src and reports
// every dropped descriptor.
func (s *Session) buildPlan(src plan.Source) *plan.Plan {
	p := plan.Build(src, plan.Globals{
		BPP:          s.cfg.BPP,
		VideoBitrate: s.cfg.VideoBitrate,
		AudioBitrate: s.cfg.AudioBitrate,
	}, s.cfg.Streams)
	p.LogIssues(s.logger)

	now := time.Now().Format(time.RFC3339)
	for _, d := range p.Drops {
		s.bus.Publish(events.StreamDroppedEvent{
			SessionID:  s.id,
			Index:      d.Index,
			Resolution: d.Descriptor.Resolution,
			Reason:     d.Reason,
			Timestamp:  now,
		})
	}
	return p
}

// newProcess wraps the transcoder command with logging and progress metrics.
func (s *Session) newProcess(p *ffmpeg.Params, opts ...process.Option) *process.Process {
	p.Progress = true
	args := ffmpeg.BuildArgs(p)
	s.logger.Debug("Transcoder command", "session_id", s.id, "args", args.String())

	progress := ffmpeg.NewProgressParser(func(pr ffmpeg.Progress) {
		metrics.SetProgress(s.id, metrics.Progress{
			Frame:           pr.Frame,
			FPS:             pr.FPS,
			Speed:           pr.Speed,
			DroppedFrames:   pr.DroppedFrames,
			DuplicateFrames: pr.DuplicateFrames,
		})
	})

	opts = append([]process.Option{
		process.WithOutputHandler(progress),
		process.WithLogParser(s.ffLogger, ffmpeg.ParseLogLevel),
		process.WithGracefulTimeout(s.opts.GracefulTimeout),
		process.WithKillTimeout(s.opts.KillTimeout),
	}, opts...)
	return process.New("ffmpeg-"+s.id, s.opts.FFmpegBin, args, s.logger, opts...)
}

// audioInput resolves the custom audio source. Sources without an audio
// stream are dropped so they cannot break manifest production.
func (s *Session) audioInput(ctx context.Context) string {
	if s.cfg.Audio == "" {
		return ""
	}
	res, err := s.prober.Probe(ctx, s.cfg.Audio)
	switch {
	case err != nil:
		s.logger.Warn("Ignoring audio source", "session_id", s.id, "audio", s.cfg.Audio, "error", err)
		return ""
	case !res.HasAudio:
		s.logger.Warn("Ignoring audio source without audio stream", "session_id", s.id, "audio", s.cfg.Audio)
		return ""
	}
	return s.cfg.Audio
}

// finishProcess records the exit of the transcoder.
func (s *Session) finishProcess(proc *process.Process, code int) {
	info := proc.Info()
	metrics.RecordExit(metrics.ExitReason(code, info.Killed))
	s.mu.Lock()
	s.exitCode = code
	s.mu.Unlock()
}

// validate checks the manifest against the plan and announces it.
func (s *Session) validate(p *plan.Plan) error {
	mpd, err := s.assets.Validate(len(p.Targets))
	if err != nil {
		return fmt.Errorf("manifest %s: %w", s.assets.ManifestPath(), err)
	}
	_, video, audio := mpd.Counts()
	metrics.SetRepresentations(s.id, video, audio)
	s.bus.Publish(events.ManifestReadyEvent{
		SessionID: s.id,
		Path:      s.assets.ManifestPath(),
		Video:     video,
		Audio:     audio,
		Live:      mpd.Live(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.logger.Info("Manifest ready",
		"session_id", s.id,
		"manifest", s.assets.ManifestPath(),
		"video", video,
		"audio", audio)
	return nil
}
