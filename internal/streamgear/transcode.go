package streamgear

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/streamgear/internal/ffmpeg"
	"github.com/smazurov/streamgear/internal/plan"
)

// Transcode packages the configured video source and blocks until the
// transcoder exits. A non-zero exit is returned as *ExitError. Only
// single-source sessions can transcode, and only once.
func (s *Session) Transcode(ctx context.Context) error {
	if s.mode != ModeSingleSource {
		return fmt.Errorf("%w: transcode needs -video_source, session is %s", ErrWrongMode, s.mode)
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrTerminated
	case s.ran:
		s.mu.Unlock()
		return ErrAlreadyRan
	}
	s.ran = true
	s.mu.Unlock()

	err := s.transcode(ctx)
	if err != nil {
		s.setState(StateFailed, err)
		return err
	}
	return nil
}

func (s *Session) transcode(ctx context.Context) error {
	source := s.cfg.VideoSource
	probe, err := s.prober.Probe(ctx, source)
	if err != nil {
		return fmt.Errorf("probe video source: %w", err)
	}
	if !probe.HasVideo || probe.Width <= 0 || probe.Height <= 0 {
		return fmt.Errorf("video source %s has no video stream", source)
	}

	fps := probe.Framerate
	if !(fps > 0) {
		fps = s.cfg.InputFramerate
	}
	p := s.buildPlan(plan.Source{Width: probe.Width, Height: probe.Height, Framerate: fps})

	proc := s.newProcess(&ffmpeg.Params{
		Input:          ffmpeg.Input{Kind: ffmpeg.InputSource, Path: source},
		Audio:          s.audioInput(ctx),
		SourceHasAudio: probe.HasAudio,
		Targets:        p.Targets,
		VCodec:         s.cfg.VCodec,
		GOP:            s.cfg.GOP,
		Livestream:     s.cfg.Livestream,
		Passthrough:    s.cfg.Passthrough,
		Manifest:       s.assets.ManifestPath(),
	})

	s.mu.Lock()
	s.plan = p
	s.proc = proc
	s.mu.Unlock()
	s.setState(StateRunning, nil)

	s.logger.Info("Transcoding",
		"session_id", s.id,
		"source", source,
		"resolution", p.Primary().Resolution(),
		"targets", len(p.Targets))

	code, err := proc.Run(ctx)
	s.finishProcess(proc, code)
	if err != nil {
		return fmt.Errorf("transcoder: %w", err)
	}
	if code != 0 {
		exitErr := &ExitError{Code: code, Tail: proc.Tail(10)}
		s.logger.Error("Transcoder failed", "session_id", s.id, "exit_code", code)
		return exitErr
	}

	if err := s.validate(p); err != nil {
		return err
	}
	s.setState(StateTerminated, nil)
	return nil
}

// IsExitError reports whether err is a transcoder exit and returns it.
func IsExitError(err error) (*ExitError, bool) {
	var exitErr *ExitError
	ok := errors.As(err, &exitErr)
	return exitErr, ok
}
