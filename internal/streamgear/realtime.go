package streamgear

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/streamgear/internal/ffmpeg"
	"github.com/smazurov/streamgear/internal/frame"
	"github.com/smazurov/streamgear/internal/metrics"
	"github.com/smazurov/streamgear/internal/plan"
	"github.com/smazurov/streamgear/internal/process"
)

// Feed writes one frame to the transcoder, blocking while its input is full.
// 3 and 4 channel frames are BGR(A) unless marked RGB. The first frame
// starts the transcoder and fixes the shape for the rest of the session.
func (s *Session) Feed(f *frame.Frame) error {
	return s.feed(f, false)
}

// FeedRGB is Feed for RGB(A) ordered frames.
func (s *Session) FeedRGB(f *frame.Frame) error {
	return s.feed(f, true)
}

func (s *Session) feed(f *frame.Frame, rgb bool) error {
	if !s.mode.RealTime() {
		return fmt.Errorf("%w: feed needs a session without -video_source, session is %s", ErrWrongMode, s.mode)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if rgb && !f.RGB {
		c := *f
		c.RGB = true
		f = &c
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrTerminated
	}
	if s.startErr != nil {
		err := s.startErr
		s.mu.Unlock()
		return err
	}
	proc, shape := s.proc, s.shape
	s.mu.Unlock()

	if proc == nil {
		var err error
		if proc, err = s.start(f.Shape()); err != nil {
			return err
		}
	} else if got := f.Shape(); got != shape {
		return fmt.Errorf("%w: got %s, want %s", ErrFrameShape, got, shape)
	}

	if _, err := proc.Write(f.Data); err != nil {
		if errors.Is(err, process.ErrBrokenPipe) {
			s.logger.Error("Transcoder input closed", "session_id", s.id, "tail", proc.Tail(5))
		}
		return fmt.Errorf("feed frame: %w", err)
	}

	s.mu.Lock()
	s.framesFed++
	s.mu.Unlock()
	metrics.AddFrameFed(s.id, len(f.Data))
	return nil
}

// start launches the transcoder for frames of shape.
func (s *Session) start(shape frame.Shape) (*process.Process, error) {
	fps := s.inputFramerate()
	p := s.buildPlan(plan.Source{Width: shape.Width, Height: shape.Height, Framerate: fps})

	proc := s.newProcess(&ffmpeg.Params{
		Input: ffmpeg.Input{
			Kind:      ffmpeg.InputRawVideo,
			PixFmt:    shape.PixFmt(),
			Width:     shape.Width,
			Height:    shape.Height,
			Framerate: fps,
		},
		Audio:       s.audioInput(context.Background()),
		Targets:     p.Targets,
		VCodec:      s.cfg.VCodec,
		GOP:         s.cfg.GOP,
		Livestream:  s.mode == ModeRealTimeLive,
		Passthrough: s.cfg.Passthrough,
		Manifest:    s.assets.ManifestPath(),
	}, process.WithInput())

	if err := proc.Start(); err != nil {
		err = fmt.Errorf("start transcoder: %w", err)
		s.mu.Lock()
		s.startErr = err
		s.mu.Unlock()
		s.setState(StateFailed, err)
		return nil, err
	}

	s.mu.Lock()
	s.plan = p
	s.proc = proc
	s.shape = shape
	s.mu.Unlock()
	s.setState(StateRunning, nil)

	s.logger.Info("Transcoder started",
		"session_id", s.id,
		"shape", shape.String(),
		"framerate", fps,
		"targets", len(p.Targets))
	return proc, nil
}

// inputFramerate prefers -input_framerate, then the frame source.
func (s *Session) inputFramerate() float64 {
	if s.cfg.InputFramerate > 0 {
		return s.cfg.InputFramerate
	}
	if fs := s.opts.FramerateSource; fs != nil {
		if rate := fs.Framerate(); rate > 0 {
			s.logger.Info("Using frame source framerate", "session_id", s.id, "framerate", rate)
			return rate
		}
	}
	s.logger.Warn("No input framerate, using default", "session_id", s.id, "framerate", plan.DefaultFramerate)
	return plan.DefaultFramerate
}

// Terminate ends the session. In real-time modes it closes the transcoder
// input and waits for it to finish the manifest, killing it after the
// graceful timeout, then validates the manifest. With -remove_at_exit the
// session output is deleted. Calling Terminate again does nothing.
func (s *Session) Terminate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	proc, p, fed := s.proc, s.plan, s.framesFed
	failed := s.state == StateFailed
	s.mu.Unlock()

	s.setState(StateTerminating, nil)

	var errs []error
	switch {
	case s.mode.RealTime() && proc != nil:
		code, err := proc.Stop()
		s.finishProcess(proc, code)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("stop transcoder: %w", err))
		case code != 0:
			s.logger.Error("Transcoder failed", "session_id", s.id, "exit_code", code)
			errs = append(errs, &ExitError{Code: code, Tail: proc.Tail(10)})
		default:
			if err := s.validate(p); err != nil {
				s.logger.Warn("Manifest validation failed", "session_id", s.id, "error", err)
				errs = append(errs, err)
			}
		}
	case s.mode.RealTime() && fed == 0:
		s.logger.Warn("Session terminated before any frame was fed", "session_id", s.id)
		errs = append(errs, ErrNoFrames)
	case proc != nil && proc.State() == process.StateRunning:
		// Transcode still running in another goroutine.
		if _, err := proc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop transcoder: %w", err))
		}
	}

	if s.cfg.RemoveAtExit {
		if err := s.assets.Remove(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	switch {
	case err != nil:
		s.setState(StateFailed, err)
	case failed:
		// A failed Transcode stays failed.
		s.setState(StateFailed, nil)
	default:
		s.setState(StateTerminated, nil)
	}
	s.logger.Info("Session terminated", "session_id", s.id, "frames_fed", fed)
	return err
}
