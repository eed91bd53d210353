// Package capture supplies frames to real-time sessions. Sources decode a
// file, URL or device through ffmpeg, or generate placeholder frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/streamgear/internal/ffmpeg"
	"github.com/smazurov/streamgear/internal/frame"
	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/process"
)

// ErrNoVideo is returned for inputs without a decodable video stream.
var ErrNoVideo = errors.New("input has no video stream")

// Source yields frames until io.EOF.
type Source interface {
	Read(ctx context.Context) (*frame.Frame, error)
	// Framerate is the rate the source produces frames at, 0 if unknown.
	Framerate() float64
	Close() error
}

// FFmpegOptions configures an FFmpegSource.
type FFmpegOptions struct {
	FFmpegBin  string
	FFprobeBin string
	// Reduce shrinks every frame by this percentage, 0 keeps the size.
	Reduce float64
	// Realtime reads the input at its native rate (-re).
	Realtime bool
	// Loop restarts file inputs at their end.
	Loop   bool
	Logger logging.Logger
}

// FFmpegSource decodes an input to raw BGR frames.
type FFmpegSource struct {
	source    string
	width     int
	height    int
	framerate float64
	reduce    float64

	proc   *process.Process
	pr     *io.PipeReader
	buf    []byte
	closed sync.Once
}

// OpenFFmpeg probes source and starts decoding it.
func OpenFFmpeg(ctx context.Context, source string, opts FFmpegOptions) (*FFmpegSource, error) {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("capture")
	}
	if opts.FFmpegBin == "" {
		opts.FFmpegBin = "ffmpeg"
	}
	if opts.Reduce != 0 && !(opts.Reduce > 0 && opts.Reduce < 90) {
		return nil, fmt.Errorf("reduce percentage must be greater than 0 and less than 90, got %v", opts.Reduce)
	}

	probe, err := ffmpeg.NewProber(opts.FFprobeBin).Probe(ctx, source)
	if err != nil {
		return nil, err
	}
	if !probe.HasVideo || probe.Width <= 0 || probe.Height <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVideo, source)
	}

	args := []string{"-hide_banner", "-nostdin", "-loglevel", "level+warning"}
	if opts.Realtime {
		args = append(args, "-re")
	}
	if opts.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args,
		"-i", source,
		"-map", "0:v:0",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"pipe:1")

	pr, pw := io.Pipe()
	proc := process.New("capture", opts.FFmpegBin, args, opts.Logger,
		process.WithStdout(pw),
		process.WithLogParser(opts.Logger, ffmpeg.ParseLogLevel),
		process.WithGracefulTimeout(2*time.Second),
	)
	if err := proc.Start(); err != nil {
		pw.Close()
		return nil, err
	}
	go func() {
		<-proc.Done()
		code, _ := proc.Wait()
		if code != 0 {
			pw.CloseWithError(fmt.Errorf("decoder exited with code %d", code))
			return
		}
		pw.Close()
	}()

	opts.Logger.Info("Opened capture source",
		"source", source,
		"resolution", strconv.Itoa(probe.Width)+"x"+strconv.Itoa(probe.Height),
		"framerate", probe.Framerate)

	return &FFmpegSource{
		source:    source,
		width:     probe.Width,
		height:    probe.Height,
		framerate: probe.Framerate,
		reduce:    opts.Reduce,
		proc:      proc,
		pr:        pr,
		buf:       make([]byte, probe.Width*probe.Height*3),
	}, nil
}

// Read returns the next decoded frame, or io.EOF once the input ends.
func (s *FFmpegSource) Read(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { s.pr.CloseWithError(ctx.Err()) })
	defer stop()

	if _, err := io.ReadFull(s.pr, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	f := frame.New(s.width, s.height, 3)
	copy(f.Data, s.buf)
	if s.reduce > 0 {
		return frame.Reduce(f, s.reduce)
	}
	return f, nil
}

// Framerate returns the probed input framerate.
func (s *FFmpegSource) Framerate() float64 {
	return s.framerate
}

// Close stops the decoder.
func (s *FFmpegSource) Close() error {
	var err error
	s.closed.Do(func() {
		s.pr.Close()
		_, err = s.proc.Stop()
	})
	return err
}

// PatternSource generates black frames with a text overlay.
type PatternSource struct {
	template  *frame.Frame
	framerate float64
	text      string
	limit     int
	paced     bool

	count int
	next  time.Time
}

// NewPattern returns a source of width x height BGR placeholder frames.
// limit bounds the number of frames, 0 is unlimited. Paced sources sleep so
// frames come out at framerate.
func NewPattern(width, height int, framerate float64, text string, limit int, paced bool) *PatternSource {
	return &PatternSource{
		template:  frame.New(width, height, 3),
		framerate: framerate,
		text:      text,
		limit:     limit,
		paced:     paced,
	}
}

// Read returns the next placeholder frame.
func (s *PatternSource) Read(ctx context.Context) (*frame.Frame, error) {
	if s.limit > 0 && s.count >= s.limit {
		return nil, io.EOF
	}
	if s.paced && s.framerate > 0 {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		if wait := time.Until(s.next); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		s.next = s.next.Add(time.Duration(float64(time.Second) / s.framerate))
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := frame.Blank(s.template, s.text)
	if err != nil {
		return nil, err
	}
	s.count++
	return f, nil
}

// Framerate returns the configured rate.
func (s *PatternSource) Framerate() float64 {
	return s.framerate
}

// Close is a no-op.
func (s *PatternSource) Close() error {
	return nil
}
