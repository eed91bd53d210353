// Package cmd holds the streamgear subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/params"
	"github.com/smazurov/streamgear/internal/streamgear"
)

// sessionFlags are shared by the commands that run a session.
type sessionFlags struct {
	paramsFile      string
	set             []string
	streams         []string
	ffmpegBin       string
	ffprobeBin      string
	gracefulTimeout time.Duration
	logLevel        string
	logJSON         bool
}

func (f *sessionFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.paramsFile, "params", "p", "", "TOML params file with -flag keys")
	fs.StringArrayVar(&f.set, "set", nil, `Session parameter as key=value, e.g. --set -bpp=0.15 (repeatable)`)
	fs.StringArrayVar(&f.streams, "stream", nil,
		"Secondary rendition as resolution[,video_bitrate[,audio_bitrate[,framerate]]] (repeatable)")
	fs.StringVar(&f.ffmpegBin, "ffmpeg", "ffmpeg", "FFmpeg binary")
	fs.StringVar(&f.ffprobeBin, "ffprobe", "ffprobe", "FFprobe binary")
	fs.DurationVar(&f.gracefulTimeout, "graceful-timeout", 10*time.Second,
		"How long to wait for the encoder to finish before killing it")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&f.logJSON, "log-json", false, "Use JSON log format")
}

// raw merges the params file, --set and --stream into one parameter map.
// Later sources win: file, then --set, then --stream.
func (f *sessionFlags) raw() (map[string]any, error) {
	raw := make(map[string]any)
	if f.paramsFile != "" {
		loaded, err := params.LoadFile(f.paramsFile)
		if err != nil {
			return nil, err
		}
		raw = loaded
	}

	for _, kv := range f.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: expected key=value", kv)
		}
		if !strings.HasPrefix(key, "-") {
			key = "-" + key
		}
		raw[key] = value
	}

	if len(f.streams) > 0 {
		streams := make([]any, 0, len(f.streams))
		for _, s := range f.streams {
			streams = append(streams, parseStreamFlag(s))
		}
		raw[params.KeyStreams] = streams
	}
	return raw, nil
}

func (f *sessionFlags) options() streamgear.Options {
	return streamgear.Options{
		FFmpegBin:       f.ffmpegBin,
		FFprobeBin:      f.ffprobeBin,
		GracefulTimeout: f.gracefulTimeout,
	}
}

func (f *sessionFlags) initLogging() {
	cfg := logging.Config{Level: f.logLevel, Format: "text"}
	if f.logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
}

// parseStreamFlag turns "640x360,800k,,30" into a descriptor mapping.
// Empty fields are left out so the plan builder falls back for them.
func parseStreamFlag(s string) map[string]any {
	keys := []string{"-resolution", "-video_bitrate", "-audio_bitrate", "-framerate"}
	d := make(map[string]any)
	for i, field := range strings.SplitN(s, ",", len(keys)) {
		if field = strings.TrimSpace(field); field != "" {
			d[keys[i]] = field
		}
	}
	return d
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
