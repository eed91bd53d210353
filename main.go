package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/streamgear/cmd"
	"github.com/smazurov/streamgear/internal/api"
	"github.com/smazurov/streamgear/internal/capture"
	"github.com/smazurov/streamgear/internal/config"
	"github.com/smazurov/streamgear/internal/events"
	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/metrics/exporters"
	"github.com/smazurov/streamgear/internal/params"
	"github.com/smazurov/streamgear/internal/streamgear"
	"github.com/smazurov/streamgear/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"streamgear.toml"`

	// Server settings
	Port   string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	Output string `help:"Asset directory served under /dash/" short:"o" default:"dash" toml:"server.output" env:"SERVER_OUTPUT"`

	// Live session settings
	Source          string `help:"Input to decode into a live DASH session" toml:"live.source" env:"LIVE_SOURCE"`
	Params          string `help:"TOML params file for the live session" toml:"live.params" env:"LIVE_PARAMS"`
	Reduce          int    `help:"Shrink live frames by this percentage" default:"0" toml:"live.reduce" env:"LIVE_REDUCE"`
	Loop            bool   `help:"Restart file sources at their end" default:"true" toml:"live.loop" env:"LIVE_LOOP"`
	GracefulTimeout string `help:"Encoder shutdown timeout" default:"10s" toml:"live.graceful_timeout" env:"LIVE_GRACEFUL_TIMEOUT"`

	// Encoder settings
	EncoderBin string `help:"FFmpeg binary" default:"ffmpeg" toml:"ffmpeg.binary" env:"FFMPEG_BINARY"`
	ProbeBin   string `help:"FFprobe binary" default:"ffprobe" toml:"ffmpeg.probe_binary" env:"FFMPEG_PROBE_BINARY"`

	// Observability settings
	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSE     bool `help:"Publish session metrics on /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStreamgear string `help:"Session logging level" default:"info" toml:"logging.streamgear" env:"LOGGING_STREAMGEAR"`
	LoggingFfmpeg     string `help:"Encoder output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingCapture    string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"streamgear": o.LoggingStreamgear,
			"ffmpeg":     o.LoggingFfmpeg,
			"capture":    o.LoggingCapture,
			"api":        o.LoggingAPI,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEvent(entry))
		})

		sessions := api.NewRegistry()
		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			AssetDir:     opts.Output,
			EventBus:     eventBus,
			Sessions:     sessions,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSE {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		// Only logging levels are reloaded; everything else needs a restart.
		watcher := config.NewWatcher(opts.Config, func(path string) (logging.Config, error) {
			cfg := config.LoadLoggingConfig(path)
			return cfg, nil
		}, logger)
		watcher.OnReload(logging.Initialize)

		ctx, cancel := context.WithCancel(context.Background())
		liveDone := make(chan struct{})

		hooks.OnStart(func() {
			if err := os.MkdirAll(opts.Output, 0o755); err != nil {
				logger.Error("Failed to create asset directory", "dir", opts.Output, "error", err)
				os.Exit(1)
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			if _, err := os.Stat(opts.Config); err == nil {
				if err := watcher.Start(ctx); err != nil {
					logger.Warn("Failed to watch config, hot-reload disabled", "error", err)
				}
			}

			go func() {
				defer close(liveDone)
				if opts.Source == "" {
					return
				}
				if err := runLive(ctx, opts, eventBus, sessions); err != nil {
					logger.Error("Live session failed", "error", err)
				}
			}()

			logger.Info("Starting StreamGear", "version", version.String(), "port", opts.Port)
			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()

			// The live session finalizes its manifest before the server goes away.
			select {
			case <-liveDone:
			case <-time.After(30 * time.Second):
				logger.Warn("Live session did not finish in time")
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			_ = watcher.Stop()
		})
	})

	cli.Root().Use = "streamgear"
	cli.Root().Short = "DASH packaging for video files and live frames"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateTranscodeCmd())
	cli.Root().AddCommand(cmd.CreateStreamCmd())
	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateParamsCmd())

	cli.Run()
}

// runLive decodes opts.Source into a livestream session writing to the
// served asset directory until ctx is cancelled or the source ends.
func runLive(ctx context.Context, opts *Options, bus *events.Bus, sessions *api.Registry) error {
	logger := logging.GetLogger("streamgear")

	raw := map[string]any{}
	if opts.Params != "" {
		loaded, err := params.LoadFile(opts.Params)
		if err != nil {
			return err
		}
		raw = loaded
	}
	// The live session always writes a dynamic manifest into the served
	// directory, replacing what a previous run left behind.
	delete(raw, params.KeyVideoSource)
	raw[params.KeyLivestream] = true
	raw[params.KeyClearPrevAssets] = true

	src, err := capture.OpenFFmpeg(ctx, opts.Source, capture.FFmpegOptions{
		FFmpegBin:  opts.EncoderBin,
		FFprobeBin: opts.ProbeBin,
		Reduce:     float64(opts.Reduce),
		Realtime:   true,
		Loop:       opts.Loop,
		Logger:     logging.GetLogger("capture"),
	})
	if err != nil {
		return err
	}
	defer src.Close()

	graceful, err := time.ParseDuration(opts.GracefulTimeout)
	if err != nil {
		graceful = 10 * time.Second
	}

	sess, err := streamgear.New(opts.Output, raw, streamgear.Options{
		FFmpegBin:       opts.EncoderBin,
		FFprobeBin:      opts.ProbeBin,
		GracefulTimeout: graceful,
		Logger:          logger,
		Bus:             bus,
		FramerateSource: src,
	})
	if err != nil {
		return err
	}
	untrack := sessions.Track(sess)
	defer untrack()

	logger.Info("Live session started", "source", opts.Source, "manifest", sess.ManifestPath())
	fed, pumpErr := capture.Pump(ctx, src, sess, 0)
	logger.Info("Live session stopping", "frames_fed", fed)
	return errors.Join(pumpErr, sess.Terminate())
}
