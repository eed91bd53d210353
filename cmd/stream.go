package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/capture"
	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/plan"
	"github.com/smazurov/streamgear/internal/streamgear"
)

// CreateStreamCmd creates the stream command.
func CreateStreamCmd() *cobra.Command {
	var flags sessionFlags
	var (
		source   string
		pattern  string
		text     string
		fps      float64
		frames   int
		reduce   float64
		realtime bool
		loop     bool
	)

	cmd := &cobra.Command{
		Use:   "stream <output>",
		Short: "Feed decoded frames to a real-time DASH session",
		Long: `Decodes --source (file, URL or device) to raw frames, or generates placeholder frames ` +
			`with --pattern, and feeds them one by one to the encoder. Stops at the end of the source, ` +
			`after --frames frames or on SIGINT, then finalizes the manifest.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.initLogging()
			logger := logging.GetLogger("stream")

			if (source == "") == (pattern == "") {
				return errors.New("exactly one of --source and --pattern is required")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var src capture.Source
			if source != "" {
				ffsrc, err := capture.OpenFFmpeg(ctx, source, capture.FFmpegOptions{
					FFmpegBin:  flags.ffmpegBin,
					FFprobeBin: flags.ffprobeBin,
					Reduce:     reduce,
					Realtime:   realtime,
					Loop:       loop,
				})
				if err != nil {
					return err
				}
				src = ffsrc
			} else {
				w, h, err := plan.ParseResolution(pattern)
				if err != nil {
					return fmt.Errorf("--pattern %q: %w", pattern, err)
				}
				src = capture.NewPattern(w, h, fps, text, frames, realtime)
			}
			defer src.Close()

			raw, err := flags.raw()
			if err != nil {
				return err
			}
			opts := flags.options()
			opts.FramerateSource = src

			sess, err := streamgear.New(args[0], raw, opts)
			if err != nil {
				return err
			}
			if !sess.Mode().RealTime() {
				_ = sess.Terminate()
				return errors.New("-video_source is set, use transcode for file inputs")
			}

			logger.Info("Streaming", "mode", sess.Mode().String(), "manifest", sess.ManifestPath())
			fed, pumpErr := capture.Pump(ctx, src, sess, frames)
			logger.Info("Frames fed", "count", fed)

			termErr := sess.Terminate()
			if err := errors.Join(pumpErr, termErr); err != nil {
				return err
			}
			if sess.Config().RemoveAtExit {
				return nil
			}

			mpd, err := assets.ReadManifest(sess.ManifestPath())
			if err != nil {
				return err
			}
			printManifest(cmd.OutOrStdout(), sess.ManifestPath(), mpd)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&source, "source", "s", "", "Input file, URL or device to decode")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Generate WxH placeholder frames instead of decoding")
	cmd.Flags().StringVar(&text, "text", "NO SIGNAL", "Placeholder frame text")
	cmd.Flags().Float64Var(&fps, "fps", 25, "Placeholder frame rate")
	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "Stop after this many frames, 0 for no limit")
	cmd.Flags().Float64Var(&reduce, "reduce", 0, "Shrink decoded frames by this percentage (0-90)")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "Produce frames at the source rate instead of as fast as possible")
	cmd.Flags().BoolVar(&loop, "loop", false, "Restart file sources at their end")
	return cmd
}
