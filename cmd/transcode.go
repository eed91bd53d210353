package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/params"
	"github.com/smazurov/streamgear/internal/streamgear"
)

// CreateTranscodeCmd creates the transcode command.
func CreateTranscodeCmd() *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "transcode <source> <output>",
		Short: "Package a video file or URL as DASH",
		Long: `Transcodes <source> in one pass into a DASH manifest and segments under <output>, ` +
			`a directory or a .mpd path. The primary rendition keeps the source size; --stream adds more.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.initLogging()
			logger := logging.GetLogger("transcode")

			raw, err := flags.raw()
			if err != nil {
				return err
			}
			raw[params.KeyVideoSource] = args[0]

			sess, err := streamgear.New(args[1], raw, flags.options())
			if err != nil {
				return err
			}
			if sess.Mode() != streamgear.ModeSingleSource {
				_ = sess.Terminate()
				return fmt.Errorf("%s is not a readable file or URL", args[0])
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger.Info("Transcoding", "source", args[0], "manifest", sess.ManifestPath())
			runErr := sess.Transcode(ctx)
			if runErr == nil {
				// Read before Terminate, which may remove the output.
				var mpd *assets.MPD
				if mpd, runErr = assets.ReadManifest(sess.ManifestPath()); runErr == nil {
					printManifest(cmd.OutOrStdout(), sess.ManifestPath(), mpd)
				}
			}
			return errors.Join(runErr, sess.Terminate())
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
