package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/logging"
)

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	var minVideo int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <manifest|directory>",
		Short: "Check a DASH manifest and list its representations",
		Long: `Parses a .mpd file, or the single manifest in a directory, and fails unless it has ` +
			`at least one adaptation set and --min-video video representations.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveManifest(args[0])
			if err != nil {
				return err
			}

			mpd, err := assets.ReadManifest(path)
			if err != nil {
				return err
			}
			sets, video, _ := mpd.Counts()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Path            string                      `json:"path"`
					Live            bool                        `json:"live"`
					AdaptationSets  int                         `json:"adaptation_sets"`
					Representations []assets.RepresentationMeta `json:"representations"`
				}{path, mpd.Live(), sets, mpd.Metadata()}); err != nil {
					return err
				}
			} else {
				printManifest(cmd.OutOrStdout(), path, mpd)
			}

			switch {
			case sets == 0:
				return fmt.Errorf("%w: no adaptation sets", assets.ErrInvalidManifest)
			case video < minVideo:
				return fmt.Errorf("%w: %d video representations, want at least %d", assets.ErrInvalidManifest, video, minVideo)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&minVideo, "min-video", 1, "Minimum number of video representations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print representations as JSON")
	return cmd
}

// resolveManifest returns target itself, or the only manifest in target
// when it is a directory.
func resolveManifest(target string) (string, error) {
	fi, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return target, nil
	}

	am, err := assets.New(target, logging.GetLogger("assets"))
	if err != nil {
		return "", err
	}
	manifests, err := am.Manifests()
	if err != nil {
		return "", err
	}
	switch len(manifests) {
	case 0:
		return "", fmt.Errorf("%w in %s", assets.ErrNoManifest, target)
	case 1:
		return manifests[0], nil
	default:
		return "", errors.New("several manifests in " + target + ": " + strings.Join(manifests, ", "))
	}
}
