package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/streamgear/internal/assets"
)

// printManifest writes a table of the representations in mpd.
func printManifest(w io.Writer, path string, mpd *assets.MPD) {
	sets, video, audio := mpd.Counts()
	kind := "static"
	if mpd.Live() {
		kind = "dynamic"
	}
	fmt.Fprintf(w, "%s (%s): %d adaptation sets, %d video, %d audio\n", path, kind, sets, video, audio)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSIZE\tFPS\tBANDWIDTH\tSAMPLE RATE")
	for _, r := range mpd.Metadata() {
		size := "-"
		if r.Width > 0 && r.Height > 0 {
			size = fmt.Sprintf("%dx%d", r.Width, r.Height)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.MimeType, size, dash(r.FrameRate), r.Bandwidth, dash(r.AudioSamplingRate))
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
