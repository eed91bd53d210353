package streamgear

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/events"
	"github.com/smazurov/streamgear/internal/frame"
	"github.com/smazurov/streamgear/internal/logging"
	"github.com/smazurov/streamgear/internal/params"
)

// fakeFFmpeg records its arguments next to itself, drains stdin and writes a
// manifest listing the primary size (-s, or 320x240 for file inputs) plus
// every -s:v:N rendition.
const fakeFFmpeg = `#!/bin/sh
printf '%s\n' "$@" > "$(dirname "$0")/args"
out=""; prim="320x240"; rate="30/1"; reps=""; type="static"; audio=""
while [ $# -gt 0 ]; do
  case "$1" in
    -s) prim="$2"; shift ;;
    -framerate) rate="$2"; shift ;;
    -s:v:*) reps="$reps $2"; shift ;;
    -window_size) type="dynamic" ;;
    -c:a) audio=1 ;;
  esac
  out="$1"
  shift
done
cat > /dev/null
{
  echo '<?xml version="1.0" encoding="utf-8"?>'
  echo "<MPD xmlns=\"urn:mpeg:dash:schema:mpd:2011\" type=\"$type\">"
  echo '<Period id="0">'
  echo "<AdaptationSet id=\"0\" contentType=\"video\" frameRate=\"$rate\">"
  i=0
  for r in $prim $reps; do
    echo "<Representation id=\"$i\" mimeType=\"video/mp4\" bandwidth=\"1000\" width=\"${r%x*}\" height=\"${r#*x}\"/>"
    i=$((i+1))
  done
  echo '</AdaptationSet>'
  if [ -n "$audio" ]; then
    echo "<AdaptationSet id=\"1\" contentType=\"audio\"><Representation id=\"$i\" mimeType=\"audio/mp4\" bandwidth=\"128000\" audioSamplingRate=\"48000\"/></AdaptationSet>"
  fi
  echo '</Period>'
  echo '</MPD>'
} > "$out"
`

// fakeFFprobe reports a 320x240 video with audio, audio only for paths
// containing "audio", and nothing for paths containing "silent".
const fakeFFprobe = `#!/bin/sh
for last; do :; done
case "$last" in
  *audio*) echo codec_type=audio ;;
  *silent*) ;;
  *) printf 'codec_type=video\nwidth=320\nheight=240\nr_frame_rate=30/1\ncodec_type=audio\n' ;;
esac
`

type harness struct {
	bin    string
	output string
	inputs string
}

func newHarness(t *testing.T, ffmpegScript string) *harness {
	t.Helper()
	h := &harness{
		bin:    t.TempDir(),
		output: filepath.Join(t.TempDir(), "dash"),
		inputs: t.TempDir(),
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.bin, "ffmpeg"), []byte(ffmpegScript), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.bin, "ffprobe"), []byte(fakeFFprobe), 0o755))
	return h
}

// input creates an empty file so the path passes source validation.
func (h *harness) input(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.inputs, name)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func (h *harness) options() Options {
	return Options{
		FFmpegBin:       filepath.Join(h.bin, "ffmpeg"),
		FFprobeBin:      filepath.Join(h.bin, "ffprobe"),
		GracefulTimeout: 300 * time.Millisecond,
		KillTimeout:     time.Second,
		Logger:          logging.Discard(),
	}
}

func (h *harness) args(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.bin, "args"))
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func videoSizes(t *testing.T, manifest string) []string {
	t.Helper()
	mpd, err := assets.ReadManifest(manifest)
	require.NoError(t, err)
	var sizes []string
	for _, r := range mpd.Metadata() {
		if r.IsVideo() {
			sizes = append(sizes, fmt.Sprintf("%dx%d", r.Width, r.Height))
		}
	}
	return sizes
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		cfg  params.Config
		want Mode
	}{
		{params.Config{}, ModeRealTime},
		{params.Config{Livestream: true}, ModeRealTimeLive},
		{params.Config{VideoSource: "in.mp4"}, ModeSingleSource},
		{params.Config{VideoSource: "in.mp4", Livestream: true}, ModeSingleSource},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectMode(tt.cfg), "%+v", tt.cfg)
	}
}

func TestNewBadOutput(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	_, err := New(filepath.Join(h.inputs, "out.txt"), nil, h.options())
	assert.ErrorIs(t, err, assets.ErrBadOutput)
}

func TestNewClearsPreviousAssets(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	require.NoError(t, os.MkdirAll(h.output, 0o755))
	stale := filepath.Join(h.output, "old.mpd")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	_, err := New(h.output, map[string]any{"-clear_prev_assets": true}, h.options())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestInvalidSourceFallsBackToRealTime(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, map[string]any{"-video_source": filepath.Join(h.inputs, "missing.mp4")}, h.options())
	require.NoError(t, err)
	assert.Equal(t, ModeRealTime, s.Mode())
	require.NotEmpty(t, s.Issues())
	assert.Equal(t, params.KeyVideoSource, s.Issues()[0].Key)
}

func TestSingleSourceTranscode(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, map[string]any{
		"-video_source":      h.input(t, "video.mp4"),
		"-clear_prev_assets": true,
	}, h.options())
	require.NoError(t, err)
	require.Equal(t, ModeSingleSource, s.Mode())

	require.NoError(t, s.Transcode(context.Background()))
	assert.ErrorIs(t, s.Transcode(context.Background()), ErrAlreadyRan)
	require.NoError(t, s.Terminate())
	require.NoError(t, s.Terminate())

	manifests, err := filepath.Glob(filepath.Join(h.output, "*.mpd"))
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, []string{"320x240"}, videoSizes(t, manifests[0]))

	args := h.args(t)
	src, _ := argValue(args, "-i")
	assert.Equal(t, filepath.Join(h.inputs, "video.mp4"), src)
	assert.Contains(t, args, "-c:a", "source audio is kept")
	assert.Equal(t, StateTerminated, s.State())
	assert.Equal(t, []string{"320x240"}, s.Status().Targets)
}

func TestSingleSourceLivestreamManifest(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, map[string]any{
		"-video_source": h.input(t, "video.mp4"),
		"-livestream":   true,
	}, h.options())
	require.NoError(t, err)
	require.Equal(t, ModeSingleSource, s.Mode())

	require.NoError(t, s.Transcode(context.Background()))
	mpd, err := assets.ReadManifest(s.ManifestPath())
	require.NoError(t, err)
	assert.True(t, mpd.Live())
	require.NoError(t, s.Terminate())
}

func TestSingleSourceAudio(t *testing.T) {
	t.Run("custom audio", func(t *testing.T) {
		h := newHarness(t, fakeFFmpeg)
		audio := h.input(t, "audio.aac")
		s, err := New(h.output, map[string]any{
			"-video_source": h.input(t, "video.mp4"),
			"-audio":        audio,
		}, h.options())
		require.NoError(t, err)
		require.NoError(t, s.Transcode(context.Background()))
		require.NoError(t, s.Terminate())

		assert.Contains(t, h.args(t), audio)
		_, _, audioReps := mustCounts(t, s.ManifestPath())
		assert.Equal(t, 1, audioReps)
	})

	t.Run("audio without stream is dropped", func(t *testing.T) {
		h := newHarness(t, fakeFFmpeg)
		silent := h.input(t, "silent.wav")
		s, err := New(h.output, map[string]any{
			"-video_source": h.input(t, "video.mp4"),
			"-audio":        silent,
		}, h.options())
		require.NoError(t, err)
		require.NoError(t, s.Transcode(context.Background()))
		require.NoError(t, s.Terminate())

		assert.NotContains(t, h.args(t), silent)
	})
}

func mustCounts(t *testing.T, manifest string) (int, int, int) {
	t.Helper()
	mpd, err := assets.ReadManifest(manifest)
	require.NoError(t, err)
	return mpd.Counts()
}

func TestSingleSourceFailure(t *testing.T) {
	h := newHarness(t, "#!/bin/sh\necho '[error] boom' >&2\nexit 1\n")
	s, err := New(h.output, map[string]any{"-video_source": h.input(t, "video.mp4")}, h.options())
	require.NoError(t, err)

	err = s.Transcode(context.Background())
	exitErr, ok := IsExitError(err)
	require.True(t, ok, "expected ExitError, got %v", err)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, exitErr.Error(), "boom")
	assert.Equal(t, StateFailed, s.State())

	require.NoError(t, s.Terminate())
	assert.Equal(t, StateFailed, s.State())
}

func TestFeedInSingleSourceMode(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, map[string]any{"-video_source": h.input(t, "video.mp4")}, h.options())
	require.NoError(t, err)

	err = s.Feed(frame.New(64, 48, 3))
	assert.ErrorIs(t, err, ErrWrongMode)
	assert.Nil(t, s.Plan())
	assert.NoFileExists(t, filepath.Join(h.bin, "args"), "no transcoder may be launched")
	require.NoError(t, s.Terminate())
}

func TestTranscodeInRealTimeMode(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, nil, h.options())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Transcode(context.Background()), ErrWrongMode)
	assert.ErrorIs(t, s.Terminate(), ErrNoFrames)
}

func TestRealTimeFeedThenTerminate(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, nil, h.options())
	require.NoError(t, err)

	require.NoError(t, s.Feed(frame.New(64, 48, 3)))
	require.NoError(t, s.Terminate())

	sizes := videoSizes(t, s.ManifestPath())
	assert.Equal(t, []string{"64x48"}, sizes)

	args := h.args(t)
	pixFmt, _ := argValue(args, "-pix_fmt")
	assert.Equal(t, "bgr24", pixFmt)
	rate, _ := argValue(args, "-framerate")
	assert.Equal(t, "25", rate, "default framerate")
	assert.Equal(t, int64(1), s.Status().FramesFed)
}

func TestRealTimeFramerateRoundTrip(t *testing.T) {
	for _, fps := range []float64{29.97, 24, 60, 12.5} {
		h := newHarness(t, fakeFFmpeg)
		s, err := New(h.output, map[string]any{"-input_framerate": fps}, h.options())
		require.NoError(t, err)

		require.NoError(t, s.Feed(frame.New(16, 16, 3)))
		require.NoError(t, s.Terminate())

		mpd, err := assets.ReadManifest(s.ManifestPath())
		require.NoError(t, err)
		meta := mpd.Metadata()
		require.NotEmpty(t, meta)
		got, err := assets.ParseFrameRate(meta[0].FrameRate)
		require.NoError(t, err)
		assert.InDelta(t, fps, got, 1, "framerate %q", meta[0].FrameRate)
	}
}

type fixedRate float64

func (r fixedRate) Framerate() float64 { return float64(r) }

func TestRealTimeFramerateFromSource(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	opts := h.options()
	opts.FramerateSource = fixedRate(24)
	s, err := New(h.output, map[string]any{"-input_framerate": "unknown"}, opts)
	require.NoError(t, err)

	require.NoError(t, s.Feed(frame.New(16, 16, 3)))
	require.NoError(t, s.Terminate())

	rate, _ := argValue(h.args(t), "-framerate")
	assert.Equal(t, "24", rate)
}

func TestRealTimeMultistream(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	bus := events.New()
	dropped := make(chan events.StreamDroppedEvent, 10)
	unsub := bus.Subscribe(func(e events.StreamDroppedEvent) { dropped <- e })
	defer unsub()

	opts := h.options()
	opts.Bus = bus
	s, err := New(h.output, map[string]any{
		"-clear_prev_assets": true,
		"-streams": []any{
			map[string]any{"-video_bitrate": "unknown"},
			map[string]any{"-resolution": "unxun"},
			map[string]any{"-resolution": "32x24", "-framerate": 20.0},
			map[string]any{"-resolution": "640x"},
			map[string]any{"-resolution": "16x12", "-video_bitrate": "100k"},
		},
	}, opts)
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, s.Feed(frame.New(64, 48, 3)))
	}
	require.NoError(t, s.Terminate())

	sizes := videoSizes(t, s.ManifestPath())
	assert.Equal(t, []string{"64x48", "32x24", "16x12"}, sizes)

	requested := map[string]bool{"64x48": true, "32x24": true, "16x12": true}
	for _, size := range sizes {
		assert.True(t, requested[size], "unrequested rendition %s", size)
	}

	args := h.args(t)
	bitrate, _ := argValue(args, "-b:v:2")
	assert.Equal(t, "100k", bitrate)
	rate, _ := argValue(args, "-r:v:1")
	assert.Equal(t, "20", rate)

	var reasons []string
	for range 3 {
		select {
		case e := <-dropped:
			reasons = append(reasons, e.Reason)
		case <-time.After(time.Second):
			t.Fatalf("expected 3 drop events, got %v", reasons)
		}
	}
}

func TestFeedErrors(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, nil, h.options())
	require.NoError(t, err)

	require.NoError(t, s.Feed(frame.New(64, 48, 3)))

	assert.ErrorIs(t, s.Feed(frame.New(32, 24, 3)), ErrFrameShape)
	assert.ErrorIs(t, s.Feed(frame.New(64, 48, 4)), ErrFrameShape)
	assert.ErrorIs(t, s.FeedRGB(frame.New(64, 48, 3)), ErrFrameShape, "channel order is part of the shape")
	assert.ErrorIs(t, s.Feed(nil), frame.ErrNilFrame)
	assert.ErrorIs(t, s.Feed(&frame.Frame{Width: 2, Height: 2, Channels: 3, Data: []byte{1}}), frame.ErrBadShape)

	require.NoError(t, s.Terminate())
	assert.ErrorIs(t, s.Feed(frame.New(64, 48, 3)), ErrTerminated)
	assert.NoError(t, s.Terminate())
}

func TestFeedRGB(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, nil, h.options())
	require.NoError(t, err)

	require.NoError(t, s.FeedRGB(frame.New(8, 8, 4)))
	require.NoError(t, s.Terminate())

	pixFmt, _ := argValue(h.args(t), "-pix_fmt")
	assert.Equal(t, "rgba", pixFmt)
}

func TestRemoveAtExit(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	s, err := New(h.output, map[string]any{"-remove_at_exit": true, "-livestream": true}, h.options())
	require.NoError(t, err)
	require.Equal(t, ModeRealTimeLive, s.Mode())

	require.NoError(t, s.Feed(frame.New(16, 16, 3)))
	require.NoError(t, s.Terminate())

	assert.NoDirExists(t, h.output)
	assert.Contains(t, h.args(t), "-window_size")
}

func TestRemoveAtExitKeepsSharedDirectory(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	require.NoError(t, os.MkdirAll(h.output, 0o755))
	notes := filepath.Join(h.output, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("keep"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(h.output, "photos"), 0o755))

	s, err := New(filepath.Join(h.output, "show.mpd"), map[string]any{
		"-clear_prev_assets": true,
		"-remove_at_exit":    true,
	}, h.options())
	require.NoError(t, err)
	assert.FileExists(t, notes)
	assert.DirExists(t, filepath.Join(h.output, "photos"))

	require.NoError(t, s.Feed(frame.New(16, 16, 3)))
	require.NoError(t, s.Terminate())

	assert.NoFileExists(t, s.ManifestPath())
	assert.FileExists(t, notes)
	assert.DirExists(t, filepath.Join(h.output, "photos"))
}

func TestSequentialSessionsShareDirectory(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)

	first, err := New(h.output, nil, h.options())
	require.NoError(t, err)
	require.NoError(t, first.Feed(frame.New(16, 16, 3)))
	require.NoError(t, first.Terminate())

	second, err := New(h.output, map[string]any{"-livestream": true}, h.options())
	require.NoError(t, err)
	require.NoError(t, second.Feed(frame.New(32, 16, 3)))
	require.NoError(t, second.Terminate())
	assert.Equal(t, StateTerminated, second.State())

	assert.FileExists(t, first.ManifestPath())
	assert.Equal(t, []string{"32x16"}, videoSizes(t, second.ManifestPath()))
}

func TestTerminateKillsHungTranscoder(t *testing.T) {
	h := newHarness(t, "#!/bin/sh\ntrap '' INT\nsleep 10\n")
	s, err := New(h.output, nil, h.options())
	require.NoError(t, err)

	require.NoError(t, s.Feed(frame.New(16, 16, 3)))

	start := time.Now()
	err = s.Terminate()
	exitErr, ok := IsExitError(err)
	require.True(t, ok, "expected ExitError, got %v", err)
	assert.Equal(t, 137, exitErr.Code)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestParamEvents(t *testing.T) {
	h := newHarness(t, fakeFFmpeg)
	bus := events.New()
	rejected := make(chan events.ParamRejectedEvent, 10)
	unsub := bus.Subscribe(func(e events.ParamRejectedEvent) { rejected <- e })
	defer unsub()

	opts := h.options()
	opts.Bus = bus
	_, err := New(h.output, map[string]any{"-bpp": "lots"}, opts)
	require.NoError(t, err)

	select {
	case e := <-rejected:
		assert.Equal(t, "-bpp", e.Key)
		assert.Equal(t, "lots", e.Value)
	case <-time.After(time.Second):
		t.Fatal("expected a param rejected event")
	}
}
