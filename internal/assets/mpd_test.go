package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadManifestMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.mpd")
	require.NoError(t, os.WriteFile(path, []byte(sampleMPD), 0o644))

	mpd, err := ReadManifest(path)
	require.NoError(t, err)

	want := []RepresentationMeta{
		{ID: "0", MimeType: "video/mp4", Bandwidth: 2765000, Width: 1280, Height: 720, FrameRate: "30000/1001"},
		{ID: "1", MimeType: "video/mp4", Bandwidth: 850000, Width: 640, Height: 480, FrameRate: "30000/1001"},
		{ID: "2", MimeType: "audio/mp4", Bandwidth: 128000, AudioSamplingRate: "48000"},
	}
	if diff := cmp.Diff(want, mpd.Metadata()); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	sets, video, audio := mpd.Counts()
	assert.Equal(t, 2, sets)
	assert.Equal(t, 2, video)
	assert.Equal(t, 1, audio)
}

func TestMetadataInheritance(t *testing.T) {
	const doc = `<MPD type="dynamic">
	<Period>
		<AdaptationSet contentType="video" mimeType="video/mp4">
			<Representation id="a" width="320" height="240" frameRate="20/1"/>
			<Representation id="b" width="640" height="480"/>
		</AdaptationSet>
		<AdaptationSet contentType="video" frameRate="25/1">
			<Representation id="c" width="160" height="120"/>
		</AdaptationSet>
	</Period>
</MPD>`
	path := filepath.Join(t.TempDir(), "live.mpd")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	mpd, err := ReadManifest(path)
	require.NoError(t, err)
	assert.True(t, mpd.Live())

	metas := mpd.Metadata()
	require.Len(t, metas, 3)
	assert.Equal(t, "video/mp4", metas[0].MimeType)
	assert.Equal(t, "20/1", metas[0].FrameRate)
	// Falls back to the first adaptation set that declares a rate.
	assert.Equal(t, "25/1", metas[1].FrameRate)
	assert.Equal(t, "video/mp4", metas[2].MimeType, "mime type derived from content type")
	assert.Equal(t, "25/1", metas[2].FrameRate)
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "nope.mpd"))
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestParseFrameRate(t *testing.T) {
	rate, err := ParseFrameRate("30000/1001")
	require.NoError(t, err)
	assert.Equal(t, 30.0, float64(int(rate+0.5)))

	rate, err = ParseFrameRate("25")
	require.NoError(t, err)
	assert.InDelta(t, 25.0, rate, 1e-9)

	_, err = ParseFrameRate("")
	assert.Error(t, err)
}
