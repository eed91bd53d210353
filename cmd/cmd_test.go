package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/streamgear/internal/assets"
	"github.com/smazurov/streamgear/internal/params"
)

const sampleManifest = `<?xml version="1.0" encoding="utf-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic">
  <Period id="0">
    <AdaptationSet id="0" contentType="video" mimeType="video/mp4" frameRate="30000/1001">
      <Representation id="0" bandwidth="1000000" width="640" height="360"/>
      <Representation id="1" bandwidth="300000" width="320" height="180"/>
    </AdaptationSet>
    <AdaptationSet id="1" contentType="audio" mimeType="audio/mp4">
      <Representation id="2" bandwidth="96000" audioSamplingRate="44100"/>
    </AdaptationSet>
  </Period>
</MPD>
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseStreamFlag(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]any
	}{
		{"640x360", map[string]any{"-resolution": "640x360"}},
		{"640x360,800k", map[string]any{"-resolution": "640x360", "-video_bitrate": "800k"}},
		{"640x360,,96k,30", map[string]any{"-resolution": "640x360", "-audio_bitrate": "96k", "-framerate": "30"}},
		{" 320x180 , 200k ", map[string]any{"-resolution": "320x180", "-video_bitrate": "200k"}},
		{"", map[string]any{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseStreamFlag(tt.in), "input %q", tt.in)
	}
}

func TestSessionFlagsRaw(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "params.toml", `
"-bpp" = 0.2
"-gop" = 50
`)

	flags := sessionFlags{
		paramsFile: file,
		set:        []string{"-gop=60", "livestream=true", "-preset=veryfast"},
		streams:    []string{"320x180,200k"},
	}
	raw, err := flags.raw()
	require.NoError(t, err)

	assert.InDelta(t, 0.2, raw["-bpp"], 1e-9)
	assert.Equal(t, "60", raw["-gop"])
	assert.Equal(t, "true", raw["-livestream"])
	assert.Equal(t, "veryfast", raw["-preset"])

	cfg, issues := params.Normalize(raw)
	assert.Empty(t, issues)
	assert.Equal(t, 60, cfg.GOP)
	assert.True(t, cfg.Livestream)
	require.Len(t, cfg.Streams, 1)
	assert.Equal(t, "320x180", cfg.Streams[0].Resolution)
	assert.Equal(t, map[string]string{"-preset": "veryfast"}, cfg.Passthrough)
}

func TestSessionFlagsRawErrors(t *testing.T) {
	_, err := (&sessionFlags{set: []string{"novalue"}}).raw()
	assert.Error(t, err)

	_, err = (&sessionFlags{paramsFile: filepath.Join(t.TempDir(), "missing.toml")}).raw()
	assert.Error(t, err)
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "out.mpd", sampleManifest)

	run := func(args ...string) (string, error) {
		cmd := CreateValidateCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run(manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "(dynamic): 2 adaptation sets, 2 video, 1 audio")
	assert.Contains(t, out, "640x360")
	assert.Contains(t, out, "30000/1001")
	assert.Contains(t, out, "44100")

	_, err = run(dir)
	require.NoError(t, err, "a directory with one manifest resolves to it")

	_, err = run("--min-video", "3", manifest)
	assert.ErrorIs(t, err, assets.ErrInvalidManifest)

	out, err = run("--json", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, `"adaptation_sets": 2`)
	assert.Contains(t, out, `"mime_type": "audio/mp4"`)

	writeFile(t, dir, "other.mpd", sampleManifest)
	_, err = run(dir)
	assert.ErrorContains(t, err, "several manifests")

	_, err = run(t.TempDir())
	assert.ErrorIs(t, err, assets.ErrNoManifest)
}

func TestParamsCmd(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "params.toml", `
"-bpp" = "lots"
"-livestream" = 1
"-i" = "other.mp4"
`)
	normalized := filepath.Join(dir, "normalized.toml")

	cmd := CreateParamsCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--write", normalized, file})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), "-bpp=lots")
	assert.Contains(t, errOut.String(), "-i=other.mp4")
	assert.Regexp(t, `-livestream['"]? = true`, out.String())
	assert.NotContains(t, out.String(), "other.mp4")

	// Normalizing the saved file changes nothing.
	again := CreateParamsCmd()
	var out2, errOut2 bytes.Buffer
	again.SetOut(&out2)
	again.SetErr(&errOut2)
	again.SetArgs([]string{"--strict", normalized})
	require.NoError(t, again.Execute())
	assert.Empty(t, errOut2.String())
	assert.Equal(t, out.String(), out2.String())

	strict := CreateParamsCmd()
	strict.SetOut(&bytes.Buffer{})
	strict.SetErr(&bytes.Buffer{})
	strict.SetArgs([]string{"--strict", file})
	assert.Error(t, strict.Execute())
}
