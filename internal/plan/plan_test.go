package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var src = Source{Width: 1280, Height: 720, Framerate: 30}

func TestBuildPrimaryOnly(t *testing.T) {
	p := Build(src, Globals{BPP: 0.1}, nil)

	require.Len(t, p.Targets, 1)
	primary := p.Primary()
	assert.True(t, primary.Primary)
	assert.True(t, primary.Derived)
	assert.Equal(t, 1280, primary.Width)
	assert.Equal(t, 720, primary.Height)
	// 0.1 * 1280 * 720 * 30 = 2764800 -> 2765 kbit/s
	assert.Equal(t, int64(2765000), primary.VideoBitrate)
	assert.Empty(t, p.Secondary())
}

func TestBuildPrimaryOverrides(t *testing.T) {
	p := Build(src, Globals{BPP: 0.1, VideoBitrate: 4_000_000, AudioBitrate: 192_000}, nil)

	primary := p.Primary()
	assert.False(t, primary.Derived)
	assert.Equal(t, int64(4_000_000), primary.VideoBitrate)
	assert.Equal(t, int64(192_000), primary.AudioBitrate)
}

func TestBuildMixedDescriptors(t *testing.T) {
	descriptors := []Descriptor{
		{VideoBitrate: "unknown"},
		{Resolution: "unxun"},
		{Resolution: "640x480", VideoBitrate: "unknown"},
		{Resolution: "640x480", Framerate: "unknown"},
		{Resolution: "320x240", Framerate: "20"},
	}

	p := Build(src, Globals{BPP: 0.1}, descriptors)

	var got []string
	for _, target := range p.Targets {
		got = append(got, target.Resolution())
	}
	want := []string{"1280x720", "640x480", "320x240"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, p.Drops, 3)
	assert.Equal(t, 0, p.Drops[0].Index)
	assert.Equal(t, "missing resolution", p.Drops[0].Reason)
	assert.Equal(t, 1, p.Drops[1].Index)
	assert.Equal(t, 3, p.Drops[2].Index)
	assert.Equal(t, "duplicate resolution", p.Drops[2].Reason)

	require.Len(t, p.Fallbacks, 1)
	assert.Equal(t, "-video_bitrate", p.Fallbacks[0].Field)

	vga := p.Targets[1]
	assert.True(t, vga.Derived, "invalid bitrate falls back to the derived one")
	assert.Equal(t, DeriveBitrate(0.1, 640, 480, 30), vga.VideoBitrate)

	small := p.Targets[2]
	assert.InDelta(t, 20.0, small.Framerate, 1e-9)
	assert.Equal(t, DeriveBitrate(0.1, 320, 240, 20), small.VideoBitrate)
}

func TestBuildExplicitBitrates(t *testing.T) {
	p := Build(src, Globals{BPP: 0.1}, []Descriptor{
		{Resolution: "640X480", VideoBitrate: "850k", AudioBitrate: "128k"},
	})

	require.Len(t, p.Targets, 2)
	vga := p.Targets[1]
	assert.False(t, vga.Derived)
	assert.Equal(t, int64(850_000), vga.VideoBitrate)
	assert.Equal(t, int64(128_000), vga.AudioBitrate)
	assert.Empty(t, p.Fallbacks)
}

func TestBuildDropsPrimaryDuplicate(t *testing.T) {
	p := Build(src, Globals{BPP: 0.1}, []Descriptor{{Resolution: "1280x720"}})
	assert.Len(t, p.Targets, 1)
	require.Len(t, p.Drops, 1)
	assert.Equal(t, "duplicate resolution", p.Drops[0].Reason)
}

func TestBuildCountBound(t *testing.T) {
	descriptors := []Descriptor{
		{Resolution: "a"}, {Resolution: "320x240"}, {Resolution: "0x10"},
		{Resolution: "160x120"}, {Resolution: "160x120"}, {Resolution: "-1x5"},
	}
	p := Build(src, Globals{BPP: 0.1}, descriptors)

	assert.LessOrEqual(t, len(p.Targets), len(descriptors)+1)
	assert.Equal(t, len(descriptors)+1, len(p.Targets)+len(p.Drops))
}

func TestBuildOrderIndependentDrops(t *testing.T) {
	valid := []Descriptor{{Resolution: "640x360"}, {Resolution: "320x180"}}
	bad := Descriptor{Resolution: "bad"}

	for pos := 0; pos <= len(valid); pos++ {
		descriptors := append([]Descriptor{}, valid[:pos]...)
		descriptors = append(descriptors, bad)
		descriptors = append(descriptors, valid[pos:]...)

		p := Build(src, Globals{BPP: 0.1}, descriptors)
		assert.Len(t, p.Targets, 3, "bad descriptor at %d", pos)
	}
}

func TestBuildUnknownSourceFramerate(t *testing.T) {
	p := Build(Source{Width: 320, Height: 240}, Globals{BPP: 0.1}, nil)
	assert.InDelta(t, DefaultFramerate, p.Primary().Framerate, 1e-9)
}

func TestDeriveBitrate(t *testing.T) {
	tests := []struct {
		name string
		bpp  float64
		w, h int
		fps  float64
		want int64
	}{
		{"720p30", 0.1, 1280, 720, 30, 2_765_000},
		{"rounds half up", 0.5, 1, 1, 1000, 1_000},
		{"rounds down", 0.1, 10, 10, 10, 1_000},
		{"minimum", 0.0001, 2, 2, 1, 1_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveBitrate(tt.bpp, tt.w, tt.h, tt.fps))
		})
	}
}
