package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"640x480", 640, 480, false},
		{"640X480", 640, 480, false},
		{" 320 x 240 ", 320, 240, false},
		{"unxun", 0, 0, true},
		{"640", 0, 0, true},
		{"640x480x2", 0, 0, true},
		{"0x480", 0, 0, true},
		{"-640x480", 0, 0, true},
		{"+640x480", 0, 0, true},
		{"640.5x480", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := ParseResolution(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"850k", 850_000, false},
		{"1350K", 1_350_000, false},
		{"2M", 2_000_000, false},
		{"1.5M", 1_500_000, false},
		{"128000", 128_000, false},
		{"unknown", 0, true},
		{"k", 0, true},
		{"-5k", 0, true},
		{"0", 0, true},
		{"NaN", 0, true},
		{"1e300M", 0, true},
		{"1e16k", 0, true},
		{"9223372036854775807", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBitrate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatBitrate(t *testing.T) {
	assert.Equal(t, "850k", FormatBitrate(850_000))
	assert.Equal(t, "128500", FormatBitrate(128_500))
}
