package plan

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errBadResolution = errors.New("resolution must be <width>x<height>")
	errBadBitrate    = errors.New("bitrate must be a positive number with optional k or M suffix")
)

// ParseResolution parses "WxH" with a case-insensitive separator and
// surrounding spaces allowed around each token.
func ParseResolution(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, errBadResolution
	}
	w, err := positiveInt(parts[0])
	if err != nil {
		return 0, 0, errBadResolution
	}
	h, err := positiveInt(parts[1])
	if err != nil {
		return 0, 0, errBadResolution
	}
	return w, h, nil
}

func positiveInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// ParseBitrate parses an ffmpeg style bitrate ("850k", "2M", "128000") into
// bits per second.
func ParseBitrate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"), strings.HasSuffix(s, "K"):
		mult = 1e3
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1e6
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !(v > 0) || math.IsInf(v, 0) {
		return 0, errBadBitrate
	}
	scaled := math.Round(v * mult)
	// float64(MaxInt64) rounds up to 2^63, which does not fit.
	if scaled >= math.MaxInt64 {
		return 0, errBadBitrate
	}
	bits := int64(scaled)
	if bits <= 0 {
		return 0, errBadBitrate
	}
	return bits, nil
}

// FormatBitrate renders bits/s the way ffmpeg accepts it, using the k suffix
// when the value is a whole number of kbit/s.
func FormatBitrate(bits int64) string {
	if bits%1000 == 0 {
		return fmt.Sprintf("%dk", bits/1000)
	}
	return strconv.FormatInt(bits, 10)
}
