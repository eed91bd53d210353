package assets

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/smazurov/streamgear/internal/ffmpeg"
)

// MPD is the subset of a DASH manifest streamgear checks.
type MPD struct {
	XMLName xml.Name `xml:"MPD"`
	Type    string   `xml:"type,attr"`
	Periods []Period `xml:"Period"`
}

// Period groups adaptation sets.
type Period struct {
	ID             string          `xml:"id,attr"`
	AdaptationSets []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet groups interchangeable representations.
type AdaptationSet struct {
	ID              string           `xml:"id,attr"`
	ContentType     string           `xml:"contentType,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	FrameRate       string           `xml:"frameRate,attr"`
	Representations []Representation `xml:"Representation"`
}

// Representation is one encoded rendition.
type Representation struct {
	ID                string `xml:"id,attr"`
	MimeType          string `xml:"mimeType,attr"`
	Codecs            string `xml:"codecs,attr"`
	Bandwidth         int64  `xml:"bandwidth,attr"`
	Width             int    `xml:"width,attr"`
	Height            int    `xml:"height,attr"`
	FrameRate         string `xml:"frameRate,attr"`
	AudioSamplingRate string `xml:"audioSamplingRate,attr"`
}

// RepresentationMeta is the flattened view of one representation, with
// attributes inherited from its adaptation set filled in.
type RepresentationMeta struct {
	ID                string `json:"id"`
	MimeType          string `json:"mime_type"`
	Bandwidth         int64  `json:"bandwidth,omitempty"`
	Width             int    `json:"width,omitempty"`
	Height            int    `json:"height,omitempty"`
	FrameRate         string `json:"framerate,omitempty"`
	AudioSamplingRate string `json:"audio_sampling_rate,omitempty"`
}

// IsVideo reports whether the representation carries video.
func (r RepresentationMeta) IsVideo() bool {
	return strings.HasPrefix(r.MimeType, "video")
}

// IsAudio reports whether the representation carries audio.
func (r RepresentationMeta) IsAudio() bool {
	return strings.HasPrefix(r.MimeType, "audio")
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*MPD, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoManifest, err)
	}
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, path, err)
	}
	return &mpd, nil
}

// Live reports whether the manifest is marked as continuously updating.
func (m *MPD) Live() bool {
	return m.Type == "dynamic"
}

// Metadata returns every representation in document order.
func (m *MPD) Metadata() []RepresentationMeta {
	var firstRate string
	for _, p := range m.Periods {
		for _, as := range p.AdaptationSets {
			if as.FrameRate != "" {
				firstRate = as.FrameRate
				break
			}
		}
		if firstRate != "" {
			break
		}
	}

	var metas []RepresentationMeta
	for _, p := range m.Periods {
		for _, as := range p.AdaptationSets {
			for _, r := range as.Representations {
				meta := RepresentationMeta{ID: r.ID, MimeType: r.MimeType, Bandwidth: r.Bandwidth}
				if meta.MimeType == "" {
					meta.MimeType = as.MimeType
				}
				if meta.MimeType == "" && as.ContentType != "" {
					meta.MimeType = as.ContentType + "/mp4"
				}
				if meta.IsAudio() {
					meta.AudioSamplingRate = r.AudioSamplingRate
				} else {
					meta.Width, meta.Height = r.Width, r.Height
					meta.FrameRate = firstNonEmpty(r.FrameRate, as.FrameRate, firstRate)
				}
				metas = append(metas, meta)
			}
		}
	}
	return metas
}

// Counts returns the number of adaptation sets and of video and audio
// representations.
func (m *MPD) Counts() (adaptationSets, video, audio int) {
	for _, p := range m.Periods {
		adaptationSets += len(p.AdaptationSets)
	}
	for _, meta := range m.Metadata() {
		switch {
		case meta.IsVideo():
			video++
		case meta.IsAudio():
			audio++
		}
	}
	return adaptationSets, video, audio
}

// ParseFrameRate converts a manifest frame rate such as "30000/1001" to fps.
func ParseFrameRate(s string) (float64, error) {
	return ffmpeg.ParseRate(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
