// Package frame holds raw video frames as they are fed to the encoder:
// rows of interleaved 8-bit pixels in gray, BGR(A) or RGB(A) order.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Errors returned for malformed frames.
var (
	ErrNilFrame    = errors.New("nil frame")
	ErrBadShape    = errors.New("frame data does not match its shape")
	ErrBadChannels = errors.New("frame must have 1, 3 or 4 channels")
)

// Frame is one raw image. Data is Height rows of Width pixels of Channels bytes.
type Frame struct {
	Width    int
	Height   int
	Channels int
	// RGB marks 3 and 4 channel data as RGB(A) instead of BGR(A).
	RGB  bool
	Data []byte
}

// Shape identifies the layout of a frame stream.
type Shape struct {
	Width    int
	Height   int
	Channels int
	RGB      bool
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d (%s)", s.Width, s.Height, s.Channels, s.PixFmt())
}

// PixFmt returns the ffmpeg rawvideo pixel format for the shape.
func (s Shape) PixFmt() string {
	switch {
	case s.Channels == 1:
		return "gray"
	case s.Channels == 3 && s.RGB:
		return "rgb24"
	case s.Channels == 3:
		return "bgr24"
	case s.Channels == 4 && s.RGB:
		return "rgba"
	case s.Channels == 4:
		return "bgra"
	}
	return ""
}

// New allocates a black frame.
func New(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]byte, width*height*channels),
	}
}

// Shape returns the frame layout.
func (f *Frame) Shape() Shape {
	return Shape{Width: f.Width, Height: f.Height, Channels: f.Channels, RGB: f.RGB && f.Channels > 1}
}

// Validate checks that the data length matches the declared shape.
func (f *Frame) Validate() error {
	if f == nil {
		return ErrNilFrame
	}
	if f.Channels != 1 && f.Channels != 3 && f.Channels != 4 {
		return fmt.Errorf("%w: got %d", ErrBadChannels, f.Channels)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadShape, f.Width, f.Height)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return fmt.Errorf("%w: %d bytes for %s, want %d", ErrBadShape, len(f.Data), f.Shape(), want)
	}
	return nil
}

// ToImage converts the frame into an NRGBA image.
func (f *Frame) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, px := 0, 0; px < f.Width*f.Height; px++ {
		o := px * 4
		switch f.Channels {
		case 1:
			v := f.Data[i]
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 0xff
		default:
			r, g, b := f.Data[i+2], f.Data[i+1], f.Data[i]
			if f.RGB {
				r, b = b, r
			}
			a := byte(0xff)
			if f.Channels == 4 {
				a = f.Data[i+3]
			}
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, a
		}
		i += f.Channels
	}
	return img
}

// FromImage converts img into a frame with the given layout.
func FromImage(img image.Image, shape Shape) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), shape.Channels)
	f.RGB = shape.RGB

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			switch shape.Channels {
			case 1:
				f.Data[i] = color.GrayModel.Convert(c).(color.Gray).Y
			default:
				first, last := c.B, c.R
				if shape.RGB {
					first, last = c.R, c.B
				}
				f.Data[i], f.Data[i+1], f.Data[i+2] = first, c.G, last
				if shape.Channels == 4 {
					f.Data[i+3] = c.A
				}
			}
			i += shape.Channels
		}
	}
	return f
}
