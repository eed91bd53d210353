package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var errBadPercentage = errors.New("reduction percentage must be greater than 0 and less than 90")

// Reduce shrinks f by percentage of its size in each dimension.
func Reduce(f *Frame, percentage float64) (*Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !(percentage > 0 && percentage < 90) {
		return nil, fmt.Errorf("%w: got %v", errBadPercentage, percentage)
	}

	w := max(int(float64(f.Width)*(100-percentage)/100), 1)
	h := max(int(float64(f.Height)*(100-percentage)/100), 1)

	resized := imaging.Resize(f.ToImage(), w, h, imaging.Lanczos)
	return FromImage(resized, f.Shape()), nil
}

// Blank returns a black frame shaped like like, with text centred on it.
func Blank(like *Frame, text string) (*Frame, error) {
	if err := like.Validate(); err != nil {
		return nil, err
	}

	img := imaging.New(like.Width, like.Height, color.Black)
	if text != "" {
		drawCentered(img, text)
	}
	return FromImage(img, like.Shape()), nil
}

func drawCentered(img *image.NRGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
	}
	width := d.MeasureString(text)
	bounds := img.Bounds()
	x := (fixed.I(bounds.Dx()) - width) / 2
	y := fixed.I((bounds.Dy() + face.Metrics().Ascent.Ceil()) / 2)
	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
}
