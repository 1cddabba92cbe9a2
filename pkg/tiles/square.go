package tiles

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DefaultMinSide is the smallest square side handed to a backend.
const DefaultMinSide = 320

// ToSquare pads img to a centered square of side max(w, h, minSide). The
// padding uses the color of img's top-left pixel, or black for an empty
// image.
func ToSquare(img image.Image, minSide int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	side := max(w, h, minSide)

	var fill color.Color = color.Black
	if w > 0 && h > 0 {
		fill = img.At(b.Min.X, b.Min.Y)
	}

	bg := imaging.New(side, side, fill)
	if w == 0 || h == 0 {
		return bg
	}
	return imaging.Paste(bg, img, image.Pt((side-w)/2, (side-h)/2))
}
