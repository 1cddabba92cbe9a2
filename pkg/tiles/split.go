package tiles

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/zeromv/zeromv/pkg/errors"
)

// ViewCount is the number of views in a complete tile set.
const ViewCount = 6

// Shape is a grid layout of Cols columns by Rows rows.
type Shape struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Count returns the number of cells in the shape.
func (s Shape) Count() int { return s.Cols * s.Rows }

// String returns the shape as "COLSxROWS".
func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Cols, s.Rows) }

// IsZero reports whether s is the zero shape used for fallback results.
func (s Shape) IsZero() bool { return s.Cols == 0 && s.Rows == 0 }

// fits reports whether s divides a w×h image into ViewCount equal cells.
func (s Shape) fits(w, h int) bool {
	if s.Cols <= 0 || s.Rows <= 0 || s.Count() != ViewCount {
		return false
	}
	return w%s.Cols == 0 && h%s.Rows == 0 && w >= s.Cols && h >= s.Rows
}

// Candidates lists the supported grid shapes in priority order.
// The first shape that fits wins.
var Candidates = []Shape{
	{Cols: 6, Rows: 1},
	{Cols: 3, Rows: 2},
	{Cols: 2, Rows: 3},
	{Cols: 1, Rows: 6},
}

// Match returns the first candidate shape that splits a w×h image into six
// equal tiles. The boolean is false when no candidate fits.
func Match(w, h int) (Shape, bool) {
	for _, s := range Candidates {
		if s.fits(w, h) {
			return s, true
		}
	}
	return Shape{}, false
}

// Result is the outcome of splitting a composite.
type Result struct {
	// Tiles holds the extracted views in row-major order, or a single copy
	// of the composite when Fallback is set.
	Tiles []image.Image

	// Shape is the matched grid shape; zero on fallback.
	Shape Shape

	// TileSize is the pixel size shared by every tile.
	TileSize image.Point

	// Fallback is true when no candidate shape matched.
	Fallback bool
}

// Complete reports whether the result holds a full set of ViewCount tiles.
func (r Result) Complete() bool {
	return !r.Fallback && len(r.Tiles) == ViewCount
}

// Split divides composite into six tiles using the first matching shape in
// [Candidates]. When no shape matches it returns a fallback result whose only
// tile is a copy of the composite.
//
// Split never modifies composite. It returns an INVALID_INPUT error for a nil
// or zero-sized image only.
func Split(composite image.Image) (Result, error) {
	if composite == nil {
		return Result{}, errors.New(errors.ErrCodeInvalidInput, "composite image is nil")
	}
	b := composite.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Result{}, errors.New(errors.ErrCodeInvalidInput, "composite image is empty (%dx%d)", w, h)
	}

	shape, ok := Match(w, h)
	if !ok {
		return Result{
			Tiles:    []image.Image{imaging.Clone(composite)},
			TileSize: image.Pt(w, h),
			Fallback: true,
		}, nil
	}

	tw, th := w/shape.Cols, h/shape.Rows
	out := make([]image.Image, 0, shape.Count())
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			x0, y0 := b.Min.X+c*tw, b.Min.Y+r*th
			out = append(out, imaging.Crop(composite, image.Rect(x0, y0, x0+tw, y0+th)))
		}
	}

	return Result{
		Tiles:    out,
		Shape:    shape,
		TileSize: image.Pt(tw, th),
	}, nil
}
