package tiles

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/zeromv/zeromv/pkg/errors"
)

// MaxDefaultColumns caps the column count picked by [DefaultColumns].
const MaxDefaultColumns = 8

// Background is the fill color of contact sheet cells without an image.
var Background = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// DefaultColumns returns min(MaxDefaultColumns, n), and at least 1.
func DefaultColumns(n int) int {
	return max(1, min(MaxDefaultColumns, n))
}

// MaxSheetPixels bounds the canvas of a contact sheet (512 MiB as NRGBA).
const MaxSheetPixels = 1 << 27

// SheetSize returns the canvas size of a contact sheet holding n cells of
// size cell in cols columns. It returns a SHEET_TOO_LARGE error when the
// canvas would exceed [MaxSheetPixels].
func SheetSize(n, cols int, cell image.Point) (image.Point, error) {
	if n <= 0 || cols <= 0 || cell.X <= 0 || cell.Y <= 0 {
		return image.Point{}, errors.New(errors.ErrCodeInvalidInput,
			"invalid sheet geometry: %d cells, %d columns, %dx%d", n, cols, cell.X, cell.Y)
	}
	rows := (n-1)/cols + 1
	if cols > MaxSheetPixels/cell.X || rows > MaxSheetPixels/cell.Y {
		return image.Point{}, tooLarge(cols, rows, cell)
	}
	size := image.Pt(cols*cell.X, rows*cell.Y)
	if int64(size.X)*int64(size.Y) > MaxSheetPixels {
		return image.Point{}, tooLarge(cols, rows, cell)
	}
	return size, nil
}

func tooLarge(cols, rows int, cell image.Point) error {
	return errors.New(errors.ErrCodeSheetTooLarge,
		"%dx%d cells of %dx%d exceed %d pixels", cols, rows, cell.X, cell.Y, MaxSheetPixels)
}

// Compose arranges images into a contact sheet with cols columns and
// ceil(len(images)/cols) rows. Every cell has the size of the first image.
// A cols value <= 0 selects [DefaultColumns].
//
// It returns a NO_IMAGES error for an empty sequence, an
// INCONSISTENT_TILE_SIZE error when any image differs in size from the
// first, and a SHEET_TOO_LARGE error when the canvas would exceed
// [MaxSheetPixels]. No partial sheet is produced in any of these cases.
func Compose(images []image.Image, cols int) (*image.NRGBA, error) {
	if len(images) == 0 {
		return nil, errors.New(errors.ErrCodeNoImages, "no images to compose")
	}
	if cols <= 0 {
		cols = DefaultColumns(len(images))
	}

	first := images[0]
	if first == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "image 0 is nil")
	}
	cell := first.Bounds().Size()
	if cell.X <= 0 || cell.Y <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "image 0 is empty (%dx%d)", cell.X, cell.Y)
	}
	for i, im := range images[1:] {
		if im == nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "image %d is nil", i+1)
		}
		if sz := im.Bounds().Size(); sz != cell {
			return nil, errors.New(errors.ErrCodeInconsistentTileSize,
				"image %d is %dx%d, want %dx%d", i+1, sz.X, sz.Y, cell.X, cell.Y)
		}
	}

	size, err := SheetSize(len(images), cols, cell)
	if err != nil {
		return nil, err
	}
	sheet := imaging.New(size.X, size.Y, Background)
	for i, im := range images {
		at := image.Pt((i%cols)*cell.X, (i/cols)*cell.Y)
		draw.Draw(sheet, image.Rectangle{Min: at, Max: at.Add(cell)}, im, im.Bounds().Min, draw.Src)
	}
	return sheet, nil
}
