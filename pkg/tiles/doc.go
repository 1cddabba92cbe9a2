// Package tiles implements the image geometry of a multi-view run.
//
// # Splitting
//
// A generation backend returns one composite image holding six rendered
// views. [Split] infers the grid shape from the composite's pixel size by
// trying [Candidates] in priority order (6×1, 3×2, 2×3, 1×6) and crops the
// first shape that divides the image evenly into six equal tiles, in
// row-major order:
//
//	res, err := tiles.Split(composite)
//	if err != nil {
//	    return err // nil, zero-sized or undecodable input
//	}
//	if res.Fallback {
//	    // no shape matched; res.Tiles holds a copy of the composite
//	}
//
// Failing to match a shape is not an error. The result then carries the
// whole composite as its single tile and callers decide how strict to be.
//
// # Contact Sheets
//
// [Compose] arranges same-size images into a grid of cols columns on an
// opaque black canvas. Image i lands at cell (i/cols, i%cols); unused cells
// keep the background.
//
//	sheet, err := tiles.Compose(res.Tiles, tiles.DefaultColumns(len(res.Tiles)))
//
// # Conditioning
//
// [ToSquare] pads an input photo to a centered square before it is handed
// to a backend.
//
// All returned images are independent *image.NRGBA copies; nothing aliases
// the source pixels.
package tiles
