package tiles

import (
	"bytes"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/zeromv/zeromv/pkg/errors"
)

// Open decodes the image file at path, applying EXIF orientation.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "open image %s", path)
	}
	return img, nil
}

// Decode reads an image in any registered format from r.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode image")
	}
	return img, nil
}

// DecodeLimited reads an image from r like [Decode], refusing images whose
// header declares more than maxPixels pixels before any pixel data is
// allocated.
func DecodeLimited(r io.Reader, maxPixels int64) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode image header")
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"image is %dx%d, more than %d pixels", cfg.Width, cfg.Height, maxPixels)
	}
	return Decode(bytes.NewReader(data))
}

// EncodePNG writes img to w as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// PNGBytes returns img encoded as PNG.
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
