package pipeline

import (
	"bytes"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/mdouchement/depot/internal/xpath"
	"github.com/pkg/errors"
)

// MaxImageEdge is the default bound of the longest edge of a downscaled image.
const MaxImageEdge = 1000

var formats = map[string]imaging.Format{
	"image/png":  imaging.PNG,
	"image/jpeg": imaging.JPEG,
	"image/gif":  imaging.GIF,
}

// ImageFormat returns the raster format matching the content type, if supported.
func ImageFormat(contentType string) (imaging.Format, bool) {
	format, ok := formats[xpath.MediaType(contentType)]
	return format, ok
}

// Downscale returns a Stage that bounds the longest edge of an image to maxEdge,
// preserving its aspect ratio. Images already within bounds are passed through untouched.
func Downscale(maxEdge int, format imaging.Format) Stage {
	return Transform(func(w io.Writer, r io.Reader) error {
		payload, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrap(err, "could not read image")
		}

		config, _, err := image.DecodeConfig(bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "could not decode image header")
		}

		if config.Width <= maxEdge && config.Height <= maxEdge {
			_, err = w.Write(payload)
			return err
		}

		img, err := imaging.Decode(bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "could not decode image")
		}

		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
		return errors.Wrap(imaging.Encode(w, img, format), "could not encode image")
	})
}
