package pipeline_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/mdouchement/depot/internal/pipeline"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper() pipeline.Stage {
	return pipeline.Transform(func(w io.Writer, r io.Reader) error {
		payload, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		_, err = w.Write(bytes.ToUpper(payload))
		return err
	})
}

func suffix(s string) pipeline.Stage {
	return pipeline.Transform(func(w io.Writer, r io.Reader) error {
		if _, err := io.Copy(w, r); err != nil {
			return err
		}
		_, err := io.WriteString(w, s)
		return err
	})
}

func TestChain(t *testing.T) {
	rc := pipeline.Chain(strings.NewReader("hello"), upper(), suffix("!"))
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.Equal(t, "HELLO!", string(payload))
}

func TestChainWithoutStages(t *testing.T) {
	rc := pipeline.Chain(strings.NewReader("hello"))
	payload, err := io.ReadAll(rc)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
	assert.NoError(t, rc.Close())
}

func TestTransformError(t *testing.T) {
	boom := errors.New("boom")
	rc := pipeline.Chain(strings.NewReader("hello"), pipeline.Transform(func(io.Writer, io.Reader) error {
		return boom
	}))
	defer rc.Close()

	_, err := io.ReadAll(rc)
	assert.Equal(t, boom, err)
}

func TestChainEarlyClose(t *testing.T) {
	rc := pipeline.Chain(strings.NewReader(strings.Repeat("a", 1<<20)), suffix("!"))

	buf := make([]byte, 16)
	_, err := io.ReadFull(rc, buf)
	require.NoError(t, err)
	assert.NoError(t, rc.Close())

	_, err = rc.Read(buf)
	assert.Equal(t, io.ErrClosedPipe, err)
}

func encode(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 255, A: 255})
	}

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func TestImageFormat(t *testing.T) {
	format, ok := pipeline.ImageFormat("image/jpeg")
	assert.True(t, ok)
	assert.Equal(t, imaging.JPEG, format)

	format, ok = pipeline.ImageFormat("image/png; charset=binary")
	assert.True(t, ok)
	assert.Equal(t, imaging.PNG, format)

	_, ok = pipeline.ImageFormat("image/gif")
	assert.True(t, ok)

	_, ok = pipeline.ImageFormat("image/webp")
	assert.False(t, ok)
	_, ok = pipeline.ImageFormat("text/plain")
	assert.False(t, ok)
}

func TestDownscaleLandscape(t *testing.T) {
	rc := pipeline.Chain(bytes.NewReader(encode(t, 2000, 500, imaging.JPEG)), pipeline.Downscale(1000, imaging.JPEG))
	defer rc.Close()

	img, err := jpeg.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, 1000, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())
}

func TestDownscalePortrait(t *testing.T) {
	rc := pipeline.Chain(bytes.NewReader(encode(t, 600, 1500, imaging.PNG)), pipeline.Downscale(1000, imaging.PNG))
	defer rc.Close()

	img, err := png.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 1000, img.Bounds().Dy())
}

func TestDownscaleNeverUpscales(t *testing.T) {
	original := encode(t, 300, 200, imaging.PNG)

	rc := pipeline.Chain(bytes.NewReader(original), pipeline.Downscale(1000, imaging.PNG))
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, original, payload)
}

func TestDownscaleInvalidImage(t *testing.T) {
	rc := pipeline.Chain(strings.NewReader("not an image"), pipeline.Downscale(1000, imaging.PNG))
	defer rc.Close()

	_, err := io.ReadAll(rc)
	assert.Error(t, err)
}
