package patch

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	// Register decoders for the formats storefront uploads arrive in.
	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/kailas-cloud/stylesearch/internal/domain"
)

// Decode parses uploaded image bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadImage, err)
	}
	return img, nil
}

// crop copies the given rectangle (clipped to the image bounds) into a new image.
func crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Copy(out, image.Point{}, img, r, xdraw.Src, nil)
	return out
}

// resize scales img to w×h with Catmull-Rom interpolation.
func resize(img image.Image, w, h int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}

// zoomCrop center-zooms by the given factor: crops the middle 1/zoom area
// and scales it back to the original size.
func zoomCrop(img image.Image, zoom float64) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cw, ch := int(float64(w)/zoom), int(float64(h)/zoom)
	left := b.Min.X + (w-cw)/2
	top := b.Min.Y + (h-ch)/2
	cropped := crop(img, image.Rect(left, top, left+cw, top+ch))
	return resize(cropped, w, h)
}

// centerSquare returns the centered square crop with side min(w, h).
func centerSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	side := w
	if h < side {
		side = h
	}
	x1 := b.Min.X + (w-side)/2
	y1 := b.Min.Y + (h-side)/2
	return crop(img, image.Rect(x1, y1, x1+side, y1+side))
}

// PreviewDataURI encodes the patch as a JPEG data URI for the API response.
func PreviewDataURI(img image.Image) (string, error) {
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
