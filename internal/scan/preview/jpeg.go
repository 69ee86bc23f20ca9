package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/footscan/internal/scan/geometry"
)

// Quality is the JPEG quality used for preview frames.
const Quality = 60

// DefaultMaxWidth bounds the width of encoded preview frames.
const DefaultMaxWidth = 320

// EncodeJPEG downsizes img to at most maxWidth pixels wide (keeping aspect)
// and encodes it as JPEG. maxWidth <= 0 keeps the original size.
func EncodeJPEG(img image.Image, maxWidth int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("preview: nil image")
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Box)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(Quality)); err != nil {
		return nil, fmt.Errorf("preview: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DepthImage renders a depth map as grayscale: near samples are bright,
// far samples dark, and anything outside [minM, maxM] black.
func DepthImage(d *geometry.DepthImage, minM, maxM float64) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	span := maxM - minM
	if span <= 0 {
		return out
	}
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			z := float64(d.At(x, y))
			if math.IsNaN(z) || z < minM || z > maxM {
				continue
			}
			v := 255 - uint8(math.Round(255*(z-minM)/span))
			out.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return out
}
