package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return img, format, nil
}

func colorMode(img image.Image) string {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return "L"
	case *image.Paletted:
		return "P"
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		return "RGBA"
	case *image.CMYK:
		return "CMYK"
	default:
		return "RGB"
	}
}

// hasTransparency samples the alpha channel; a single non-opaque pixel
// qualifies.
func hasTransparency(img image.Image) bool {
	bounds := img.Bounds()
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	}
	step := 1
	if bounds.Dx()*bounds.Dy() > 512*512 {
		step = 4
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			if _, _, _, alpha := img.At(x, y).RGBA(); alpha < 0xffff {
				return true
			}
		}
	}
	return false
}

// perceptualHash returns the fixed-width hex form of the image's
// perception hash, e.g. "p:8f373714acfcf4d0". Re-encodings of the same
// picture stay within a Hamming distance of about 10 bits.
func perceptualHash(img image.Image) (string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", err
	}
	return hash.ToString(), nil
}

// HashDistance compares two stored perceptual hashes in Hamming bits.
func HashDistance(a, b string) (int, error) {
	ha, err := goimagehash.ImageHashFromString(a)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", a, err)
	}
	hb, err := goimagehash.ImageHashFromString(b)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", b, err)
	}
	return ha.Distance(hb)
}

// extractEXIF returns a flat tag map. GPS coordinates are reduced to
// decimal lat/long; MakerNote is dropped. Images without EXIF yield nil.
func extractEXIF(data []byte) map[string]string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	out := map[string]string{}
	_ = x.Walk(exifWalker(func(name exif.FieldName, tag *tiff.Tag) error {
		switch name {
		case exif.MakerNote,
			exif.GPSLatitude, exif.GPSLatitudeRef,
			exif.GPSLongitude, exif.GPSLongitudeRef:
			return nil
		}
		out[string(name)] = tag.String()
		return nil
	}))

	if lat, long, err := x.LatLong(); err == nil {
		out["GPSLatitude"] = fmt.Sprintf("%.6f", lat)
		out["GPSLongitude"] = fmt.Sprintf("%.6f", long)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type exifWalker func(exif.FieldName, *tiff.Tag) error

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error { return w(name, tag) }

// thumbnail scales the image down for color and content estimation.
func thumbnail(img image.Image, w, h int) *image.RGBA {
	bounds := img.Bounds()
	if bounds.Dx() <= w && bounds.Dy() <= h {
		dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Copy(dst, image.Point{}, img, bounds, draw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
