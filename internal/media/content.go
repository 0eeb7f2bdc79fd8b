package media

import (
	"image"
	"math"
)

// Thresholds of the content classifier. Tuned on the thumbnail size
// used by the analyzer; deliberately coarse.
const (
	logoEntropyMax        = 4.0
	textEdgeDensityMin    = 0.22
	screenshotEdgeMin     = 0.08
	screenshotEntropyMin  = 6.0
	screenshotEntropyBand = 7.6
)

// contentTags classifies an image with deterministic heuristics on the
// luminance histogram entropy and the edge density of the thumbnail.
func contentTags(img *image.RGBA) []string {
	lum := luminances(img)
	if len(lum) == 0 {
		return nil
	}
	entropy := histogramEntropy(lum)
	edges := edgeDensity(img, lum)

	var tags []string
	if entropy < logoEntropyMax {
		tags = append(tags, "logo")
	}
	if edges > textEdgeDensityMin {
		tags = append(tags, "text")
	}
	if edges > screenshotEdgeMin && entropy >= screenshotEntropyMin && entropy < screenshotEntropyBand {
		tags = append(tags, "screenshot")
	}
	return tags
}

func luminances(img *image.RGBA) []uint8 {
	bounds := img.Bounds()
	out := make([]uint8, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			l := (299*int(r>>8) + 587*int(g>>8) + 114*int(b>>8)) / 1000
			out = append(out, uint8(l))
		}
	}
	return out
}

// histogramEntropy is the Shannon entropy of the 256-bin luminance
// histogram, in bits (0..8).
func histogramEntropy(lum []uint8) float64 {
	var hist [256]int
	for _, l := range lum {
		hist[l]++
	}
	total := float64(len(lum))
	entropy := 0.0
	for _, n := range hist {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// edgeDensity is the share of pixels whose horizontal or vertical
// luminance gradient exceeds a fixed step.
func edgeDensity(img *image.RGBA, lum []uint8) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 2 || h < 2 {
		return 0
	}
	const step = 32
	edges := 0
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			here := int(lum[y*w+x])
			right := int(lum[y*w+x+1])
			down := int(lum[(y+1)*w+x])
			if abs(here-right) > step || abs(here-down) > step {
				edges++
			}
		}
	}
	return float64(edges) / float64((w-1)*(h-1))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
