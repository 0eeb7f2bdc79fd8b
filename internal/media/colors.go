package media

import (
	"fmt"
	"image"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/mywebintelligence/mwi/internal/store"
)

var namedColors = []struct {
	name string
	c    colorful.Color
}{
	{"black", colorful.Color{R: 0, G: 0, B: 0}},
	{"white", colorful.Color{R: 1, G: 1, B: 1}},
	{"gray", colorful.Color{R: 0.5, G: 0.5, B: 0.5}},
	{"red", colorful.Color{R: 0.8, G: 0.1, B: 0.1}},
	{"orange", colorful.Color{R: 0.9, G: 0.55, B: 0.1}},
	{"yellow", colorful.Color{R: 0.95, G: 0.9, B: 0.15}},
	{"green", colorful.Color{R: 0.1, G: 0.6, B: 0.2}},
	{"cyan", colorful.Color{R: 0.1, G: 0.75, B: 0.8}},
	{"blue", colorful.Color{R: 0.1, G: 0.25, B: 0.8}},
	{"purple", colorful.Color{R: 0.5, G: 0.15, B: 0.7}},
	{"pink", colorful.Color{R: 0.95, G: 0.6, B: 0.75}},
	{"brown", colorful.Color{R: 0.5, G: 0.3, B: 0.15}},
}

func colorName(c colorful.Color) string {
	best, bestDist := "", 0.0
	for _, candidate := range namedColors {
		d := c.DistanceLab(candidate.c)
		if best == "" || d < bestDist {
			best, bestDist = candidate.name, d
		}
	}
	return best
}

func pixels(img *image.RGBA) []colorful.Color {
	bounds := img.Bounds()
	out := make([]colorful.Color, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, colorful.Color{
				R: float64(r) / 0xffff,
				G: float64(g) / 0xffff,
				B: float64(b) / 0xffff,
			})
		}
	}
	return out
}

// dominantColors estimates the k dominant colors of a thumbnail with a
// deterministic k-means: centroids seeded evenly over the pixel slice,
// fixed iteration count, no randomness.
func dominantColors(img *image.RGBA, k int) []store.DominantColor {
	px := pixels(img)
	if len(px) == 0 {
		return nil
	}
	if k > len(px) {
		k = len(px)
	}

	centroids := make([]colorful.Color, k)
	for i := range centroids {
		centroids[i] = px[i*len(px)/k]
	}

	assignment := make([]int, len(px))
	for iter := 0; iter < 10; iter++ {
		for i, p := range px {
			best, bestDist := 0, p.DistanceLab(centroids[0])
			for j := 1; j < k; j++ {
				if d := p.DistanceLab(centroids[j]); d < bestDist {
					best, bestDist = j, d
				}
			}
			assignment[i] = best
		}
		var sumR, sumG, sumB = make([]float64, k), make([]float64, k), make([]float64, k)
		counts := make([]int, k)
		for i, p := range px {
			j := assignment[i]
			sumR[j] += p.R
			sumG[j] += p.G
			sumB[j] += p.B
			counts[j]++
		}
		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				continue
			}
			centroids[j] = colorful.Color{
				R: sumR[j] / float64(counts[j]),
				G: sumG[j] / float64(counts[j]),
				B: sumB[j] / float64(counts[j]),
			}
		}
	}

	counts := make([]int, k)
	for _, j := range assignment {
		counts[j]++
	}

	out := make([]store.DominantColor, 0, k)
	for j := 0; j < k; j++ {
		if counts[j] == 0 {
			continue
		}
		c := centroids[j].Clamped()
		h, s, v := c.Hsv()
		r, g, b := int(c.R*255+0.5), int(c.G*255+0.5), int(c.B*255+0.5)
		out = append(out, store.DominantColor{
			RGB:        [3]int{r, g, b},
			Hex:        c.Hex(),
			HSV:        [3]float64{h, s, v},
			Name:       colorName(c),
			Percentage: 100 * float64(counts[j]) / float64(len(px)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Percentage > out[j].Percentage })
	return out
}

// websafeColors quantizes the thumbnail to the 216-color web-safe
// palette and reports the share of each color above one percent.
func websafeColors(img *image.RGBA) map[string]float64 {
	px := pixels(img)
	if len(px) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, p := range px {
		r := websafeChannel(p.R)
		g := websafeChannel(p.G)
		b := websafeChannel(p.B)
		counts[fmt.Sprintf("#%02x%02x%02x", r, g, b)]++
	}

	out := map[string]float64{}
	for hex, n := range counts {
		pct := 100 * float64(n) / float64(len(px))
		if pct >= 1 {
			out[hex] = pct
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func websafeChannel(v float64) int {
	return int(v*255/51+0.5) * 51
}
