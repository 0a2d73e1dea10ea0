package imagemask

import (
	"image"
	"image/color"
)

// maxInpaintPasses bounds the flood repair; a fully black region converges
// in at most max(width, height) passes.
const maxInpaintPasses = 64

// inpaintDarkPixels repairs pixels inside rect that are still near-black
// after restoration (every channel below threshold). Each pass replaces
// masked pixels that touch at least one unmasked neighbor with the average
// of those neighbors, growing the fill inward from the region edges. The
// return value is the number of pixels repaired.
func inpaintDarkPixels(canvas *image.NRGBA, rect image.Rectangle, threshold uint8) int {
	rect = rect.Intersect(canvas.Bounds())
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return 0
	}

	w, h := rect.Dx(), rect.Dy()
	masked := make([]bool, w*h)
	total := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := canvas.NRGBAAt(rect.Min.X+x, rect.Min.Y+y)
			if px.R < threshold && px.G < threshold && px.B < threshold {
				masked[y*w+x] = true
				total++
			}
		}
	}
	if total == 0 {
		return 0
	}

	neighbors := [8][2]int{
		{-1, -1}, {0, -1}, {1, -1},
		{-1, 0}, {1, 0},
		{-1, 1}, {0, 1}, {1, 1},
	}

	repaired := 0
	for pass := 0; pass < maxInpaintPasses && repaired < total; pass++ {
		var fixed [][2]int
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if !masked[y*w+x] {
					continue
				}
				var sumR, sumG, sumB, sumA, n int
				for _, d := range neighbors {
					nx, ny := x+d[0], y+d[1]
					cx, cy := rect.Min.X+nx, rect.Min.Y+ny
					if !image.Pt(cx, cy).In(canvas.Bounds()) {
						continue
					}
					if nx >= 0 && nx < w && ny >= 0 && ny < h && masked[ny*w+nx] {
						continue
					}
					px := canvas.NRGBAAt(cx, cy)
					sumR += int(px.R)
					sumG += int(px.G)
					sumB += int(px.B)
					sumA += int(px.A)
					n++
				}
				if n == 0 {
					continue
				}
				canvas.SetNRGBA(rect.Min.X+x, rect.Min.Y+y, color.NRGBA{
					R: uint8(sumR / n),
					G: uint8(sumG / n),
					B: uint8(sumB / n),
					A: uint8(sumA / n),
				})
				fixed = append(fixed, [2]int{x, y})
			}
		}
		if len(fixed) == 0 {
			break
		}
		for _, p := range fixed {
			masked[p[1]*w+p[0]] = false
		}
		repaired += len(fixed)
	}
	return repaired
}
