package imagemask

import "image"

// PolyBounds returns the axis-aligned bounding rectangle of a polygon.
func PolyBounds(poly [][2]int) image.Rectangle {
	if len(poly) == 0 {
		return image.Rectangle{}
	}
	minX, minY := poly[0][0], poly[0][1]
	maxX, maxY := minX, minY
	for _, p := range poly[1:] {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	return image.Rect(minX, minY, maxX, maxY)
}

// IoU computes Intersection-over-Union of two axis-aligned rectangles.
// Non-rectangular OCR polygons are judged by their bounding boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := inter.Dx() * inter.Dy()
	unionArea := a.Dx()*a.Dy() + b.Dx()*b.Dy() - interArea
	if unionArea <= 0 {
		return 0
	}
	return float64(interArea) / float64(unionArea)
}

// ClampPoly clamps every polygon point into the given image bounds.
// Coordinates are always clamped before a bbox is stored.
func ClampPoly(poly [][2]int, bounds image.Rectangle) [][2]int {
	out := make([][2]int, len(poly))
	for i, p := range poly {
		x, y := p[0], p[1]
		if x < bounds.Min.X {
			x = bounds.Min.X
		}
		if x > bounds.Max.X {
			x = bounds.Max.X
		}
		if y < bounds.Min.Y {
			y = bounds.Min.Y
		}
		if y > bounds.Max.Y {
			y = bounds.Max.Y
		}
		out[i] = [2]int{x, y}
	}
	return out
}
