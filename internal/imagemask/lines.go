package imagemask

import (
	"sort"
	"strings"

	"github.com/veildoc/veildoc/internal/ocr"
)

// ReconstructText rebuilds the page text from raw OCR fragments. OCR emits
// per-token boxes in detection order, not reading order: fragments are
// clustered into lines by vertical center proximity, each line is sorted
// left to right, and lines are joined top to bottom.
//
// lineThreshold is the maximum vertical center distance (in pixels) for
// two fragments to share a line; tune it to the raster DPI.
func ReconstructText(fragments []ocr.Fragment, lineThreshold float64) string {
	if len(fragments) == 0 {
		return ""
	}
	if lineThreshold <= 0 {
		lineThreshold = 25
	}

	type positioned struct {
		frag    ocr.Fragment
		centerY float64
		minX    int
	}

	items := make([]positioned, 0, len(fragments))
	for _, f := range fragments {
		bounds := PolyBounds(f.BBox)
		items = append(items, positioned{
			frag:    f,
			centerY: float64(bounds.Min.Y+bounds.Max.Y) / 2,
			minX:    bounds.Min.X,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].centerY < items[j].centerY })

	var lines [][]positioned
	var current []positioned
	for _, item := range items {
		if len(current) > 0 {
			prevY := current[len(current)-1].centerY
			if item.centerY-prevY >= lineThreshold {
				lines = append(lines, current)
				current = nil
			}
		}
		current = append(current, item)
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}

	var b strings.Builder
	for li, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].minX < line[j].minX })
		if li > 0 {
			b.WriteByte('\n')
		}
		for fi, item := range line {
			if fi > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(item.frag.Text)
		}
	}
	return b.String()
}
