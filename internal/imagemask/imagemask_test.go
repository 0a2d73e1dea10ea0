package imagemask

import (
	"image"
	"image/color"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/veildoc/veildoc/internal/consensus"
	"github.com/veildoc/veildoc/internal/ocr"
	"github.com/veildoc/veildoc/internal/vault"
	"go.uber.org/zap"
)

func testEngine(t *testing.T) *vault.Engine {
	t.Helper()
	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatal(err)
	}
	return vault.NewEngine(&key, zap.NewNop())
}

// testImage builds a deterministic gradient so restored pixels are
// distinguishable from the black mask fill.
func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(40 + (x*3)%180),
				G: uint8(60 + (y*5)%160),
				B: uint8(90 + (x+y)%120),
				A: 255,
			})
		}
	}
	return img
}

func TestReconstructText(t *testing.T) {
	t.Run("orders fragments into reading order", func(t *testing.T) {
		fragments := []ocr.Fragment{
			{Text: "World", BBox: rectPoly(120, 10, 200, 30)},
			{Text: "Second", BBox: rectPoly(10, 60, 80, 80)},
			{Text: "Hello", BBox: rectPoly(10, 10, 100, 30)},
		}

		got := ReconstructText(fragments, 25)
		if want := "Hello World\nSecond"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("close vertical centers share a line", func(t *testing.T) {
		fragments := []ocr.Fragment{
			{Text: "a", BBox: rectPoly(0, 10, 20, 30)},
			{Text: "b", BBox: rectPoly(30, 15, 50, 35)}, // center 5px lower
		}
		if got := ReconstructText(fragments, 25); got != "a b" {
			t.Errorf("got %q, want %q", got, "a b")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := ReconstructText(nil, 25); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}

func rectPoly(x0, y0, x1, y1 int) [][2]int {
	return [][2]int{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 100, 100)

	if got := IoU(a, a); got != 1 {
		t.Errorf("identical rects: got %v, want 1", got)
	}
	if got := IoU(a, image.Rect(200, 200, 300, 300)); got != 0 {
		t.Errorf("disjoint rects: got %v, want 0", got)
	}
	half := IoU(a, image.Rect(0, 0, 100, 50))
	if half <= 0.49 || half >= 0.51 {
		t.Errorf("half overlap: got %v, want 0.5", half)
	}
}

func TestMaskerDedup(t *testing.T) {
	m := NewMasker(0.85, zap.NewNop())
	img := testImage(300, 100)
	entries := []consensus.Entry{{Category: "NAMES", Value: "John"}}

	// Two fragments over the same physical span, IoU 0.9.
	fragments := []ocr.Fragment{
		{Text: "John", BBox: rectPoly(10, 10, 110, 50), Confidence: 0.9},
		{Text: "JOHN", BBox: rectPoly(10, 12, 110, 52), Confidence: 0.8},
	}

	res, err := m.Mask(img, fragments, entries, testEngine(t))
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1 (dedup by IoU + equal text)", len(res.Records))
	}
	// First-seen wins: the record carries the first fragment's text.
	if res.Records[0].Confidence != 0.9 {
		t.Errorf("dedup did not keep the first fragment: %+v", res.Records[0])
	}
}

func TestMaskerSeparateRegions(t *testing.T) {
	m := NewMasker(0.85, zap.NewNop())
	img := testImage(400, 100)
	entries := []consensus.Entry{{Category: "NAMES", Value: "John"}}

	// Same text, disjoint boxes: two distinct regions.
	fragments := []ocr.Fragment{
		{Text: "John", BBox: rectPoly(10, 10, 110, 50), Confidence: 0.9},
		{Text: "John", BBox: rectPoly(200, 10, 300, 50), Confidence: 0.9},
	}

	res, err := m.Mask(img, fragments, entries, testEngine(t))
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if len(res.Records) != 2 {
		t.Errorf("got %d records, want 2", len(res.Records))
	}
}

func TestMaskRestoreRoundTrip(t *testing.T) {
	m := NewMasker(0.85, zap.NewNop())
	img := testImage(300, 100)
	entries := []consensus.Entry{{Category: "IC", Value: "930101-14-5566"}}
	fragments := []ocr.Fragment{
		{Text: "930101-14-5566", BBox: rectPoly(20, 20, 220, 60), Confidence: 0.95},
	}

	res, err := m.Mask(img, fragments, entries, testEngine(t))
	if err != nil {
		t.Fatalf("Mask: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}

	t.Run("masked region is painted out", func(t *testing.T) {
		px := res.Image.NRGBAAt(100, 40)
		if px.R != 0 || px.G != 0 || px.B != 0 {
			t.Errorf("core pixel not black: %+v", px)
		}
	})

	t.Run("pixels outside the region untouched", func(t *testing.T) {
		for _, pt := range []image.Point{{5, 5}, {290, 90}, {250, 10}} {
			if got, want := res.Image.NRGBAAt(pt.X, pt.Y), img.NRGBAAt(pt.X, pt.Y); got != want {
				t.Errorf("pixel %v changed: got %+v, want %+v", pt, got, want)
			}
		}
	})

	t.Run("restore brings back the original pixels", func(t *testing.T) {
		restored, n := RestoreImage(res.Image, res.Records, zap.NewNop())
		if n != 1 {
			t.Fatalf("restored %d regions, want 1", n)
		}
		// Patch capture is lossless PNG, so the region comes back exact.
		for _, pt := range []image.Point{{100, 40}, {25, 25}, {215, 55}} {
			if got, want := restored.NRGBAAt(pt.X, pt.Y), img.NRGBAAt(pt.X, pt.Y); got != want {
				t.Errorf("pixel %v not restored: got %+v, want %+v", pt, got, want)
			}
		}
	})

	t.Run("record without patch is skipped", func(t *testing.T) {
		broken := []*vault.Record{{BBox: rectPoly(20, 20, 220, 60)}}
		_, n := RestoreImage(res.Image, broken, zap.NewNop())
		if n != 0 {
			t.Errorf("restored %d regions from a patchless record", n)
		}
	})
}

func TestMaskManual(t *testing.T) {
	m := NewMasker(0.85, zap.NewNop())
	img := testImage(200, 100)

	res, err := m.MaskManual(img, []ManualRegion{
		{BBox: rectPoly(10, 10, 90, 40), Label: "SIGNATURE"},
		{BBox: rectPoly(50, 50, 50, 80)}, // zero width, skipped
	}, testEngine(t))
	if err != nil {
		t.Fatalf("MaskManual: %v", err)
	}

	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	if res.Records[0].Label != "SIGNATURE" {
		t.Errorf("got label %q", res.Records[0].Label)
	}
	if res.Records[0].OriginalPatch == "" {
		t.Error("manual record has no patch")
	}

	restored, n := RestoreImage(res.Image, res.Records, zap.NewNop())
	if n != 1 {
		t.Fatalf("restored %d regions, want 1", n)
	}
	if got, want := restored.NRGBAAt(40, 25), img.NRGBAAt(40, 25); got != want {
		t.Errorf("manual region not restored: got %+v, want %+v", got, want)
	}
}

func TestStampPage(t *testing.T) {
	records := []*vault.Record{{Label: "IC"}, {Label: "NAMES"}}
	StampPage(records, 3)
	for _, r := range records {
		if r.PageNumber != 3 {
			t.Errorf("record not stamped: %+v", r)
		}
	}
}

func TestClampPoly(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	poly := ClampPoly([][2]int{{-10, 5}, {150, 5}, {150, 120}, {-10, 120}}, bounds)

	for _, p := range poly {
		if p[0] < 0 || p[0] > 100 || p[1] < 0 || p[1] > 100 {
			t.Errorf("point %v outside bounds", p)
		}
	}
}
