package desktop

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/kbinani/screenshot"
)

type displayScreen struct{}

func NewScreen() Screen { return &displayScreen{} }

// Bounds returns the union of every active display.
func (*displayScreen) Bounds() (Rect, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return Rect{}, errors.New("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return Rect{Left: union.Min.X, Top: union.Min.Y, Right: union.Max.X, Bottom: union.Max.Y}, nil
}

// Capture grabs r from the screen as PNG.
func (*displayScreen) Capture(r Rect) ([]byte, error) {
	if r.Empty() {
		return nil, fmt.Errorf("invalid capture rectangle %dx%d", r.Width(), r.Height())
	}
	img, err := screenshot.CaptureRect(image.Rect(r.Left, r.Top, r.Right, r.Bottom))
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot captures window h, or every display when h is zero or gone.
func Snapshot(w Windows, s Screen, h Handle) ([]byte, error) {
	var r Rect
	if h != 0 {
		if info, err := w.Info(h); err == nil {
			r = info.Rect
		}
	}
	if r.Empty() {
		b, err := s.Bounds()
		if err != nil {
			return nil, err
		}
		r = b
	}
	return s.Capture(r)
}
