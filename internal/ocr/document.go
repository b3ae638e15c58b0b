package ocr

import (
	"context"
	"fmt"
)

// Box is a pixel-space bounding region for a recognized line. Coordinates
// follow image convention: origin top-left, Bottom > Top.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() int {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box.
func (b Box) Height() int {
	return b.Bottom - b.Top
}

// IsZero reports whether the box carries no layout information.
func (b Box) IsZero() bool {
	return b == Box{}
}

// VerticalOverlap returns the number of pixels the two boxes share
// vertically, or zero if they do not overlap.
func (b Box) VerticalOverlap(other Box) int {
	top := b.Top
	if other.Top > top {
		top = other.Top
	}
	bottom := b.Bottom
	if other.Bottom < bottom {
		bottom = other.Bottom
	}
	if bottom <= top {
		return 0
	}
	return bottom - top
}

// Union returns the smallest box covering both boxes.
func (b Box) Union(other Box) Box {
	if b.IsZero() {
		return other
	}
	if other.IsZero() {
		return b
	}
	out := b
	if other.Left < out.Left {
		out.Left = other.Left
	}
	if other.Top < out.Top {
		out.Top = other.Top
	}
	if other.Right > out.Right {
		out.Right = other.Right
	}
	if other.Bottom > out.Bottom {
		out.Bottom = other.Bottom
	}
	return out
}

// Line is a single recognized text line.
type Line struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"` // [0,1]; 0 when the engine reports none
}

// RawDocument is the ordered OCR output for one receipt image, top to
// bottom. It is immutable once produced by an Engine.
type RawDocument struct {
	Lines []Line `json:"lines"`
}

// Engine converts a prepared PNG image into a RawDocument.
type Engine interface {
	// Recognize runs text recognition on a PNG image.
	Recognize(ctx context.Context, png []byte) (RawDocument, error)
	// Close releases engine resources.
	Close() error
}

// RecognitionError wraps engine failures so callers can tell OCR trouble
// apart from their own errors.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("ocr recognition: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
