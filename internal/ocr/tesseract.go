package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements Engine using the gosseract client. A fresh client is
// created per Recognize call; the client is not safe for concurrent use and
// setup cost is negligible next to recognition itself.
type Tesseract struct {
	languages []string
	newClient func() *gosseract.Client
}

// NewTesseract constructs a Tesseract-backed engine. With no languages the
// tesseract default (eng) is used.
func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{
		languages: languages,
		newClient: gosseract.NewClient,
	}
}

// Recognize runs Tesseract over a PNG image and returns one Line per
// recognized text line, with its pixel bounding box and confidence scaled
// to [0,1].
func (t *Tesseract) Recognize(ctx context.Context, png []byte) (RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return RawDocument{}, err
	}

	c := t.newClient()
	defer c.Close()

	if err := c.SetImageFromBytes(png); err != nil {
		return RawDocument{}, &RecognitionError{Err: err}
	}
	if len(t.languages) > 0 {
		if err := c.SetLanguage(t.languages...); err != nil {
			return RawDocument{}, &RecognitionError{Err: err}
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return RawDocument{}, &RecognitionError{Err: err}
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		conf := b.Confidence / 100.0
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		lines = append(lines, Line{
			Text: text,
			Box: Box{
				Left:   b.Box.Min.X,
				Top:    b.Box.Min.Y,
				Right:  b.Box.Max.X,
				Bottom: b.Box.Max.Y,
			},
			Confidence: conf,
		})
	}

	return RawDocument{Lines: lines}, nil
}

// Close implements Engine; the per-call clients are already closed.
func (t *Tesseract) Close() error {
	return nil
}
