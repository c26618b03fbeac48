package genai

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/craftlab/cardsmith/internal/domain"
)

// Backend video frame size. Seeds of any aspect ratio are letterboxed onto a
// black canvas so the backend never crops card art.
const (
	seedFrameWidth  = 1280
	seedFrameHeight = 720
)

// LetterboxSeed decodes a seed image, fits it inside the backend frame
// preserving aspect ratio, and re-encodes the result as PNG.
func LetterboxSeed(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("op=genai.seed decode: %w", domain.ErrInvalidInput)
	}
	fitted := imaging.Fit(src, seedFrameWidth, seedFrameHeight, imaging.Lanczos)
	canvas := imaging.New(seedFrameWidth, seedFrameHeight, color.NRGBA{A: 255})
	out := imaging.PasteCenter(canvas, fitted)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("op=genai.seed encode: %w", err)
	}
	return buf.Bytes(), nil
}

// seedBounds reports the decoded dimensions; used by tests.
func seedBounds(data []byte) (image.Rectangle, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return image.Rectangle{}, err
	}
	return img.Bounds(), nil
}
