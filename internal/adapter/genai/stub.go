package genai

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/craftlab/cardsmith/internal/domain"
)

// StubClient is a deterministic in-process backend for dev and tests. The
// same prompt always yields the same bytes.
type StubClient struct{}

// NewStubClient constructs a StubClient.
func NewStubClient() *StubClient { return &StubClient{} }

// GenerateImage renders a small solid-color PNG derived from the prompt.
func (s *StubClient) GenerateImage(_ domain.Context, prompt string) ([]byte, error) {
	sum := sha256.Sum256([]byte(prompt))
	img := imaging.New(64, 64, color.NRGBA{R: sum[0], G: sum[1], B: sum[2], A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("op=genai.stub encode: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateVideo returns a minimal MP4-shaped payload derived from the prompt
// and seed.
func (s *StubClient) GenerateVideo(_ domain.Context, prompt string, seedImage []byte) ([]byte, error) {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write(seedImage)
	// ftyp box header keeps content-type sniffing happy.
	payload := append([]byte("\x00\x00\x00\x18ftypmp42"), h.Sum(nil)...)
	return payload, nil
}
