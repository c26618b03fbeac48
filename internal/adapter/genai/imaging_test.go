package genai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLetterboxSeed_ProducesFrameSizedPNG(t *testing.T) {
	t.Parallel()
	// A tall card image must be letterboxed, not cropped.
	seed, err := NewStubClient().GenerateImage(context.Background(), "tall card")
	require.NoError(t, err)

	out, err := LetterboxSeed(seed)
	require.NoError(t, err)

	bounds, err := seedBounds(out)
	require.NoError(t, err)
	assert.Equal(t, seedFrameWidth, bounds.Dx())
	assert.Equal(t, seedFrameHeight, bounds.Dy())
}

func TestLetterboxSeed_RejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := LetterboxSeed([]byte("not an image"))
	assert.Error(t, err)
}

func TestStubClient_Deterministic(t *testing.T) {
	t.Parallel()
	s := NewStubClient()
	a, err := s.GenerateImage(context.Background(), "a red dragon")
	require.NoError(t, err)
	b, err := s.GenerateImage(context.Background(), "a red dragon")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := s.GenerateImage(context.Background(), "a blue dragon")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestStubClient_VideoHasMP4Header(t *testing.T) {
	t.Parallel()
	out, err := NewStubClient().GenerateVideo(context.Background(), "sunset loop", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out[:12]), "ftyp")
}
