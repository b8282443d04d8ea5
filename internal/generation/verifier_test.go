package generation

import (
	"context"
	"fmt"
	"testing"

	"cardflow/internal/models"
	"cardflow/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapVerifierSupported(t *testing.T) {
	v := NewOverlapVerifier(0.30)
	card := models.Card{
		Answer: "Photosynthesis converts light energy into chemical energy.",
		Evidence: []models.CardEvidence{
			{ChunkID: "c1", Text: "Photosynthesis is the process by which plants convert light energy into chemical energy stored in glucose."},
		},
	}
	res, err := v.Verify(context.Background(), card)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Greater(t, res.Confidence, 0.30)
}

func TestOverlapVerifierUnrelatedEvidence(t *testing.T) {
	v := NewOverlapVerifier(0.30)
	card := models.Card{
		Answer: "Photosynthesis converts light energy into chemical energy.",
		Evidence: []models.CardEvidence{
			{ChunkID: "c1", Text: "The French Revolution began in 1789 with the storming of the Bastille."},
		},
	}
	res, err := v.Verify(context.Background(), card)
	require.NoError(t, err)
	assert.False(t, res.Verified)
}

func TestOverlapVerifierNoEvidenceNeverVerified(t *testing.T) {
	v := NewOverlapVerifier(0.30)
	res, err := v.Verify(context.Background(), models.Card{Answer: "Anything."})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, "no evidence cited", res.Note)
}

func TestVerifyAllAnnotatesInOrder(t *testing.T) {
	cards := []models.Card{
		{
			CardID: "a", Answer: "Photosynthesis converts light energy into chemical energy.",
			Evidence:       []models.CardEvidence{{ChunkID: "c1", Text: "Plants use photosynthesis to convert light energy into chemical energy."}},
			ReviewRequired: true,
		},
		{
			CardID: "b", Answer: "Photosynthesis converts light energy.",
			ReviewRequired: true,
		},
	}
	rate, err := VerifyAll(context.Background(), NewOverlapVerifier(0.30), cards, 2)
	require.NoError(t, err)
	assert.Equal(t, "a", cards[0].CardID, "order preserved under concurrent verification")
	assert.True(t, cards[0].Verified)
	assert.False(t, cards[0].ReviewRequired)
	assert.False(t, cards[1].Verified, "card without evidence stays unverified")
	assert.True(t, cards[1].ReviewRequired)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestVerifyAllEmpty(t *testing.T) {
	rate, err := VerifyAll(context.Background(), NewOverlapVerifier(0.30), nil, 4)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestLLMVerifierAgainstMock(t *testing.T) {
	v := NewLLMVerifier(providers.NewMockProvider(8), 0.30)
	card := models.Card{
		CardID:   "c",
		Question: "What is photosynthesis?",
		Answer:   "Conversion of light energy into chemical energy.",
		Evidence: []models.CardEvidence{{ChunkID: "c1", Text: "Photosynthesis converts light into chemical energy."}},
	}
	res, err := v.Verify(context.Background(), card)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, 0.9, res.Confidence)
}

type failingVerifier struct{}

func (failingVerifier) Verify(ctx context.Context, card models.Card) (VerifyResult, error) {
	return VerifyResult{}, fmt.Errorf("provider down")
}

func TestVerifyAllPropagatesError(t *testing.T) {
	cards := []models.Card{{CardID: "a"}}
	_, err := VerifyAll(context.Background(), failingVerifier{}, cards, 2)
	require.Error(t, err)
}
