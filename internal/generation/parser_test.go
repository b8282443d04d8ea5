package generation

import (
	"testing"

	"cardflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkMap(ids ...string) map[string]models.ContextChunk {
	m := make(map[string]models.ContextChunk, len(ids))
	for _, id := range ids {
		m[id] = models.ContextChunk{ChunkID: id, Text: "Photosynthesis converts light energy into chemical energy stored in glucose."}
	}
	return m
}

func TestParseCardsDropsUnknownEvidence(t *testing.T) {
	raw := `{"cards": [
	  {"question": "Q1?", "answer": "A1", "evidence": [{"chunk_id": "known"}, {"chunk_id": "hallucinated"}], "confidence": 0.8},
	  {"question": "Q2?", "answer": "A2", "evidence": [{"chunk_id": "hallucinated"}], "confidence": 0.8}
	]}`
	cards, err := ParseCards(raw, chunkMap("known"), 10)
	require.NoError(t, err)
	require.Len(t, cards, 1, "card with only hallucinated evidence must be dropped")
	require.Len(t, cards[0].Evidence, 1)
	assert.Equal(t, "known", cards[0].Evidence[0].ChunkID)
	assert.NotEmpty(t, cards[0].Evidence[0].Text, "evidence text is filled from the chunk")
	assert.True(t, cards[0].ReviewRequired)
	assert.False(t, cards[0].Verified)
	assert.NotEmpty(t, cards[0].CardID)
}

func TestParseCardsDedupesAndCaps(t *testing.T) {
	raw := `{"cards": [
	  {"question": "Same question?", "answer": "A1", "evidence": [{"chunk_id": "c1"}], "confidence": 0.5},
	  {"question": "same QUESTION?", "answer": "A2", "evidence": [{"chunk_id": "c1"}], "confidence": 0.5},
	  {"question": "Other 1?", "answer": "A3", "evidence": [{"chunk_id": "c1"}], "confidence": 1.7},
	  {"question": "Other 2?", "answer": "A4", "evidence": [{"chunk_id": "c1"}], "confidence": -0.2}
	]}`
	cards, err := ParseCards(raw, chunkMap("c1"), 2)
	require.NoError(t, err)
	require.Len(t, cards, 2, "duplicate dropped, then capped at target")
	assert.Equal(t, 0.5, cards[0].Confidence)
	assert.Equal(t, 1.0, cards[1].Confidence, "confidence clamped to [0,1]")
}

func TestParseCardsStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"cards\": [{\"question\": \"Q?\", \"answer\": \"A\", \"evidence\": [{\"chunk_id\": \"c1\"}]}]}\n```"
	cards, err := ParseCards(raw, chunkMap("c1"), 10)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestParseCardsRejectsBlankQuestionOrAnswer(t *testing.T) {
	raw := `{"cards": [
	  {"question": "  ", "answer": "A", "evidence": [{"chunk_id": "c1"}]},
	  {"question": "Q?", "answer": "", "evidence": [{"chunk_id": "c1"}]}
	]}`
	cards, err := ParseCards(raw, chunkMap("c1"), 10)
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestParseStageADefaultsDifficulty(t *testing.T) {
	out, err := ParseStageA(`{"learning_objectives": ["x"], "key_terms": ["y"], "estimated_difficulty": "impossible"}`)
	require.NoError(t, err)
	assert.Equal(t, "core", out.EstimatedDifficulty)
	assert.Equal(t, []string{"x"}, out.LearningObjectives)
}

func TestParseStageAMalformed(t *testing.T) {
	_, err := ParseStageA("not json at all")
	require.Error(t, err)
}
