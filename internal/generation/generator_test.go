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

func testChunks(n int) []models.ContextChunk {
	chunks := make([]models.ContextChunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, models.ContextChunk{
			ChunkID:    fmt.Sprintf("chunk-%d", i),
			ModuleID:   "mod-1",
			SourceFile: "notes.md",
			Text:       fmt.Sprintf("Section %d explains how chlorophyll absorbs light during photosynthesis and drives the cycle.", i),
			TokensEst:  20,
		})
	}
	return chunks
}

func TestLLMGeneratorWithMockProvider(t *testing.T) {
	gen := NewLLMGenerator(providers.NewMockProvider(8))
	cards, err := gen.Generate(context.Background(), GenerateInput{
		ModuleID:    "mod-1",
		ModuleTitle: "Photosynthesis",
		Chunks:      testChunks(5),
		TargetCount: 20,
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(cards), 10, "mock emits two cards per chunk")
	for _, c := range cards {
		require.NotEmpty(t, c.Evidence, "every generated card cites evidence")
		for _, ev := range c.Evidence {
			assert.Contains(t, ev.ChunkID, "chunk-", "evidence resolves to an offered chunk")
		}
		assert.True(t, c.ReviewRequired, "cards await verification after generation")
	}
}

func TestLLMGeneratorHonorsTargetCount(t *testing.T) {
	gen := NewLLMGenerator(providers.NewMockProvider(8))
	cards, err := gen.Generate(context.Background(), GenerateInput{
		ModuleID:    "mod-1",
		ModuleTitle: "Photosynthesis",
		Chunks:      testChunks(5),
		TargetCount: 3,
	})
	require.NoError(t, err)
	assert.Len(t, cards, 3)
}

func TestLLMGeneratorNoChunks(t *testing.T) {
	gen := NewLLMGenerator(providers.NewMockProvider(8))
	_, err := gen.Generate(context.Background(), GenerateInput{ModuleID: "mod-1"})
	require.Error(t, err)
}

func TestLLMAnalyzerWithMockProvider(t *testing.T) {
	a := NewLLMAnalyzer(providers.NewMockProvider(8))
	out, err := a.Analyze(context.Background(), AnalyzeInput{
		ModuleID:    "mod-1",
		ModuleTitle: "Photosynthesis",
		Chunks:      testChunks(3),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.LearningObjectives)
	assert.Equal(t, "core", out.EstimatedDifficulty)
}
