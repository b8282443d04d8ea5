package generation

import (
	"context"
	"fmt"

	"cardflow/internal/models"
	"cardflow/internal/providers"
	"cardflow/internal/util"
)

type GenerateInput struct {
	ModuleID    string
	ModuleTitle string
	Chunks      []models.ContextChunk
	Analysis    models.StageAOutput
	TargetCount int
	Difficulty  string
	BloomLevels []string
}

// Generator produces Stage B cards from chunked module content.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput) ([]models.Card, error)
}

type LLMGenerator struct {
	llm providers.LLMProvider
}

func NewLLMGenerator(llm providers.LLMProvider) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

func (g *LLMGenerator) Generate(ctx context.Context, in GenerateInput) ([]models.Card, error) {
	if len(in.Chunks) == 0 {
		return nil, fmt.Errorf("module %s: %w", in.ModuleID, util.ErrContentNotFound)
	}
	target := in.TargetCount
	if target <= 0 {
		target = 20
	}

	chunkByID := make(map[string]models.ContextChunk, len(in.Chunks))
	for _, c := range in.Chunks {
		chunkByID[c.ChunkID] = c
	}

	resp, _, err := g.llm.Generate(ctx, providers.GenerateRequest{
		Operation: "stage_b_cards",
		Prompt:    buildCardsPrompt(in.ModuleTitle, in.Analysis.LearningObjectives, target, in.Difficulty, in.BloomLevels),
		Context:   ChunkContext(in.Chunks),
	})
	if err != nil {
		return nil, fmt.Errorf("generate cards for module %s: %w", in.ModuleID, err)
	}
	cards, err := ParseCards(resp.Text, chunkByID, target)
	if err != nil {
		return nil, fmt.Errorf("generate cards for module %s: %w", in.ModuleID, err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("module %s produced no usable cards: %w", in.ModuleID, util.ErrInsufficientOutput)
	}
	return cards, nil
}
