package generation

import (
	"context"
	"fmt"
	"time"

	"cardflow/internal/models"
	"cardflow/internal/providers"
)

type AnalyzeInput struct {
	ModuleID    string
	ModuleTitle string
	Chunks      []models.ContextChunk
}

// Analyzer produces the Stage A module summary that steers card generation.
type Analyzer interface {
	Analyze(ctx context.Context, in AnalyzeInput) (models.StageAOutput, error)
}

type LLMAnalyzer struct {
	llm providers.LLMProvider

	// maxContext bounds how many snippets go to the model per analysis call.
	maxContext int
}

func NewLLMAnalyzer(llm providers.LLMProvider) *LLMAnalyzer {
	return &LLMAnalyzer{llm: llm, maxContext: 40}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, in AnalyzeInput) (models.StageAOutput, error) {
	if len(in.Chunks) == 0 {
		return models.StageAOutput{}, fmt.Errorf("module %s: no chunks to analyze", in.ModuleID)
	}
	chunks := in.Chunks
	if a.maxContext > 0 && len(chunks) > a.maxContext {
		chunks = chunks[:a.maxContext]
	}

	start := time.Now()
	resp, _, err := a.llm.Generate(ctx, providers.GenerateRequest{
		Operation: "stage_a_analyze",
		Prompt:    buildAnalyzePrompt(in.ModuleTitle),
		Context:   ChunkContext(chunks),
	})
	if err != nil {
		return models.StageAOutput{}, fmt.Errorf("analyze module %s: %w", in.ModuleID, err)
	}
	out, err := ParseStageA(resp.Text)
	if err != nil {
		return models.StageAOutput{}, fmt.Errorf("analyze module %s: %w", in.ModuleID, err)
	}
	out.ElapsedMS = time.Since(start).Milliseconds()
	return out, nil
}
