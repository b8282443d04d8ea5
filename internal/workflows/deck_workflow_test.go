package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cardflow/internal/activities"
	"cardflow/internal/models"
	"cardflow/internal/util"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

// stageRecorder collects RecordStageActivity inputs across activity goroutines.
type stageRecorder struct {
	mu      sync.Mutex
	entries []activities.RecordStageInput
}

func (r *stageRecorder) record(in activities.RecordStageInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, in)
}

func (r *stageRecorder) statusOf(stage string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Stage == stage {
			return e.Status
		}
	}
	return ""
}

type runRecorder struct {
	mu   sync.Mutex
	last models.ModuleRun
}

func (r *runRecorder) record(run models.ModuleRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = run
}

func (r *runRecorder) lastRun() models.ModuleRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func transcriptContent(moduleID string, segments int) models.ModuleContent {
	segs := make([]models.TranscriptSegment, 0, segments)
	for i := 0; i < segments; i++ {
		segs = append(segs, models.TranscriptSegment{
			Text:     fmt.Sprintf("Segment %d covers how chlorophyll pigments absorb photons during the light reactions.", i),
			StartSec: float64(i * 30),
			EndSec:   float64((i + 1) * 30),
		})
	}
	return models.ModuleContent{
		ModuleID: moduleID,
		CourseID: "bio-101",
		Title:    "Photosynthesis",
		Sources: []models.ContentSource{
			{Kind: models.SourceTranscript, File: "lecture.vtt", Segments: segs},
		},
	}
}

func makeCards(n int, chunkID string) []models.Card {
	cards := make([]models.Card, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, models.Card{
			CardID:         fmt.Sprintf("card-%d", i),
			Question:       fmt.Sprintf("Question %d?", i),
			Answer:         "Chlorophyll absorbs photons.",
			Evidence:       []models.CardEvidence{{ChunkID: chunkID, Text: "Chlorophyll pigments absorb photons."}},
			ReviewRequired: true,
		})
	}
	return cards
}

// registerPipelineActivities wires the deck pipeline with deterministic fakes.
// Individual tests override single stages to exercise degradation paths.
func registerPipelineActivities(env *testsuite.TestWorkflowEnvironment, stages *stageRecorder, runs *runRecorder) {
	registerActivityName(env, "FetchModuleContentActivity", func(_ context.Context, in activities.FetchModuleContentInput) (activities.FetchModuleContentOutput, error) {
		return activities.FetchModuleContentOutput{Content: transcriptContent(in.ModuleID, 5)}, nil
	})
	registerActivityName(env, "TranscribeMediaActivity", func(_ context.Context, in activities.TranscribeMediaInput) (activities.TranscribeMediaOutput, error) {
		return activities.TranscribeMediaOutput{Content: in.Content}, nil
	})
	registerActivityName(env, "PrepareChunksActivity", func(_ context.Context, in activities.PrepareChunksInput) (activities.PrepareChunksOutput, error) {
		var chunks []models.ContextChunk
		for _, src := range in.Content.Sources {
			for i, seg := range src.Segments {
				chunks = append(chunks, models.ContextChunk{
					ChunkID:  fmt.Sprintf("%s-%d", in.Content.ModuleID, i),
					ModuleID: in.Content.ModuleID,
					Text:     seg.Text,
				})
			}
		}
		return activities.PrepareChunksOutput{Chunks: chunks}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(_ context.Context, in activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		for i := range in.Chunks {
			in.Chunks[i].Embedding = []float32{0.1, 0.2}
		}
		return activities.EmbedChunksOutput{Chunks: in.Chunks, Embedded: len(in.Chunks), ProviderName: "mock"}, nil
	})
	registerActivityName(env, "DeleteModuleChunksActivity", func(context.Context, activities.DeleteModuleChunksInput) error { return nil })
	registerActivityName(env, "UpsertChunksActivity", func(_ context.Context, in activities.UpsertChunksInput) (activities.UpsertChunksOutput, error) {
		return activities.UpsertChunksOutput{Upserted: len(in.Chunks)}, nil
	})
	registerActivityName(env, "AnalyzeContentActivity", func(_ context.Context, in activities.AnalyzeContentInput) (activities.AnalyzeContentOutput, error) {
		return activities.AnalyzeContentOutput{
			Analysis:     models.StageAOutput{LearningObjectives: []string{"Understand light reactions"}, EstimatedDifficulty: "core"},
			ProviderName: "mock",
		}, nil
	})
	registerActivityName(env, "GenerateCardsActivity", func(_ context.Context, in activities.GenerateCardsInput) (activities.GenerateCardsOutput, error) {
		return activities.GenerateCardsOutput{Cards: makeCards(12, in.Chunks[0].ChunkID), ProviderName: "mock"}, nil
	})
	registerActivityName(env, "VerifyCardsActivity", func(_ context.Context, in activities.VerifyCardsInput) (activities.VerifyCardsOutput, error) {
		cards := in.Cards
		for i := range cards {
			cards[i].Verified = true
			cards[i].ReviewRequired = false
		}
		return activities.VerifyCardsOutput{Cards: cards, VerifiedCount: len(cards), VerificationRate: 1.0}, nil
	})
	registerActivityName(env, "SaveDeckActivity", func(_ context.Context, in activities.SaveDeckInput) (activities.SaveDeckOutput, error) {
		return activities.SaveDeckOutput{DeckID: "deck-1", DeckPath: "/decks/deck-1.json"}, nil
	})
	registerActivityName(env, "RecordStageActivity", func(_ context.Context, in activities.RecordStageInput) error {
		stages.record(in)
		return nil
	})
	registerActivityName(env, "UpdateRunActivity", func(_ context.Context, in activities.UpdateRunInput) error {
		runs.record(in.Run)
		return nil
	})
}

func deckInput() DeckBuildInput {
	return DeckBuildInput{
		JobID:             "job-1",
		ModuleID:          "mod-1",
		CourseID:          "bio-101",
		ChunkSize:         1200,
		ChunkOverlap:      200,
		CardCount:         20,
		MinViableCards:    10,
		VerifyThreshold:   0.30,
		VerifyConcurrency: 2,
		LLMProviders:      1,
		EmbedProviders:    1,
		CooldownSeconds:   10,
	}
}

func TestDeckBuildWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DeckBuildWorkflow)
	stages := &stageRecorder{}
	runs := &runRecorder{}
	registerPipelineActivities(env, stages, runs)

	env.ExecuteWorkflow(DeckBuildWorkflow, deckInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunSuccess), out)

	require.Equal(t, "success", stages.statusOf("ingest"))
	require.Equal(t, "skipped", stages.statusOf("transcribe"), "transcript-only module skips transcription")
	require.Equal(t, "success", stages.statusOf("chunk"))
	require.Equal(t, "success", stages.statusOf("embed"))
	require.Equal(t, "success", stages.statusOf("upsert"))
	require.Equal(t, "success", stages.statusOf("stage_a"))
	require.Equal(t, "success", stages.statusOf("stage_b"))
	require.Equal(t, "success", stages.statusOf("verify"))
	require.Equal(t, "success", stages.statusOf("save_deck"))

	run := runs.lastRun()
	require.Equal(t, string(models.RunSuccess), run.Status)
	require.Equal(t, 12, run.CardCount)
	require.Equal(t, 12, run.VerifiedCount)
	require.Equal(t, "deck-1", run.DeckID)
}

func TestDeckBuildWorkflowAnalysisFailureDegradesToPartial(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DeckBuildWorkflow)
	stages := &stageRecorder{}
	runs := &runRecorder{}
	registerPipelineActivities(env, stages, runs)
	registerActivityName(env, "AnalyzeContentActivity", func(context.Context, activities.AnalyzeContentInput) (activities.AnalyzeContentOutput, error) {
		return activities.AnalyzeContentOutput{}, errors.New("provider unavailable")
	})

	env.ExecuteWorkflow(DeckBuildWorkflow, deckInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunPartial), out, "cards still produced, but a failed stage blocks success")
	require.Equal(t, "failed", stages.statusOf("stage_a"))
	require.Equal(t, "success", stages.statusOf("stage_b"), "generation proceeds without analysis")
	require.Equal(t, "deck-1", runs.lastRun().DeckID)
}

func TestDeckBuildWorkflowNoContentFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DeckBuildWorkflow)
	stages := &stageRecorder{}
	runs := &runRecorder{}
	registerPipelineActivities(env, stages, runs)
	registerActivityName(env, "FetchModuleContentActivity", func(context.Context, activities.FetchModuleContentInput) (activities.FetchModuleContentOutput, error) {
		return activities.FetchModuleContentOutput{}, fmt.Errorf("module bio-101/mod-1: %w", util.ErrContentNotFound)
	})

	env.ExecuteWorkflow(DeckBuildWorkflow, deckInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunFailed), out)
	require.Equal(t, "failed", stages.statusOf("ingest"))
	require.Empty(t, stages.statusOf("chunk"), "pipeline stops after ingest failure")
	require.Equal(t, string(models.RunFailed), runs.lastRun().Status)
}

func TestDeckBuildWorkflowNoCardsFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DeckBuildWorkflow)
	stages := &stageRecorder{}
	runs := &runRecorder{}
	registerPipelineActivities(env, stages, runs)
	registerActivityName(env, "GenerateCardsActivity", func(context.Context, activities.GenerateCardsInput) (activities.GenerateCardsOutput, error) {
		return activities.GenerateCardsOutput{}, fmt.Errorf("permanent: %w", util.ErrInsufficientOutput)
	})

	env.ExecuteWorkflow(DeckBuildWorkflow, deckInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunFailed), out)
	require.Equal(t, "failed", stages.statusOf("stage_b"))
	require.Empty(t, stages.statusOf("save_deck"))
}

func TestDeckBuildWorkflowFewCardsIsPartial(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DeckBuildWorkflow)
	stages := &stageRecorder{}
	runs := &runRecorder{}
	registerPipelineActivities(env, stages, runs)
	registerActivityName(env, "GenerateCardsActivity", func(_ context.Context, in activities.GenerateCardsInput) (activities.GenerateCardsOutput, error) {
		return activities.GenerateCardsOutput{Cards: makeCards(4, in.Chunks[0].ChunkID), ProviderName: "mock"}, nil
	})

	env.ExecuteWorkflow(DeckBuildWorkflow, deckInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunPartial), out, "deck below the viability floor completes as partial")
	run := runs.lastRun()
	require.Equal(t, 4, run.CardCount)
	require.Equal(t, "deck-1", run.DeckID, "the small deck is still persisted")
}
