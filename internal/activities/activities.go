package activities

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"cardflow/internal/config"
	"cardflow/internal/content"
	"cardflow/internal/generation"
	"cardflow/internal/models"
	"cardflow/internal/providers"
	"cardflow/internal/storage"
	"cardflow/internal/util"
	"cardflow/internal/vector"

	"go.uber.org/zap"
)

type Activities struct {
	cfg       config.Config
	log       *zap.Logger
	providers *providers.Manager
	store     content.Store
	fetcher   *content.Fetcher
	vectors   *vector.Store
	jobRepo   *storage.JobRepo
	runRepo   *storage.RunRepo
	deckRepo  *storage.DeckRepo
}

func New(cfg config.Config, db *storage.DB, log *zap.Logger) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	embedder, _ := pm.FirstEmbedProvider()
	return &Activities{
		cfg:       cfg,
		log:       log,
		providers: pm,
		store:     content.NewManifestStore(cfg.ContentRoot),
		fetcher:   content.NewFetcher(),
		vectors:   vector.NewStore(db.Pool, embedder, cfg.EmbedDim, cfg.UpsertBatchSize),
		jobRepo:   storage.NewJobRepo(db),
		runRepo:   storage.NewRunRepo(db),
		deckRepo:  storage.NewDeckRepo(db),
	}, nil
}

// ResolveTargetsActivity expands a job's mode and target into the concrete
// module list its child workflows will fan out over.
func (a *Activities) ResolveTargetsActivity(ctx context.Context, in ResolveTargetsInput) (ResolveTargetsOutput, error) {
	switch in.Mode {
	case models.ModeSingleModule:
		if in.Target.ModuleID == "" {
			return ResolveTargetsOutput{}, fmt.Errorf("single_module job without module_id")
		}
		return ResolveTargetsOutput{Targets: []ModuleTarget{{ModuleID: in.Target.ModuleID, CourseID: in.Target.CourseID}}}, nil
	case models.ModeCourse:
		return a.courseTargets(ctx, in.Target.CourseID)
	case models.ModeAllCourses:
		courses, err := a.store.ListCourses(ctx)
		if err != nil {
			return ResolveTargetsOutput{}, err
		}
		var out ResolveTargetsOutput
		for _, courseID := range courses {
			courseOut, err := a.courseTargets(ctx, courseID)
			if err != nil {
				return ResolveTargetsOutput{}, err
			}
			out.Targets = append(out.Targets, courseOut.Targets...)
		}
		return out, nil
	default:
		return ResolveTargetsOutput{}, fmt.Errorf("unsupported generate mode: %s", in.Mode)
	}
}

func (a *Activities) courseTargets(ctx context.Context, courseID string) (ResolveTargetsOutput, error) {
	if courseID == "" {
		return ResolveTargetsOutput{}, fmt.Errorf("course job without course_id")
	}
	modules, err := a.store.ListModules(ctx, courseID)
	if err != nil {
		return ResolveTargetsOutput{}, err
	}
	out := ResolveTargetsOutput{Targets: make([]ModuleTarget, 0, len(modules))}
	for _, moduleID := range modules {
		out.Targets = append(out.Targets, ModuleTarget{ModuleID: moduleID, CourseID: courseID})
	}
	return out, nil
}

func (a *Activities) UpdateJobStatusActivity(ctx context.Context, in UpdateJobStatusInput) error {
	return a.jobRepo.UpdateJobStatus(ctx, in.JobID, models.JobStatus(in.Status))
}

func (a *Activities) FetchModuleContentActivity(ctx context.Context, in FetchModuleContentInput) (FetchModuleContentOutput, error) {
	mc, err := a.store.GetModule(ctx, in.CourseID, in.ModuleID)
	if err != nil {
		return FetchModuleContentOutput{}, err
	}
	return FetchModuleContentOutput{Content: mc}, nil
}

// TranscribeMediaActivity resolves media sources to transcript segments in
// place. Sources that already carry segments are left alone.
func (a *Activities) TranscribeMediaActivity(ctx context.Context, in TranscribeMediaInput) (TranscribeMediaOutput, error) {
	provider, ref := a.providers.TranscribeProviderByIndex(in.ProviderIndex)
	out := TranscribeMediaOutput{Content: in.Content, ProviderName: ref.Name}
	for i := range out.Content.Sources {
		src := &out.Content.Sources[i]
		if src.Kind != models.SourceMedia || len(src.Segments) > 0 {
			continue
		}
		segments, info, err := provider.Transcribe(ctx, providers.TranscribeRequest{
			Operation: "module_transcribe",
			MediaPath: src.File,
			Language:  src.Language,
		})
		if err != nil {
			return TranscribeMediaOutput{}, fmt.Errorf("transcribe %s: %w", src.File, err)
		}
		src.Segments = segments
		if src.Provider == "" {
			src.Provider = info.Name
		}
		out.MediaCount++
		out.SegmentCount += len(segments)
	}
	return out, nil
}

func (a *Activities) PrepareChunksActivity(ctx context.Context, in PrepareChunksInput) (PrepareChunksOutput, error) {
	chunks, err := a.fetcher.PrepareChunks(ctx, in.Content, content.ChunkOptions{
		ChunkSize:    in.ChunkSize,
		ChunkOverlap: in.ChunkOverlap,
	})
	if err != nil {
		return PrepareChunksOutput{}, err
	}
	return PrepareChunksOutput{Chunks: chunks}, nil
}

// EmbedChunksActivity fills vectors for chunks that do not already have one.
// Chunks arriving with an embedding are passed through untouched so no text is
// ever paid for twice.
func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	missing := make([]int, 0, len(in.Chunks))
	texts := make([]string, 0, len(in.Chunks))
	for i := range in.Chunks {
		if len(in.Chunks[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, in.Chunks[i].Text)
		}
	}
	out := EmbedChunksOutput{Chunks: in.Chunks, ProviderName: ref.Name}
	if len(missing) == 0 {
		return out, nil
	}
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: "chunk_embed",
		Inputs:    texts,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed %d chunks: %w", len(missing), err)
	}
	if len(vectors) != len(missing) {
		return EmbedChunksOutput{}, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vectors), len(missing))
	}
	for n, idx := range missing {
		out.Chunks[idx].Embedding = vectors[n]
	}
	out.Embedded = len(missing)
	out.Model = info.Model
	return out, nil
}

func (a *Activities) DeleteModuleChunksActivity(ctx context.Context, in DeleteModuleChunksInput) error {
	return a.vectors.DeleteModuleChunks(ctx, in.ModuleID)
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) (UpsertChunksOutput, error) {
	if err := a.vectors.UpsertChunks(ctx, in.Chunks, in.ModuleID); err != nil {
		return UpsertChunksOutput{}, err
	}
	return UpsertChunksOutput{Upserted: len(in.Chunks)}, nil
}

func (a *Activities) AnalyzeContentActivity(ctx context.Context, in AnalyzeContentInput) (AnalyzeContentOutput, error) {
	provider, ref := a.providers.LLMProviderByIndex(in.ProviderIndex)
	analysis, err := generation.NewLLMAnalyzer(provider).Analyze(ctx, generation.AnalyzeInput{
		ModuleID:    in.ModuleID,
		ModuleTitle: in.ModuleTitle,
		Chunks:      in.Chunks,
	})
	if err != nil {
		return AnalyzeContentOutput{}, err
	}
	return AnalyzeContentOutput{Analysis: analysis, ProviderName: ref.Name}, nil
}

func (a *Activities) GenerateCardsActivity(ctx context.Context, in GenerateCardsInput) (GenerateCardsOutput, error) {
	provider, ref := a.providers.LLMProviderByIndex(in.ProviderIndex)
	cards, err := generation.NewLLMGenerator(provider).Generate(ctx, generation.GenerateInput{
		ModuleID:    in.ModuleID,
		ModuleTitle: in.ModuleTitle,
		Chunks:      in.Chunks,
		Analysis:    in.Analysis,
		TargetCount: in.TargetCount,
		Difficulty:  in.Difficulty,
		BloomLevels: in.BloomLevels,
	})
	if err != nil {
		return GenerateCardsOutput{}, err
	}
	return GenerateCardsOutput{Cards: cards, ProviderName: ref.Name}, nil
}

func (a *Activities) VerifyCardsActivity(ctx context.Context, in VerifyCardsInput) (VerifyCardsOutput, error) {
	var verifier generation.Verifier
	if in.UseLLM {
		provider, _ := a.providers.LLMProviderByIndex(in.ProviderIndex)
		verifier = generation.NewLLMVerifier(provider, in.Threshold)
	} else {
		verifier = generation.NewOverlapVerifier(in.Threshold)
	}
	cards := in.Cards
	rate, err := generation.VerifyAll(ctx, verifier, cards, in.Concurrency)
	if err != nil {
		return VerifyCardsOutput{}, err
	}
	verified := 0
	for i := range cards {
		if cards[i].Verified {
			verified++
		}
	}
	return VerifyCardsOutput{Cards: cards, VerifiedCount: verified, VerificationRate: rate}, nil
}

// SaveDeckActivity persists the deck row and writes the JSON artifact. The
// deck id is minted here from the save timestamp, so a retried save produces
// a new immutable deck rather than clobbering a possibly-committed one.
func (a *Activities) SaveDeckActivity(ctx context.Context, in SaveDeckInput) (SaveDeckOutput, error) {
	deck := models.Deck{
		DeckID:           fmt.Sprintf("%s-%d", in.ModuleID, time.Now().Unix()),
		ModuleID:         in.ModuleID,
		ModuleTitle:      in.ModuleTitle,
		CourseID:         in.CourseID,
		Cards:            in.Cards,
		VerificationRate: in.VerificationRate,
		GeneratedAt:      time.Now().UTC(),
		Warnings:         in.Warnings,
	}
	deckPath := filepath.Join(a.cfg.DeckOutRoot, deckDir(in.CourseID, in.ModuleID), deck.DeckID+".json")
	if err := util.WriteJSONAtomic(deckPath, deck); err != nil {
		return SaveDeckOutput{}, fmt.Errorf("write deck artifact: %w", err)
	}
	if err := a.deckRepo.InsertDeck(ctx, deck, deckPath); err != nil {
		return SaveDeckOutput{}, err
	}
	a.log.Info("deck saved",
		zap.String("deck_id", deck.DeckID),
		zap.String("module_id", in.ModuleID),
		zap.Int("cards", len(in.Cards)),
		zap.Float64("verification_rate", in.VerificationRate))
	return SaveDeckOutput{DeckID: deck.DeckID, DeckPath: deckPath}, nil
}

func deckDir(courseID, moduleID string) string {
	if courseID == "" {
		return moduleID
	}
	return filepath.Join(courseID, moduleID)
}

func (a *Activities) RecordStageActivity(ctx context.Context, in RecordStageInput) error {
	return a.jobRepo.AppendStage(ctx, models.StageLogEntry{
		RunID:      in.RunID,
		Seq:        in.Seq,
		Stage:      in.Stage,
		Status:     models.StageStatus(in.Status),
		DurationMS: in.DurationMS,
		Message:    in.Message,
	})
}

func (a *Activities) UpdateRunActivity(ctx context.Context, in UpdateRunInput) error {
	return a.runRepo.UpsertRun(ctx, in.Run)
}
