package workflows

import (
	"fmt"
	"strings"
	"time"

	"cardflow/internal/activities"
	"cardflow/internal/models"
	"cardflow/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetJobProgress = "GetJobProgress"
	QueryGetRunProgress = "GetRunProgress"
)

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// GenerateJobWorkflow fans a generate job out into one DeckBuildWorkflow per
// target module, with a bounded concurrency window. The job completes as long
// as at least one module run produced a deck; it fails only when every run
// failed or no targets resolved.
func GenerateJobWorkflow(ctx workflow.Context, input GenerateJobInput) (string, error) {
	progress := JobProgress{
		JobID:         input.JobID,
		PerModule:     map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetJobProgress, func() (JobProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	_ = workflow.ExecuteActivity(ctx, "UpdateJobStatusActivity", activities.UpdateJobStatusInput{
		JobID: input.JobID, Status: string(models.JobRunning),
	}).Get(ctx, nil)

	var resolved activities.ResolveTargetsOutput
	if err := workflow.ExecuteActivity(ctx, "ResolveTargetsActivity", activities.ResolveTargetsInput{
		Mode: input.Mode, Target: input.Target,
	}).Get(ctx, &resolved); err != nil {
		_ = workflow.ExecuteActivity(ctx, "UpdateJobStatusActivity", activities.UpdateJobStatusInput{
			JobID: input.JobID, Status: string(models.JobFailed),
		}).Get(ctx, nil)
		return string(models.JobFailed), err
	}

	targets := resolved.Targets
	progress.Total = len(targets)
	if len(targets) == 0 {
		_ = workflow.ExecuteActivity(ctx, "UpdateJobStatusActivity", activities.UpdateJobStatusInput{
			JobID: input.JobID, Status: string(models.JobFailed),
		}).Get(ctx, nil)
		return string(models.JobFailed), nil
	}

	window := input.MaxConcurrentRuns
	if window <= 0 {
		window = 3
	}

	succeeded := 0
	for i := 0; i < len(targets); i += window {
		end := i + window
		if end > len(targets) {
			end = len(targets)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		batch := targets[i:end]
		for _, target := range batch {
			progress.PerModule[target.ModuleID] = "running"
			workflowID := "deck-" + sanitizeID(input.JobID) + "-" + sanitizeID(target.ModuleID)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, DeckBuildWorkflow, DeckBuildInput{
				JobID:               input.JobID,
				ModuleID:            target.ModuleID,
				CourseID:            target.CourseID,
				Settings:            input.Settings,
				ChunkSize:           input.ChunkSize,
				ChunkOverlap:        input.ChunkOverlap,
				CardCount:           input.CardCount,
				MinViableCards:      input.MinViableCards,
				VerifyThreshold:     input.VerifyThreshold,
				VerifyConcurrency:   input.VerifyConcurrency,
				LLMVerify:           input.LLMVerify,
				LLMProviders:        input.LLMProviders,
				EmbedProviders:      input.EmbedProviders,
				CooldownSeconds:     input.CooldownSeconds,
				StageTimeoutSeconds: input.StageTimeoutSeconds,
			}))
			progress.ChildWorkflow[target.ModuleID] = workflowID
		}

		for idx, f := range futures {
			moduleID := batch[idx].ModuleID
			var runStatus string
			if err := f.Get(ctx, &runStatus); err != nil {
				progress.Failed++
				progress.PerModule[moduleID] = string(models.RunFailed)
				continue
			}
			progress.Done++
			progress.PerModule[moduleID] = runStatus
			if runStatus != string(models.RunFailed) {
				succeeded++
			} else {
				progress.Failed++
			}
		}
	}

	jobStatus := models.JobCompleted
	if succeeded == 0 {
		jobStatus = models.JobFailed
	}
	_ = workflow.ExecuteActivity(ctx, "UpdateJobStatusActivity", activities.UpdateJobStatusInput{
		JobID: input.JobID, Status: string(jobStatus),
	}).Get(ctx, nil)
	return string(jobStatus), nil
}

// DeckBuildWorkflow runs the per-module pipeline: ingest, transcribe, chunk,
// embed, upsert, analyze, generate, verify, save. Every stage leaves a log
// entry. Provider-backed stages degrade to a failed stage plus a warning where
// the pipeline can still produce cards; only missing content or an empty card
// set fails the run outright.
func DeckBuildWorkflow(ctx workflow.Context, input DeckBuildInput) (string, error) {
	runID := sanitizeID(input.JobID) + "-" + sanitizeID(input.ModuleID)
	progress := RunProgress{
		RunID:    runID,
		ModuleID: input.ModuleID,
		Status:   "running",
		Stages:   map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunProgress, func() (RunProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: stageTimeout(input.StageTimeoutSeconds),
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Provider calls get exactly one attempt per invocation; retry and
	// failover decisions belong to the workflow, not Temporal's retry policy.
	providerCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: stageTimeout(input.StageTimeoutSeconds),
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var seq int64
	record := func(stage string, status models.StageStatus, started time.Time, msg string) {
		seq++
		progress.CurrentStage = stage
		progress.Stages[stage] = string(status)
		_ = workflow.ExecuteActivity(ctx, "RecordStageActivity", activities.RecordStageInput{
			RunID:      runID,
			Seq:        seq,
			Stage:      stage,
			Status:     string(status),
			DurationMS: workflow.Now(ctx).Sub(started).Milliseconds(),
			Message:    msg,
		}).Get(ctx, nil)
	}
	warn := func(stage, msg string) {
		progress.Warnings = append(progress.Warnings, stage+": "+msg)
	}
	updateRun := func(status models.RunStatus, cardCount, verifiedCount int, deckID, deckPath, message string) {
		_ = workflow.ExecuteActivity(ctx, "UpdateRunActivity", activities.UpdateRunInput{Run: models.ModuleRun{
			RunID:         runID,
			JobID:         input.JobID,
			ModuleID:      input.ModuleID,
			CourseID:      input.CourseID,
			Status:        string(status),
			CardCount:     cardCount,
			VerifiedCount: verifiedCount,
			DeckID:        deckID,
			DeckPath:      deckPath,
			Message:       message,
		}}).Get(ctx, nil)
	}

	failRun := func(message string) (string, error) {
		progress.Status = string(models.RunFailed)
		updateRun(models.RunFailed, 0, 0, "", "", message)
		return string(models.RunFailed), nil
	}

	updateRun("running", 0, 0, "", "", "")

	llmProviders := defaultCount(input.LLMProviders)
	embedProviders := defaultCount(input.EmbedProviders)
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	llmState := newProviderState()
	embedState := newProviderState()
	failedStages := 0

	// ingest
	started := workflow.Now(ctx)
	var fetched activities.FetchModuleContentOutput
	if err := workflow.ExecuteActivity(ctx, "FetchModuleContentActivity", activities.FetchModuleContentInput{
		CourseID: input.CourseID, ModuleID: input.ModuleID,
	}).Get(ctx, &fetched); err != nil {
		record("ingest", models.StageFailed, started, err.Error())
		return failRun("module content not found")
	}
	record("ingest", models.StageSuccess, started, fmt.Sprintf("%d sources", len(fetched.Content.Sources)))
	moduleContent := fetched.Content

	// transcribe
	started = workflow.Now(ctx)
	if pendingMedia(moduleContent) == 0 {
		record("transcribe", models.StageSkipped, started, "no media sources")
	} else {
		var transcribed activities.TranscribeMediaOutput
		if err := workflow.ExecuteActivity(providerCtx, "TranscribeMediaActivity", activities.TranscribeMediaInput{
			Content: moduleContent,
		}).Get(ctx, &transcribed); err != nil {
			failedStages++
			record("transcribe", models.StageFailed, started, err.Error())
			warn("transcribe", "media sources excluded from this run")
		} else {
			moduleContent = transcribed.Content
			record("transcribe", models.StageSuccess, started,
				fmt.Sprintf("%d media files, %d segments via %s", transcribed.MediaCount, transcribed.SegmentCount, transcribed.ProviderName))
		}
	}

	// chunk
	started = workflow.Now(ctx)
	var prepared activities.PrepareChunksOutput
	if err := workflow.ExecuteActivity(ctx, "PrepareChunksActivity", activities.PrepareChunksInput{
		Content:      moduleContent,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &prepared); err != nil {
		record("chunk", models.StageFailed, started, err.Error())
		return failRun("chunking failed")
	}
	chunks := prepared.Chunks
	if len(chunks) == 0 {
		record("chunk", models.StageFailed, started, "no chunks produced")
		return failRun("module has no usable content")
	}
	record("chunk", models.StageSuccess, started, fmt.Sprintf("%d chunks", len(chunks)))

	// embed
	started = workflow.Now(ctx)
	embedOut, err := callEmbedWithFailover(providerCtx, &embedState, embedProviders, cooldown, activities.EmbedChunksInput{Chunks: chunks})
	if err != nil {
		failedStages++
		record("embed", models.StageFailed, started, err.Error())
		warn("embed", "chunks not embedded, index search unavailable for this run")
	} else {
		chunks = embedOut.Chunks
		record("embed", models.StageSuccess, started,
			fmt.Sprintf("%d embedded via %s", embedOut.Embedded, embedOut.ProviderName))
	}

	// upsert
	started = workflow.Now(ctx)
	if input.Settings.ForceAll {
		if err := workflow.ExecuteActivity(ctx, "DeleteModuleChunksActivity", activities.DeleteModuleChunksInput{
			ModuleID: input.ModuleID,
		}).Get(ctx, nil); err != nil {
			warn("upsert", "stale chunk cleanup failed")
		}
	}
	var upserted activities.UpsertChunksOutput
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		ModuleID: input.ModuleID, Chunks: chunks,
	}).Get(ctx, &upserted); err != nil {
		failedStages++
		record("upsert", models.StageFailed, started, err.Error())
		warn("upsert", "chunk index not updated for this run")
	} else {
		record("upsert", models.StageSuccess, started, fmt.Sprintf("%d points", upserted.Upserted))
	}

	// stage_a
	started = workflow.Now(ctx)
	var analysis models.StageAOutput
	analyzeOut, err := callLLMWithFailover[activities.AnalyzeContentInput, activities.AnalyzeContentOutput](
		providerCtx, &llmState, llmProviders, cooldown, "AnalyzeContentActivity",
		activities.AnalyzeContentInput{ModuleID: input.ModuleID, ModuleTitle: moduleContent.Title, Chunks: chunks},
		func(in activities.AnalyzeContentInput, idx int) activities.AnalyzeContentInput {
			in.ProviderIndex = idx
			return in
		})
	if err != nil {
		failedStages++
		record("stage_a", models.StageFailed, started, err.Error())
		warn("stage_a", "generating without module analysis")
	} else {
		analysis = analyzeOut.Analysis
		record("stage_a", models.StageSuccess, started,
			fmt.Sprintf("%d objectives via %s", len(analysis.LearningObjectives), analyzeOut.ProviderName))
	}

	// stage_b
	started = workflow.Now(ctx)
	generateOut, err := callLLMWithFailover[activities.GenerateCardsInput, activities.GenerateCardsOutput](
		providerCtx, &llmState, llmProviders, cooldown, "GenerateCardsActivity",
		activities.GenerateCardsInput{
			ModuleID:    input.ModuleID,
			ModuleTitle: moduleContent.Title,
			Chunks:      chunks,
			Analysis:    analysis,
			TargetCount: input.CardCount,
			Difficulty:  input.Settings.Difficulty,
			BloomLevels: input.Settings.BloomLevels,
		},
		func(in activities.GenerateCardsInput, idx int) activities.GenerateCardsInput {
			in.ProviderIndex = idx
			return in
		})
	if err != nil || len(generateOut.Cards) == 0 {
		msg := "no cards generated"
		if err != nil {
			msg = err.Error()
		}
		record("stage_b", models.StageFailed, started, msg)
		return failRun("card generation produced nothing")
	}
	cards := generateOut.Cards
	record("stage_b", models.StageSuccess, started,
		fmt.Sprintf("%d cards via %s", len(cards), generateOut.ProviderName))
	progress.CardCount = len(cards)

	// verify
	started = workflow.Now(ctx)
	verificationRate := 0.0
	verifiedCount := 0
	var verifyOut activities.VerifyCardsOutput
	if err := workflow.ExecuteActivity(providerCtx, "VerifyCardsActivity", activities.VerifyCardsInput{
		Cards:       cards,
		Threshold:   input.VerifyThreshold,
		Concurrency: input.VerifyConcurrency,
		UseLLM:      input.LLMVerify,
	}).Get(ctx, &verifyOut); err != nil {
		failedStages++
		record("verify", models.StageFailed, started, err.Error())
		warn("verify", "all cards flagged for review")
	} else {
		cards = verifyOut.Cards
		verificationRate = verifyOut.VerificationRate
		verifiedCount = verifyOut.VerifiedCount
		record("verify", models.StageSuccess, started,
			fmt.Sprintf("%d/%d verified", verifiedCount, len(cards)))
	}
	progress.VerifiedCount = verifiedCount

	// save_deck
	started = workflow.Now(ctx)
	var saved activities.SaveDeckOutput
	if err := workflow.ExecuteActivity(ctx, "SaveDeckActivity", activities.SaveDeckInput{
		RunID:            runID,
		JobID:            input.JobID,
		ModuleID:         input.ModuleID,
		CourseID:         input.CourseID,
		ModuleTitle:      moduleContent.Title,
		Cards:            cards,
		VerificationRate: verificationRate,
		Warnings:         progress.Warnings,
	}).Get(ctx, &saved); err != nil {
		record("save_deck", models.StageFailed, started, err.Error())
		progress.Status = string(models.RunPartial)
		updateRun(models.RunPartial, len(cards), verifiedCount, "", "", "cards generated but deck not persisted")
		return string(models.RunPartial), nil
	}
	record("save_deck", models.StageSuccess, started, saved.DeckID)

	minViable := input.MinViableCards
	if minViable <= 0 {
		minViable = 10
	}
	runStatus := models.RunPartial
	message := fmt.Sprintf("%d cards below minimum of %d", len(cards), minViable)
	if failedStages == 0 && len(cards) >= minViable {
		runStatus = models.RunSuccess
		message = ""
	} else if failedStages > 0 {
		message = fmt.Sprintf("%d stages failed", failedStages)
	}
	progress.Status = string(runStatus)
	updateRun(runStatus, len(cards), verifiedCount, saved.DeckID, saved.DeckPath, message)
	return string(runStatus), nil
}

// callLLMWithFailover rotates through the configured LLM providers on error,
// with per-class handling: quota errors cool a provider down, rate and
// transient errors earn a short sleep and another try, anything else disables
// the provider for a minute.
func callLLMWithFailover[In, Out any](ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, activityName string, input In, withIndex func(In, int) In) (Out, error) {
	var zero Out
	var lastErr error
	for attempt := 0; attempt < providerCount*4; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		var out Out
		err := workflow.ExecuteActivity(ctx, activityName, withIndex(input, idx)).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		key := fmt.Sprintf("%s-%d", activityName, idx)
		state.retries[key]++
		switch providers.ClassifyError(err) {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all providers exhausted for %s", activityName)
	}
	return zero, lastErr
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
	return callLLMWithFailover[activities.EmbedChunksInput, activities.EmbedChunksOutput](
		ctx, state, providerCount, cooldown, "EmbedChunksActivity", input,
		func(in activities.EmbedChunksInput, idx int) activities.EmbedChunksInput {
			in.ProviderIndex = idx
			return in
		})
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func pendingMedia(content models.ModuleContent) int {
	n := 0
	for _, src := range content.Sources {
		if src.Kind == models.SourceMedia && len(src.Segments) == 0 {
			n++
		}
	}
	return n
}

func stageTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func defaultCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}
