package activities

import "cardflow/internal/models"

type ModuleTarget struct {
	ModuleID string `json:"module_id"`
	CourseID string `json:"course_id"`
}

type ResolveTargetsInput struct {
	Mode   models.GenerateMode `json:"mode"`
	Target models.JobTarget    `json:"target"`
}

type ResolveTargetsOutput struct {
	Targets []ModuleTarget `json:"targets"`
}

type UpdateJobStatusInput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type FetchModuleContentInput struct {
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id"`
}

type FetchModuleContentOutput struct {
	Content models.ModuleContent `json:"content"`
}

type TranscribeMediaInput struct {
	Content       models.ModuleContent `json:"content"`
	ProviderIndex int                  `json:"provider_index"`
}

type TranscribeMediaOutput struct {
	Content      models.ModuleContent `json:"content"`
	MediaCount   int                  `json:"media_count"`
	SegmentCount int                  `json:"segment_count"`
	ProviderName string               `json:"provider_name"`
}

type PrepareChunksInput struct {
	Content      models.ModuleContent `json:"content"`
	ChunkSize    int                  `json:"chunk_size"`
	ChunkOverlap int                  `json:"chunk_overlap"`
}

type PrepareChunksOutput struct {
	Chunks []models.ContextChunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Chunks        []models.ContextChunk `json:"chunks"`
	ProviderIndex int                   `json:"provider_index"`
}

type EmbedChunksOutput struct {
	Chunks       []models.ContextChunk `json:"chunks"`
	Embedded     int                   `json:"embedded"`
	ProviderName string                `json:"provider_name"`
	Model        string                `json:"model"`
}

type DeleteModuleChunksInput struct {
	ModuleID string `json:"module_id"`
}

type UpsertChunksInput struct {
	ModuleID string                `json:"module_id"`
	Chunks   []models.ContextChunk `json:"chunks"`
}

type UpsertChunksOutput struct {
	Upserted int `json:"upserted"`
}

type AnalyzeContentInput struct {
	ModuleID      string                `json:"module_id"`
	ModuleTitle   string                `json:"module_title"`
	Chunks        []models.ContextChunk `json:"chunks"`
	ProviderIndex int                   `json:"provider_index"`
}

type AnalyzeContentOutput struct {
	Analysis     models.StageAOutput `json:"analysis"`
	ProviderName string              `json:"provider_name"`
	Model        string              `json:"model"`
}

type GenerateCardsInput struct {
	ModuleID      string                `json:"module_id"`
	ModuleTitle   string                `json:"module_title"`
	Chunks        []models.ContextChunk `json:"chunks"`
	Analysis      models.StageAOutput   `json:"analysis"`
	TargetCount   int                   `json:"target_count"`
	Difficulty    string                `json:"difficulty,omitempty"`
	BloomLevels   []string              `json:"bloom_levels,omitempty"`
	ProviderIndex int                   `json:"provider_index"`
}

type GenerateCardsOutput struct {
	Cards        []models.Card `json:"cards"`
	ProviderName string        `json:"provider_name"`
	Model        string        `json:"model"`
}

type VerifyCardsInput struct {
	Cards         []models.Card `json:"cards"`
	Threshold     float64       `json:"threshold"`
	Concurrency   int           `json:"concurrency"`
	UseLLM        bool          `json:"use_llm"`
	ProviderIndex int           `json:"provider_index"`
}

type VerifyCardsOutput struct {
	Cards            []models.Card `json:"cards"`
	VerifiedCount    int           `json:"verified_count"`
	VerificationRate float64       `json:"verification_rate"`
}

type SaveDeckInput struct {
	RunID            string        `json:"run_id"`
	JobID            string        `json:"job_id"`
	ModuleID         string        `json:"module_id"`
	CourseID         string        `json:"course_id,omitempty"`
	ModuleTitle      string        `json:"module_title"`
	Cards            []models.Card `json:"cards"`
	VerificationRate float64       `json:"verification_rate"`
	Warnings         []string      `json:"warnings,omitempty"`
}

type SaveDeckOutput struct {
	DeckID   string `json:"deck_id"`
	DeckPath string `json:"deck_path"`
}

type RecordStageInput struct {
	RunID      string `json:"run_id"`
	Seq        int64  `json:"seq"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}

type UpdateRunInput struct {
	Run models.ModuleRun `json:"run"`
}
