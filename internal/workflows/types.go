package workflows

import "cardflow/internal/models"

// GenerateJobInput carries the job identity plus the resolved knobs the
// pipeline needs. Knobs are resolved at enqueue time so a config change on the
// worker never alters a job already in flight.
type GenerateJobInput struct {
	JobID    string              `json:"job_id"`
	Mode     models.GenerateMode `json:"mode"`
	Target   models.JobTarget    `json:"target"`
	Settings models.JobSettings  `json:"settings"`

	MaxConcurrentRuns   int     `json:"max_concurrent_runs"`
	ChunkSize           int     `json:"chunk_size"`
	ChunkOverlap        int     `json:"chunk_overlap"`
	CardCount           int     `json:"card_count"`
	MinViableCards      int     `json:"min_viable_cards"`
	VerifyThreshold     float64 `json:"verify_threshold"`
	VerifyConcurrency   int     `json:"verify_concurrency"`
	LLMVerify           bool    `json:"llm_verify"`
	LLMProviders        int     `json:"llm_providers"`
	EmbedProviders      int     `json:"embed_providers"`
	CooldownSeconds     int     `json:"cooldown_seconds"`
	StageTimeoutSeconds int     `json:"stage_timeout_seconds"`
}

type DeckBuildInput struct {
	JobID    string             `json:"job_id"`
	ModuleID string             `json:"module_id"`
	CourseID string             `json:"course_id,omitempty"`
	Settings models.JobSettings `json:"settings"`

	ChunkSize           int     `json:"chunk_size"`
	ChunkOverlap        int     `json:"chunk_overlap"`
	CardCount           int     `json:"card_count"`
	MinViableCards      int     `json:"min_viable_cards"`
	VerifyThreshold     float64 `json:"verify_threshold"`
	VerifyConcurrency   int     `json:"verify_concurrency"`
	LLMVerify           bool    `json:"llm_verify"`
	LLMProviders        int     `json:"llm_providers"`
	EmbedProviders      int     `json:"embed_providers"`
	CooldownSeconds     int     `json:"cooldown_seconds"`
	StageTimeoutSeconds int     `json:"stage_timeout_seconds"`
}

type JobProgress struct {
	JobID         string            `json:"job_id"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerModule     map[string]string `json:"per_module_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

type RunProgress struct {
	RunID         string            `json:"run_id"`
	ModuleID      string            `json:"module_id"`
	CurrentStage  string            `json:"current_stage"`
	Status        string            `json:"status"`
	Stages        map[string]string `json:"stages"`
	CardCount     int               `json:"card_count"`
	VerifiedCount int               `json:"verified_count"`
	Warnings      []string          `json:"warnings,omitempty"`
}
