package models

import "time"

// GenerateMode selects how many module runs a job expands into.
type GenerateMode string

const (
	ModeSingleModule GenerateMode = "single_module"
	ModeCourse       GenerateMode = "course"
	ModeAllCourses   GenerateMode = "all_courses"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
)

// ContextChunk is the atomic unit of source material offered to the LLM and
// stored in the chunk index. ChunkID is derived from module, source file and
// position, so re-ingesting unchanged content yields identical ids.
type ContextChunk struct {
	ChunkID     string    `json:"chunk_id"`
	ModuleID    string    `json:"module_id"`
	SourceFile  string    `json:"source_file"`
	Provider    string    `json:"provider"`
	Heading     string    `json:"heading,omitempty"`
	SlideOrPage *int      `json:"slide_or_page,omitempty"`
	StartSec    *float64  `json:"start_sec,omitempty"`
	EndSec      *float64  `json:"end_sec,omitempty"`
	Text        string    `json:"text"`
	TokensEst   int       `json:"tokens_est"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// StageAOutput is the per-module analysis summary consumed by card generation.
// It is workflow-local and never persisted on its own.
type StageAOutput struct {
	LearningObjectives  []string `json:"learning_objectives"`
	KeyTerms            []string `json:"key_terms"`
	EstimatedDifficulty string   `json:"estimated_difficulty"`
	ElapsedMS           int64    `json:"elapsed_ms"`
}

type CardEvidence struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}

type Card struct {
	CardID         string         `json:"card_id"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	Rationale      string         `json:"rationale,omitempty"`
	Evidence       []CardEvidence `json:"evidence"`
	BloomLevel     string         `json:"bloom_level,omitempty"`
	Difficulty     string         `json:"difficulty,omitempty"`
	Confidence     float64        `json:"confidence"`
	Verified       bool           `json:"verified"`
	ReviewRequired bool           `json:"review_required"`
	VerifyNote     string         `json:"verify_note,omitempty"`
}

// Deck is the immutable artifact of one generation run for one module. A new
// run writes a new deck id; prior decks are never mutated.
type Deck struct {
	DeckID           string    `json:"deck_id"`
	ModuleID         string    `json:"module_id"`
	ModuleTitle      string    `json:"module_title"`
	CourseID         string    `json:"course_id,omitempty"`
	Cards            []Card    `json:"cards"`
	VerificationRate float64   `json:"verification_rate"`
	GeneratedAt      time.Time `json:"generated_at"`
	Warnings         []string  `json:"warnings,omitempty"`
}

type JobTarget struct {
	ModuleID string `json:"module_id,omitempty"`
	CourseID string `json:"course_id,omitempty"`
}

type JobSettings struct {
	Regenerate  bool     `json:"regenerate,omitempty"`
	ForceAll    bool     `json:"force_all,omitempty"`
	CardCount   int      `json:"card_count,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	BloomLevels []string `json:"bloom_levels,omitempty"`
	TriggeredBy string   `json:"triggered_by,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
}

type GenerateJob struct {
	JobID     string       `json:"job_id"`
	Mode      GenerateMode `json:"mode"`
	Target    JobTarget    `json:"target"`
	Settings  JobSettings  `json:"settings"`
	Status    JobStatus    `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// StageLogEntry is one append-only record per executed pipeline stage.
type StageLogEntry struct {
	RunID      string      `json:"run_id"`
	Seq        int64       `json:"seq"`
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ModuleRun is one module-level execution of a generate job.
type ModuleRun struct {
	RunID         string    `json:"run_id"`
	JobID         string    `json:"job_id"`
	ModuleID      string    `json:"module_id"`
	CourseID      string    `json:"course_id,omitempty"`
	Status        string    `json:"status"`
	CardCount     int       `json:"card_count"`
	VerifiedCount int       `json:"verified_count"`
	DeckID        string    `json:"deck_id,omitempty"`
	DeckPath      string    `json:"deck_path,omitempty"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SourceKind string

const (
	SourceDocument   SourceKind = "document"
	SourceMedia      SourceKind = "media"
	SourceTranscript SourceKind = "transcript"
)

// TranscriptSegment is one time-coded span of already-transcribed speech.
type TranscriptSegment struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// ContentSource is one piece of module material. Kind selects which of the
// remaining fields are meaningful: documents carry a file path, media carries
// a path pending transcription, transcripts carry segments inline.
type ContentSource struct {
	Kind     SourceKind          `json:"kind"`
	File     string              `json:"file"`
	Provider string              `json:"provider,omitempty"`
	Heading  string              `json:"heading,omitempty"`
	Language string              `json:"language,omitempty"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// ModuleContent is the read-only manifest of one course module as served by
// the content store.
type ModuleContent struct {
	ModuleID string          `json:"module_id"`
	CourseID string          `json:"course_id,omitempty"`
	Title    string          `json:"title"`
	Sources  []ContentSource `json:"sources"`
}
