package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cardflow/internal/config"
	"cardflow/internal/models"
	"cardflow/internal/providers"
	"cardflow/internal/storage"
	"cardflow/internal/vector"
	"cardflow/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

type Server struct {
	cfg       config.Config
	db        *storage.DB
	jobRepo   *storage.JobRepo
	runRepo   *storage.RunRepo
	deckRepo  *storage.DeckRepo
	providers *providers.Manager
	vectors   *vector.Store
	temporal  tclient.Client
	log       *zap.Logger
}

func NewServer(cfg config.Config, log *zap.Logger) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	embedder, _ := pm.FirstEmbedProvider()
	return &Server{
		cfg:       cfg,
		db:        db,
		jobRepo:   storage.NewJobRepo(db),
		runRepo:   storage.NewRunRepo(db),
		deckRepo:  storage.NewDeckRepo(db),
		providers: pm,
		vectors:   vector.NewStore(db.Pool, embedder, cfg.EmbedDim, cfg.UpsertBatchSize),
		temporal:  tc,
		log:       log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/jobs/", s.handleJobScoped)
	mux.HandleFunc("/runs/", s.handleRunScoped)
	mux.HandleFunc("/modules/", s.handleModuleScoped)
	mux.HandleFunc("/decks/", s.handleDeck)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type generateRequest struct {
	Mode     string             `json:"mode"`
	Target   models.JobTarget   `json:"target"`
	Settings models.JobSettings `json:"settings"`
}

// validateGenerateRequest rejects a malformed request before anything is
// enqueued; async failure is reserved for work that actually started.
func validateGenerateRequest(req generateRequest, cfg config.Config) (models.GenerateJob, error) {
	mode := models.GenerateMode(strings.TrimSpace(req.Mode))
	switch mode {
	case models.ModeSingleModule:
		if strings.TrimSpace(req.Target.ModuleID) == "" {
			return models.GenerateJob{}, fmt.Errorf("module_id is required for single_module jobs")
		}
	case models.ModeCourse:
		if strings.TrimSpace(req.Target.CourseID) == "" {
			return models.GenerateJob{}, fmt.Errorf("course_id is required for course jobs")
		}
	case models.ModeAllCourses:
	default:
		return models.GenerateJob{}, fmt.Errorf("mode must be one of single_module, course, all_courses")
	}

	if req.Settings.CardCount < 0 || req.Settings.CardCount > cfg.MaxCardCount {
		return models.GenerateJob{}, fmt.Errorf("card_count must be between 1 and %d", cfg.MaxCardCount)
	}
	if req.Settings.CardCount == 0 {
		req.Settings.CardCount = cfg.DefaultCardCount
	}
	switch req.Settings.Difficulty {
	case "", "mixed", "intro", "core", "advanced":
	default:
		return models.GenerateJob{}, fmt.Errorf("difficulty must be one of intro, core, advanced, mixed")
	}
	for _, level := range req.Settings.BloomLevels {
		switch level {
		case "remember", "understand", "apply", "analyze", "evaluate", "create":
		default:
			return models.GenerateJob{}, fmt.Errorf("unknown bloom level: %s", level)
		}
	}

	return models.GenerateJob{
		JobID:    uuid.NewString(),
		Mode:     mode,
		Target:   req.Target,
		Settings: req.Settings,
		Status:   models.JobQueued,
	}, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	job, err := validateGenerateRequest(req, s.cfg)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := s.jobRepo.CreateJob(r.Context(), job); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       "job-" + job.JobID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.GenerateJobWorkflow, workflows.GenerateJobInput{
		JobID:               job.JobID,
		Mode:                job.Mode,
		Target:              job.Target,
		Settings:            job.Settings,
		MaxConcurrentRuns:   s.cfg.MaxConcurrentRuns,
		ChunkSize:           s.cfg.ChunkSize,
		ChunkOverlap:        s.cfg.ChunkOverlap,
		CardCount:           job.Settings.CardCount,
		MinViableCards:      s.cfg.MinViableCards,
		VerifyThreshold:     s.cfg.VerifyThreshold,
		VerifyConcurrency:   s.cfg.VerifyConcurrency,
		LLMVerify:           !s.providers.MockOnly(),
		LLMProviders:        s.providers.LLMCount(),
		EmbedProviders:      s.providers.EmbedCount(),
		CooldownSeconds:     s.cfg.ProviderCooldownSecs,
		StageTimeoutSeconds: s.cfg.StageTimeoutSecs,
	})
	if err != nil {
		_ = s.jobRepo.UpdateJobStatus(r.Context(), job.JobID, models.JobFailed)
		writeErr(w, http.StatusConflict, err)
		return
	}
	s.log.Info("generate job accepted",
		zap.String("job_id", job.JobID),
		zap.String("mode", string(job.Mode)),
		zap.String("workflow_id", we.GetID()))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.JobID,
		"status":     string(models.JobQueued),
		"status_url": "/jobs/" + job.JobID,
	})
}

func (s *Server) handleJobScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	job, err := s.jobRepo.GetJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	runs, err := s.runRepo.ListRunsForJob(r.Context(), jobID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	stages := make(map[string][]models.StageLogEntry, len(runs))
	for _, run := range runs {
		entries, err := s.jobRepo.ListStages(r.Context(), run.RunID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		stages[run.RunID] = entries
	}

	out := map[string]any{"job": job, "runs": runs, "stages": stages}
	// Live progress comes from the workflow while it is running; the DB is the
	// durable fallback once the workflow has closed.
	if resp, err := s.temporal.QueryWorkflow(r.Context(), "job-"+jobID, "", workflows.QueryGetJobProgress); err == nil {
		var prog workflows.JobProgress
		if err := resp.Get(&prog); err == nil {
			out["progress"] = prog
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "stages" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	stages, err := s.jobRepo.ListStages(r.Context(), parts[0])
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": parts[0], "stages": stages})
}

func (s *Server) handleModuleScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/modules/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	switch parts[1] {
	case "decks":
		decks, err := s.deckRepo.ListDecksForModule(r.Context(), parts[0])
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"module_id": parts[0], "decks": decks})
	case "search":
		s.handleModuleSearch(w, r, parts[0])
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

// handleModuleSearch answers evidence lookups against the chunk index, the
// same index the pipeline upserts into. Useful for auditing what a card's
// cited chunk sits next to.
func (s *Server) handleModuleSearch(w http.ResponseWriter, r *http.Request, moduleID string) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("query parameter q is required"))
		return
	}
	topK := 8
	if k := r.URL.Query().Get("k"); k != "" {
		if n, err := strconv.Atoi(k); err == nil && n > 0 && n <= 50 {
			topK = n
		}
	}
	results, err := s.vectors.SearchText(r.Context(), moduleID, query, topK)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"module_id": moduleID, "query": query, "results": results})
}

func (s *Server) handleDeck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	deckID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/decks/"), "/")
	if deckID == "" || strings.Contains(deckID, "/") {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	deck, deckPath, err := s.deckRepo.GetDeck(r.Context(), deckID)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deck": deck, "path": deckPath})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "CF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "CF-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "CF-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "CF-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "CF-API-4001"
		msg = "Invalid request. Check inputs and retry."
		if err != nil {
			// Validation messages are user-safe by construction.
			msg = capitalize(err.Error())
		}
	case status == http.StatusNotFound:
		code = "CF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "CF-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "CF-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	return apiError{Code: code, Message: msg}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
