package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"cardflow/internal/models"
)

// MockProvider serves all three provider roles with deterministic, offline
// output. Identical requests always produce identical responses so pipeline
// tests are stable end to end.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	op := strings.ToLower(req.Operation)
	switch {
	case strings.Contains(op, "analyze"):
		return GenerateResponse{Text: mockAnalysisJSON(req.Context)}, info, nil
	case strings.Contains(op, "cards"):
		return GenerateResponse{Text: mockCardsJSON(req.Context)}, info, nil
	case strings.Contains(op, "verify"):
		return GenerateResponse{Text: `{"supported": true, "confidence": 0.9, "note": "mock verification"}`}, info, nil
	default:
		return GenerateResponse{Text: "Mock response."}, info, nil
	}
}

func (m *MockProvider) Transcribe(ctx context.Context, req TranscribeRequest) ([]models.TranscriptSegment, ProviderInfo, error) {
	_ = ctx
	base := strings.TrimSuffix(filepath.Base(req.MediaPath), filepath.Ext(req.MediaPath))
	if base == "" {
		base = "recording"
	}
	segments := make([]models.TranscriptSegment, 0, 3)
	for i := 0; i < 3; i++ {
		segments = append(segments, models.TranscriptSegment{
			Text:     fmt.Sprintf("Mock transcript of %s, part %d. The lecture explains %s in more detail.", base, i+1, base),
			StartSec: float64(i * 30),
			EndSec:   float64((i + 1) * 30),
		})
	}
	return segments, ProviderInfo{Name: "mock", Model: "mock-transcribe-v1", Key: "mock"}, nil
}

// mockAnalysisJSON derives objectives and key terms from the supplied context
// snippets only, so the same chunks always produce the same analysis.
func mockAnalysisJSON(context []string) string {
	objectives := make([]string, 0, len(context))
	terms := make([]string, 0, len(context))
	for _, c := range context {
		text := stripChunkTag(c)
		lead := leadingWords(text, 6)
		if lead == "" {
			continue
		}
		objectives = append(objectives, "Understand "+lead)
		if t := firstLongWord(text); t != "" {
			terms = append(terms, t)
		}
	}
	payload := map[string]any{
		"learning_objectives":  objectives,
		"key_terms":            dedupeStrings(terms),
		"estimated_difficulty": "core",
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// mockCardsJSON emits two distinct cards per context entry, a recall card and
// a concept card, each citing the entry's chunk id. It never repeats a card
// to pad toward a target count.
func mockCardsJSON(context []string) string {
	type evidence struct {
		ChunkID string `json:"chunk_id"`
	}
	type card struct {
		Question   string     `json:"question"`
		Answer     string     `json:"answer"`
		Rationale  string     `json:"rationale"`
		Evidence   []evidence `json:"evidence"`
		BloomLevel string     `json:"bloom_level"`
		Difficulty string     `json:"difficulty"`
		Confidence float64    `json:"confidence"`
	}
	cards := make([]card, 0, 2*len(context))
	for _, c := range context {
		id := chunkTagID(c)
		if id == "" {
			continue
		}
		text := stripChunkTag(c)
		lead := leadingWords(text, 8)
		answer := clipText(text, 180)
		cards = append(cards, card{
			Question:   fmt.Sprintf("What does the material state about %s?", lead),
			Answer:     answer,
			Rationale:  "Directly stated in the cited segment.",
			Evidence:   []evidence{{ChunkID: id}},
			BloomLevel: "remember",
			Difficulty: "core",
			Confidence: 0.9,
		})
		cards = append(cards, card{
			Question:   fmt.Sprintf("Summarize the main idea behind %s.", lead),
			Answer:     answer,
			Rationale:  "Paraphrase of the cited segment.",
			Evidence:   []evidence{{ChunkID: id}},
			BloomLevel: "understand",
			Difficulty: "core",
			Confidence: 0.8,
		})
	}
	b, _ := json.Marshal(map[string]any{"cards": cards})
	return string(b)
}

// Context snippets carry a "[chunk:<id>]" prefix so evidence can be attributed
// without a second retrieval pass.

func chunkTagID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[chunk:") {
		return ""
	}
	end := strings.Index(s, "]")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(s[len("[chunk:"):end])
}

func stripChunkTag(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[chunk:") {
		if end := strings.Index(s, "]"); end >= 0 {
			s = s[end+1:]
		}
	}
	return strings.TrimSpace(s)
}

func leadingWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.TrimRight(strings.Join(fields, " "), ".,;:")
}

func firstLongWord(s string) string {
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, ".,;:()[]\"'")
		if len(f) >= 6 {
			return strings.ToLower(f)
		}
	}
	return ""
}

func clipText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		v := float32(u%2000)/1000.0 - 1.0
		vec[i] = v
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)+1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
