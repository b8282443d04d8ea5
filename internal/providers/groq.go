package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardflow/internal/models"
)

// GroqProvider supports LLM generation and Whisper transcription via Groq's
// OpenAI-compatible API.
type GroqProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	model := os.Getenv("CARDFLOW_GROQ_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "llama-3.1-8b-instant"
	}
	return &GroqProvider{
		keyName: keyName,
		apiKey:  resolveGroqKey(keyName),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if g.apiKey == "" {
		return GenerateResponse{}, ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	payload, _ := json.Marshal(map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a study-card generation assistant. Always return strict JSON when the prompt asks for JSON, with no commentary."},
			{"role": "user", "content": prompt},
		},
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.groq.com/openai/v1/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}, fmt.Errorf("groq generate request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}, fmt.Errorf("groq generate error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}, fmt.Errorf("decode groq response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}, fmt.Errorf("groq returned empty choices")
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}, nil
}

func (g *GroqProvider) Transcribe(ctx context.Context, req TranscribeRequest) ([]models.TranscriptSegment, ProviderInfo, error) {
	model := os.Getenv("CARDFLOW_GROQ_WHISPER_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "whisper-large-v3-turbo"
	}
	info := ProviderInfo{Name: "groq", Model: model, Key: g.keyName}
	if g.apiKey == "" {
		return nil, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	f, err := os.Open(req.MediaPath)
	if err != nil {
		return nil, info, fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(req.MediaPath))
	if err != nil {
		return nil, info, fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, info, fmt.Errorf("copy media into form: %w", err)
	}
	_ = mw.WriteField("model", model)
	_ = mw.WriteField("response_format", "verbose_json")
	if strings.TrimSpace(req.Language) != "" {
		_ = mw.WriteField("language", req.Language)
	}
	if err := mw.Close(); err != nil {
		return nil, info, fmt.Errorf("close transcription form: %w", err)
	}

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.groq.com/openai/v1/audio/transcriptions", &buf)
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("groq transcription request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, fmt.Errorf("groq transcription error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Text     string `json:"text"`
		Segments []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode transcription response: %w", err)
	}
	out := make([]models.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, models.TranscriptSegment{Text: text, StartSec: s.Start, EndSec: s.End})
	}
	if len(out) == 0 && strings.TrimSpace(parsed.Text) != "" {
		out = append(out, models.TranscriptSegment{Text: strings.TrimSpace(parsed.Text)})
	}
	if len(out) == 0 {
		return nil, info, fmt.Errorf("groq returned empty transcript")
	}
	return out, info, nil
}

func resolveGroqKey(alias string) string {
	if alias != "" {
		k := os.Getenv("CARDFLOW_GROQ_KEY_" + strings.ToUpper(alias))
		if k != "" {
			return k
		}
	}
	return os.Getenv("GROQ_API_KEY")
}
