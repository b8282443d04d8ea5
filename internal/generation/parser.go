package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"cardflow/internal/models"

	"github.com/google/uuid"
)

// stripCodeFence unwraps ```json ... ``` fences that chat-tuned models wrap
// around output despite being told not to.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ParseStageA decodes a module analysis response.
func ParseStageA(raw string) (models.StageAOutput, error) {
	var out models.StageAOutput
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return models.StageAOutput{}, fmt.Errorf("decode analysis response: %w", err)
	}
	switch out.EstimatedDifficulty {
	case "intro", "core", "advanced":
	default:
		out.EstimatedDifficulty = "core"
	}
	return out, nil
}

type rawCard struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Rationale  string `json:"rationale"`
	Evidence   []struct {
		ChunkID string `json:"chunk_id"`
	} `json:"evidence"`
	BloomLevel string  `json:"bloom_level"`
	Difficulty string  `json:"difficulty"`
	Confidence float64 `json:"confidence"`
}

type rawCardEnvelope struct {
	Cards []rawCard `json:"cards"`
}

// ParseCards decodes a card generation response and enforces the evidence
// contract: a card survives only with at least one citation that resolves to a
// chunk we actually offered the model. Questions are deduplicated and the list
// is capped at targetCount.
func ParseCards(raw string, chunkByID map[string]models.ContextChunk, targetCount int) ([]models.Card, error) {
	var envelope rawCardEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("decode cards response: %w", err)
	}

	seen := make(map[string]bool, len(envelope.Cards))
	cards := make([]models.Card, 0, len(envelope.Cards))
	for _, rc := range envelope.Cards {
		question := strings.TrimSpace(rc.Question)
		answer := strings.TrimSpace(rc.Answer)
		if question == "" || answer == "" {
			continue
		}
		key := strings.ToLower(question)
		if seen[key] {
			continue
		}

		evidence := make([]models.CardEvidence, 0, len(rc.Evidence))
		for _, ev := range rc.Evidence {
			chunk, ok := chunkByID[ev.ChunkID]
			if !ok {
				// Hallucinated citation; drop it rather than persist a
				// reference nothing can resolve.
				continue
			}
			evidence = append(evidence, models.CardEvidence{
				ChunkID: chunk.ChunkID,
				Text:    clipEvidence(chunk.Text),
			})
		}
		if len(evidence) == 0 {
			continue
		}
		seen[key] = true

		cards = append(cards, models.Card{
			CardID:         uuid.NewString(),
			Question:       question,
			Answer:         answer,
			Rationale:      strings.TrimSpace(rc.Rationale),
			Evidence:       evidence,
			BloomLevel:     rc.BloomLevel,
			Difficulty:     rc.Difficulty,
			Confidence:     clampConfidence(rc.Confidence),
			Verified:       false,
			ReviewRequired: true,
		})
		if targetCount > 0 && len(cards) >= targetCount {
			break
		}
	}
	return cards, nil
}

type rawVerify struct {
	Supported  bool    `json:"supported"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note"`
}

func parseVerify(raw string) (rawVerify, error) {
	var out rawVerify
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return rawVerify{}, fmt.Errorf("decode verify response: %w", err)
	}
	out.Confidence = clampConfidence(out.Confidence)
	return out, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clipEvidence(text string) string {
	const maxRunes = 420
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes]) + "…"
}
