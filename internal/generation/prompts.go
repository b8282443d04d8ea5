package generation

import (
	"fmt"
	"strings"

	"cardflow/internal/models"
)

const analyzePromptTemplate = `You are a curriculum analyst for a learning platform.
Given the raw content of one course module, distill what a learner should take away from it.

Output STRICT JSON with this schema:
{
  "learning_objectives": ["string"],
  "key_terms": ["string"],
  "estimated_difficulty": "intro|core|advanced"
}

Rules:
- Emit at most 8 learning objectives and at most 12 key terms.
- Objectives must be supported by the provided content, never outside knowledge.
- If the content is too thin to judge difficulty, use "core".
- Return JSON only, no commentary.`

const cardsPromptTemplate = `You are a flashcard author for a learning platform.
Write question/answer study cards strictly from the provided content snippets.

Output STRICT JSON with this schema:
{
  "cards": [
    {
      "question": "string",
      "answer": "string",
      "rationale": "string",
      "evidence": [{"chunk_id": "string"}],
      "bloom_level": "remember|understand|apply|analyze|evaluate|create",
      "difficulty": "intro|core|advanced",
      "confidence": 0.0
    }
  ]
}

Rules:
- Every card must cite at least one evidence chunk_id copied exactly from a snippet tag.
- Never invent chunk ids and never cite content that is not in the snippets.
- Produce at most %d cards. Fewer is fine when the material is thin; never pad with near-duplicates.
- confidence must be in [0,1].
- Return JSON only, no commentary.`

const verifyPromptTemplate = `You are a fact checker for generated study cards.
Decide whether the card's answer is actually supported by the cited evidence.

Output STRICT JSON with this schema:
{"supported": true, "confidence": 0.0, "note": "string"}

Rules:
- supported is true only when the evidence states or directly implies the answer.
- confidence must be in [0,1].
- Keep the note to one short sentence.
- Return JSON only, no commentary.

Question: %s
Answer: %s`

// ChunkContext renders chunks as tagged snippets. The "[chunk:<id>]" prefix is
// how generated cards attribute evidence back to a chunk.
func ChunkContext(chunks []models.ContextChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, fmt.Sprintf("[chunk:%s] %s", c.ChunkID, c.Text))
	}
	return out
}

func buildAnalyzePrompt(moduleTitle string) string {
	title := strings.TrimSpace(moduleTitle)
	if title == "" {
		title = "Untitled Module"
	}
	return analyzePromptTemplate + "\n\nModule: " + title
}

func buildCardsPrompt(moduleTitle string, objectives []string, targetCount int, difficulty string, bloomLevels []string) string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf(cardsPromptTemplate, targetCount))
	title := strings.TrimSpace(moduleTitle)
	if title == "" {
		title = "Untitled Module"
	}
	b.WriteString("\n\nModule: " + title)
	if len(objectives) > 0 {
		b.WriteString("\n\nTarget learning objectives:\n")
		for _, o := range objectives {
			b.WriteString("- " + o + "\n")
		}
	}
	if strings.TrimSpace(difficulty) != "" && difficulty != "mixed" {
		b.WriteString("\nPreferred difficulty: " + difficulty)
	}
	if len(bloomLevels) > 0 {
		b.WriteString("\nAllowed bloom levels: " + strings.Join(bloomLevels, ", "))
	}
	return b.String()
}

func buildVerifyPrompt(card models.Card) string {
	return fmt.Sprintf(verifyPromptTemplate, card.Question, card.Answer)
}
