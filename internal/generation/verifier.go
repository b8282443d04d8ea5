package generation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"cardflow/internal/models"
	"cardflow/internal/providers"

	"golang.org/x/sync/errgroup"
)

type VerifyResult struct {
	Verified   bool
	Confidence float64
	Note       string
}

// Verifier decides whether one card's answer is supported by its cited
// evidence. Verification only annotates cards; it never drops them.
type Verifier interface {
	Verify(ctx context.Context, card models.Card) (VerifyResult, error)
}

// OverlapVerifier scores lexical overlap between the answer and the evidence
// text. It is the deterministic fallback used when no verification LLM is
// configured, and the yardstick the LLM verifier is tested against.
type OverlapVerifier struct {
	Threshold float64
}

func NewOverlapVerifier(threshold float64) *OverlapVerifier {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.30
	}
	return &OverlapVerifier{Threshold: threshold}
}

func (v *OverlapVerifier) Verify(ctx context.Context, card models.Card) (VerifyResult, error) {
	_ = ctx
	if len(card.Evidence) == 0 {
		return VerifyResult{Note: "no evidence cited"}, nil
	}
	answerTokens := contentTokens(card.Answer)
	if len(answerTokens) == 0 {
		return VerifyResult{Note: "answer has no content tokens"}, nil
	}
	evidenceSet := make(map[string]bool, 64)
	for _, ev := range card.Evidence {
		for _, tok := range contentTokens(ev.Text) {
			evidenceSet[tok] = true
		}
	}
	hits := 0
	for _, tok := range answerTokens {
		if evidenceSet[tok] {
			hits++
		}
	}
	score := float64(hits) / float64(len(answerTokens))
	return VerifyResult{
		Verified:   score >= v.Threshold,
		Confidence: score,
		Note:       fmt.Sprintf("evidence overlap %.2f", score),
	}, nil
}

// contentTokens lowercases and keeps word tokens of 3+ runes. Short function
// words carry no evidential weight and only inflate scores.
func contentTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// LLMVerifier asks a model whether the evidence supports the answer.
type LLMVerifier struct {
	llm       providers.LLMProvider
	threshold float64
}

func NewLLMVerifier(llm providers.LLMProvider, threshold float64) *LLMVerifier {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.30
	}
	return &LLMVerifier{llm: llm, threshold: threshold}
}

func (v *LLMVerifier) Verify(ctx context.Context, card models.Card) (VerifyResult, error) {
	if len(card.Evidence) == 0 {
		return VerifyResult{Note: "no evidence cited"}, nil
	}
	evidence := make([]string, 0, len(card.Evidence))
	for _, ev := range card.Evidence {
		evidence = append(evidence, fmt.Sprintf("[chunk:%s] %s", ev.ChunkID, ev.Text))
	}
	resp, _, err := v.llm.Generate(ctx, providers.GenerateRequest{
		Operation: "verify_card",
		Prompt:    buildVerifyPrompt(card),
		Context:   evidence,
	})
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify card %s: %w", card.CardID, err)
	}
	parsed, err := parseVerify(resp.Text)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify card %s: %w", card.CardID, err)
	}
	return VerifyResult{
		Verified:   parsed.Supported && parsed.Confidence >= v.threshold,
		Confidence: parsed.Confidence,
		Note:       parsed.Note,
	}, nil
}

// VerifyAll runs the verifier over every card with bounded concurrency and
// annotates each card in place by index, so output order matches input order.
// It returns the verification rate over the batch.
func VerifyAll(ctx context.Context, verifier Verifier, cards []models.Card, concurrency int) (float64, error) {
	if len(cards) == 0 {
		return 0, nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range cards {
		i := i
		g.Go(func() error {
			res, err := verifier.Verify(gctx, cards[i])
			if err != nil {
				return err
			}
			cards[i].Verified = res.Verified
			cards[i].ReviewRequired = !res.Verified
			cards[i].Confidence = res.Confidence
			cards[i].VerifyNote = res.Note
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	verified := 0
	for i := range cards {
		if cards[i].Verified {
			verified++
		}
	}
	return float64(verified) / float64(len(cards)), nil
}
