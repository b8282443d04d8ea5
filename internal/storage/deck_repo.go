package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cardflow/internal/models"
)

type DeckRepo struct {
	db *DB
}

func NewDeckRepo(db *DB) *DeckRepo {
	return &DeckRepo{db: db}
}

// InsertDeck persists a finished deck. Decks are immutable, so this is a plain
// insert; a duplicate deck id means the caller reused an id and is an error.
func (r *DeckRepo) InsertDeck(ctx context.Context, deck models.Deck, deckPath string) error {
	cardsJSON, err := json.Marshal(deck.Cards)
	if err != nil {
		return fmt.Errorf("encode deck %s cards: %w", deck.DeckID, err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO decks (deck_id, module_id, course_id, module_title, cards, card_count, verification_rate, deck_path, generated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`,
		deck.DeckID, deck.ModuleID, deck.CourseID, deck.ModuleTitle,
		string(cardsJSON), len(deck.Cards), deck.VerificationRate, deckPath, deck.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert deck %s: %w", deck.DeckID, err)
	}
	return nil
}

func (r *DeckRepo) GetDeck(ctx context.Context, deckID string) (models.Deck, string, error) {
	var deck models.Deck
	var cardsJSON []byte
	var deckPath string
	err := r.db.Pool.QueryRow(ctx, `
SELECT deck_id, module_id, course_id, module_title, cards, verification_rate, deck_path, generated_at
FROM decks WHERE deck_id=$1`, deckID).Scan(
		&deck.DeckID, &deck.ModuleID, &deck.CourseID, &deck.ModuleTitle,
		&cardsJSON, &deck.VerificationRate, &deckPath, &deck.GeneratedAt)
	if err != nil {
		return models.Deck{}, "", fmt.Errorf("get deck %s: %w", deckID, err)
	}
	if err := json.Unmarshal(cardsJSON, &deck.Cards); err != nil {
		return models.Deck{}, "", fmt.Errorf("decode deck %s cards: %w", deckID, err)
	}
	return deck, deckPath, nil
}

// DeckSummary is the listing row: everything but the card payload.
type DeckSummary struct {
	DeckID           string    `json:"deck_id"`
	ModuleID         string    `json:"module_id"`
	CourseID         string    `json:"course_id,omitempty"`
	ModuleTitle      string    `json:"module_title"`
	CardCount        int       `json:"card_count"`
	VerificationRate float64   `json:"verification_rate"`
	GeneratedAt      time.Time `json:"generated_at"`
}

func (r *DeckRepo) ListDecksForModule(ctx context.Context, moduleID string) ([]DeckSummary, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT deck_id, module_id, course_id, module_title, card_count, verification_rate, generated_at
FROM decks WHERE module_id=$1 ORDER BY generated_at DESC`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list decks for module %s: %w", moduleID, err)
	}
	defer rows.Close()

	var out []DeckSummary
	for rows.Next() {
		var d DeckSummary
		if err := rows.Scan(&d.DeckID, &d.ModuleID, &d.CourseID, &d.ModuleTitle,
			&d.CardCount, &d.VerificationRate, &d.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan deck row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
