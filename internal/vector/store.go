package vector

import (
	"context"
	"fmt"
	"strings"

	"cardflow/internal/models"
	"cardflow/internal/providers"
	"cardflow/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of pgxpool.Pool the store needs. Kept narrow so tests can
// substitute a recorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is the chunk index adapter. Point identity is the chunk id, so
// repeated upserts of the same chunk converge instead of duplicating, and
// concurrent module runs never collide because chunk ids embed the module.
type Store struct {
	db        DB
	embedder  providers.EmbeddingProvider
	dim       int
	batchSize int
	ensured   bool
}

func NewStore(db DB, embedder providers.EmbeddingProvider, dim, batchSize int) *Store {
	if dim <= 0 {
		dim = 1536
	}
	if batchSize <= 0 || batchSize > 100 {
		batchSize = 100
	}
	return &Store{db: db, embedder: embedder, dim: dim, batchSize: batchSize}
}

// EnsureIndex lazily creates the chunk table with the deployment's vector
// dimensionality and a module_id index for delete/retrieval filters.
func (s *Store) EnsureIndex(ctx context.Context) error {
	if s.ensured {
		return nil
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS module_chunks (
  chunk_id      text PRIMARY KEY,
  module_id     text NOT NULL,
  source_file   text NOT NULL,
  provider      text NOT NULL DEFAULT '',
  heading       text NOT NULL DEFAULT '',
  slide_or_page int,
  start_sec     double precision,
  end_sec       double precision,
  text          text NOT NULL,
  tokens_est    int NOT NULL DEFAULT 0,
  embedding     vector(%d),
  updated_at    timestamptz NOT NULL DEFAULT now()
)`, s.dim),
		`CREATE INDEX IF NOT EXISTS module_chunks_module_id_idx ON module_chunks (module_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure chunk index: %w", err)
		}
	}
	s.ensured = true
	return nil
}

// UpsertChunks writes chunks in batches of at most batchSize points. Chunks
// that already carry an embedding are never re-sent to the embedding
// provider. Earlier batches stay committed when a later batch fails;
// re-running is safe because of chunk-id identity.
func (s *Store) UpsertChunks(ctx context.Context, chunks []models.ContextChunk, moduleID string) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.EnsureIndex(ctx); err != nil {
		return err
	}
	if err := s.embedMissing(ctx, chunks); err != nil {
		return err
	}
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.writeBatch(ctx, chunks[start:end]); err != nil {
			return fmt.Errorf("batch %d-%d for module %s: %w: %w", start, end, moduleID, util.ErrUpsertFailed, err)
		}
	}
	return nil
}

// embedMissing fills vectors for chunks that lack one, with a single provider
// call covering exactly those texts.
func (s *Store) embedMissing(ctx context.Context, chunks []models.ContextChunk) error {
	missing := make([]int, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, chunks[i].Text)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	vectors, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "chunk_embed",
		Inputs:    texts,
		Dimension: s.dim,
	})
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(missing), err)
	}
	if len(vectors) != len(missing) {
		return fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vectors), len(missing))
	}
	for n, idx := range missing {
		chunks[idx].Embedding = vectors[n]
	}
	return nil
}

func (s *Store) writeBatch(ctx context.Context, batch []models.ContextChunk) error {
	const cols = 11
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*cols)
	for i, c := range batch {
		base := i * cols
		ph := make([]string, 0, cols)
		for j := 1; j <= cols; j++ {
			if j == cols {
				ph = append(ph, fmt.Sprintf("$%d::vector", base+j))
			} else {
				ph = append(ph, fmt.Sprintf("$%d", base+j))
			}
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")

		var embedding *string
		if len(c.Embedding) > 0 {
			lit := ToLiteral(c.Embedding)
			embedding = &lit
		}
		args = append(args,
			c.ChunkID, c.ModuleID, c.SourceFile, c.Provider, c.Heading,
			c.SlideOrPage, c.StartSec, c.EndSec, util.SanitizeText(c.Text), c.TokensEst,
			embedding,
		)
	}
	sql := `
INSERT INTO module_chunks
  (chunk_id, module_id, source_file, provider, heading, slide_or_page, start_sec, end_sec, text, tokens_est, embedding)
VALUES ` + strings.Join(placeholders, ",\n  ") + `
ON CONFLICT (chunk_id)
DO UPDATE SET
  source_file = EXCLUDED.source_file,
  provider = EXCLUDED.provider,
  heading = EXCLUDED.heading,
  slide_or_page = EXCLUDED.slide_or_page,
  start_sec = EXCLUDED.start_sec,
  end_sec = EXCLUDED.end_sec,
  text = EXCLUDED.text,
  tokens_est = EXCLUDED.tokens_est,
  embedding = COALESCE(EXCLUDED.embedding, module_chunks.embedding),
  updated_at = now()`
	_, err := s.db.Exec(ctx, sql, args...)
	return err
}

// DeleteModuleChunks removes every point for a module. Run before a force_all
// regeneration so stale evidence does not outlive a content edit.
func (s *Store) DeleteModuleChunks(ctx context.Context, moduleID string) error {
	if err := s.EnsureIndex(ctx); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM module_chunks WHERE module_id = $1`, moduleID); err != nil {
		return fmt.Errorf("delete chunks for module %s: %w", moduleID, err)
	}
	return nil
}

type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	SourceFile string  `json:"source_file"`
	Provider   string  `json:"provider"`
	Heading    string  `json:"heading,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Search retrieves a module's closest chunks by cosine similarity. Payload
// columns carry everything retrieval needs, so there is no join back to a
// primary store.
func (s *Store) Search(ctx context.Context, moduleID string, queryVec []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 8
	}
	rows, err := s.db.Query(ctx, `
SELECT chunk_id, source_file, provider, heading, text,
       1 - (embedding <=> $2::vector) AS score
FROM module_chunks
WHERE module_id = $1
  AND embedding IS NOT NULL
ORDER BY embedding <=> $2::vector
LIMIT $3`, moduleID, ToLiteral(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("query chunk search: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, topK)
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ChunkID, &r.SourceFile, &r.Provider, &r.Heading, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// SearchText embeds the query with the store's provider and searches the
// module's chunks with it.
func (s *Store) SearchText(ctx context.Context, moduleID, query string, topK int) ([]SearchResult, error) {
	vecs, _, err := s.embedder.Embed(ctx, providers.EmbedRequest{
		Operation: "query_embed",
		Inputs:    []string{query},
		Dimension: s.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: provider returned no vector")
	}
	return s.Search(ctx, moduleID, vecs[0], topK)
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
