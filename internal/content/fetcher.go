package content

import (
	"context"
	"fmt"

	"cardflow/internal/models"
	"cardflow/internal/util"
)

type ChunkOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

// Fetcher normalizes heterogeneous module sources into a flat chunk list.
type Fetcher struct{}

func NewFetcher() *Fetcher {
	return &Fetcher{}
}

// ChunkID derives the stable identity of a chunk from module, source file and
// position. Re-ingesting unchanged content yields the same ids, which is what
// makes index upserts and re-runs idempotent.
func ChunkID(moduleID, sourceFile string, index int) string {
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%s:%d", moduleID, sourceFile, index)))
}

// PrepareChunks dispatches on each source's kind. Media sources must have been
// resolved to transcript segments beforehand (see the transcribe stage);
// unresolved media yields no chunks rather than an error.
func (f *Fetcher) PrepareChunks(ctx context.Context, content models.ModuleContent, opts ChunkOptions) ([]models.ContextChunk, error) {
	out := make([]models.ContextChunk, 0, 32)
	for _, src := range content.Sources {
		switch src.Kind {
		case models.SourceDocument:
			chunks, err := f.documentChunks(ctx, content.ModuleID, src, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, chunks...)
		case models.SourceTranscript, models.SourceMedia:
			out = append(out, segmentChunks(content.ModuleID, src)...)
		default:
			return nil, fmt.Errorf("unsupported source kind %q for %s", src.Kind, src.File)
		}
	}
	return out, nil
}

func (f *Fetcher) documentChunks(ctx context.Context, moduleID string, src models.ContentSource, opts ChunkOptions) ([]models.ContextChunk, error) {
	_ = ctx
	text, err := ExtractDocumentText(src.File)
	if err != nil {
		return nil, err
	}
	parts := util.ChunkText(text, opts.ChunkSize, opts.ChunkOverlap)
	chunks := make([]models.ContextChunk, 0, len(parts))
	for idx, part := range parts {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, models.ContextChunk{
			ChunkID:    ChunkID(moduleID, src.File, idx),
			ModuleID:   moduleID,
			SourceFile: src.File,
			Provider:   providerTag(src),
			Heading:    src.Heading,
			Text:       part,
			TokensEst:  util.EstimateTokens(part),
		})
	}
	return chunks, nil
}

func segmentChunks(moduleID string, src models.ContentSource) []models.ContextChunk {
	chunks := make([]models.ContextChunk, 0, len(src.Segments))
	for idx, seg := range src.Segments {
		text := util.SanitizeText(seg.Text)
		if text == "" {
			continue
		}
		start := seg.StartSec
		end := seg.EndSec
		chunks = append(chunks, models.ContextChunk{
			ChunkID:    ChunkID(moduleID, src.File, idx),
			ModuleID:   moduleID,
			SourceFile: src.File,
			Provider:   providerTag(src),
			Heading:    src.Heading,
			StartSec:   &start,
			EndSec:     &end,
			Text:       text,
			TokensEst:  util.EstimateTokens(text),
		})
	}
	return chunks
}

func providerTag(src models.ContentSource) string {
	if src.Provider != "" {
		return src.Provider
	}
	return "content-store"
}
