package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cardflow/internal/models"
	"cardflow/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID("mod-1", "notes.md", 0)
	b := ChunkID("mod-1", "notes.md", 0)
	assert.Equal(t, a, b, "same inputs always map to the same chunk id")
	assert.NotEqual(t, a, ChunkID("mod-1", "notes.md", 1))
	assert.NotEqual(t, a, ChunkID("mod-2", "notes.md", 0))
	assert.NotEqual(t, a, ChunkID("mod-1", "other.md", 0))
	assert.Len(t, a, 64)
}

func TestPrepareChunksDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("Mitochondria produce ATP through oxidative phosphorylation. ", 40)), 0o644))

	f := NewFetcher()
	chunks, err := f.PrepareChunks(context.Background(), models.ModuleContent{
		ModuleID: "mod-1",
		Sources:  []models.ContentSource{{Kind: models.SourceDocument, File: path}},
	}, ChunkOptions{ChunkSize: 500, ChunkOverlap: 100})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, ChunkID("mod-1", path, i), c.ChunkID)
		assert.Equal(t, "mod-1", c.ModuleID)
		assert.NotZero(t, c.TokensEst)
		assert.Nil(t, c.StartSec, "documents carry no time codes")
	}
}

func TestPrepareChunksTranscript(t *testing.T) {
	f := NewFetcher()
	chunks, err := f.PrepareChunks(context.Background(), models.ModuleContent{
		ModuleID: "mod-1",
		Sources: []models.ContentSource{{
			Kind: models.SourceTranscript,
			File: "lecture.vtt",
			Segments: []models.TranscriptSegment{
				{Text: "First segment.", StartSec: 0, EndSec: 30},
				{Text: "Second segment.", StartSec: 30, EndSec: 60},
			},
		}},
	}, ChunkOptions{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[1].StartSec)
	assert.Equal(t, 30.0, *chunks[1].StartSec)
	assert.Equal(t, 60.0, *chunks[1].EndSec)
	assert.Equal(t, "content-store", chunks[0].Provider)
}

func TestPrepareChunksUnresolvedMediaYieldsNothing(t *testing.T) {
	f := NewFetcher()
	chunks, err := f.PrepareChunks(context.Background(), models.ModuleContent{
		ModuleID: "mod-1",
		Sources:  []models.ContentSource{{Kind: models.SourceMedia, File: "lecture.mp4"}},
	}, ChunkOptions{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestManifestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	moduleDir := filepath.Join(root, "bio-101", "mod-1")
	require.NoError(t, util.EnsureDir(moduleDir))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "notes.txt"), []byte("Cells divide by mitosis."), 0o644))
	manifest := `{"title": "Cell Division", "sources": [{"kind": "document", "file": "notes.txt"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "module.json"), []byte(manifest), 0o644))

	store := NewManifestStore(root)

	courses, err := store.ListCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bio-101"}, courses)

	modules, err := store.ListModules(context.Background(), "bio-101")
	require.NoError(t, err)
	assert.Equal(t, []string{"mod-1"}, modules)

	mc, err := store.GetModule(context.Background(), "bio-101", "mod-1")
	require.NoError(t, err)
	assert.Equal(t, "mod-1", mc.ModuleID)
	assert.Equal(t, "Cell Division", mc.Title)
	require.Len(t, mc.Sources, 1)
	assert.Equal(t, filepath.Join(moduleDir, "notes.txt"), mc.Sources[0].File, "relative paths resolve against the module dir")
}

func TestManifestStoreMissingModule(t *testing.T) {
	store := NewManifestStore(t.TempDir())
	_, err := store.GetModule(context.Background(), "bio-101", "missing")
	require.ErrorIs(t, err, util.ErrContentNotFound)
}

func TestManifestStoreEmptySources(t *testing.T) {
	root := t.TempDir()
	moduleDir := filepath.Join(root, "bio-101", "mod-2")
	require.NoError(t, util.EnsureDir(moduleDir))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "module.json"), []byte(`{"title": "Empty"}`), 0o644))

	store := NewManifestStore(root)
	_, err := store.GetModule(context.Background(), "bio-101", "mod-2")
	require.ErrorIs(t, err, util.ErrContentNotFound)
}

func TestExtractDocumentTextPlain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Heading\n\nBody text.\x00"), 0o644))

	text, err := ExtractDocumentText(path)
	require.NoError(t, err)
	assert.NotContains(t, text, "\x00", "NUL bytes are stripped before anything downstream sees them")
	assert.Contains(t, text, "Body text.")
}

func TestExtractDocumentTextEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	_, err := ExtractDocumentText(path)
	require.ErrorIs(t, err, util.ErrContentNotFound)
}
