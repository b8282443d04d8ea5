package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cardflow/internal/models"
	"cardflow/internal/util"
)

// Store is the read-only view of the course/module catalog owned by the LMS
// CRUD layer. The pipeline never writes through it.
type Store interface {
	ListCourses(ctx context.Context) ([]string, error)
	ListModules(ctx context.Context, courseID string) ([]string, error)
	GetModule(ctx context.Context, courseID, moduleID string) (models.ModuleContent, error)
}

// ManifestStore serves module content from JSON manifests laid out as
// <root>/<course_id>/<module_id>/module.json, with source files beside the
// manifest.
type ManifestStore struct {
	root string
}

func NewManifestStore(root string) *ManifestStore {
	return &ManifestStore{root: root}
}

func (s *ManifestStore) ListCourses(ctx context.Context) ([]string, error) {
	_ = ctx
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read content root: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *ManifestStore) ListModules(ctx context.Context, courseID string) ([]string, error) {
	_ = ctx
	dir := util.SafeJoin(s.root, courseID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read course dir %s: %w", courseID, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), "module.json")); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *ManifestStore) GetModule(ctx context.Context, courseID, moduleID string) (models.ModuleContent, error) {
	_ = ctx
	dir := filepath.Join(util.SafeJoin(s.root, courseID), filepath.Base(moduleID))
	raw, err := os.ReadFile(filepath.Join(dir, "module.json"))
	if err != nil {
		return models.ModuleContent{}, fmt.Errorf("module %s/%s: %w", courseID, moduleID, util.ErrContentNotFound)
	}
	var content models.ModuleContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return models.ModuleContent{}, fmt.Errorf("decode module manifest %s/%s: %w", courseID, moduleID, err)
	}
	if content.ModuleID == "" {
		content.ModuleID = moduleID
	}
	if content.CourseID == "" {
		content.CourseID = courseID
	}
	if strings.TrimSpace(content.Title) == "" {
		content.Title = moduleID
	}
	if len(content.Sources) == 0 {
		return models.ModuleContent{}, fmt.Errorf("module %s/%s has no sources: %w", courseID, moduleID, util.ErrContentNotFound)
	}
	// Source file paths in manifests are relative to the module dir.
	for i := range content.Sources {
		f := content.Sources[i].File
		if f != "" && !filepath.IsAbs(f) {
			content.Sources[i].File = filepath.Join(dir, filepath.Base(f))
		}
	}
	return content, nil
}
