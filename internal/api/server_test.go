package api

import (
	"testing"

	"cardflow/internal/config"
	"cardflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCfg() config.Config {
	return config.Config{DefaultCardCount: 20, MaxCardCount: 100}
}

func TestValidateGenerateRequestSingleModule(t *testing.T) {
	job, err := validateGenerateRequest(generateRequest{
		Mode:   "single_module",
		Target: models.JobTarget{ModuleID: "mod-1", CourseID: "bio-101"},
	}, testCfg())
	require.NoError(t, err)
	assert.Equal(t, models.ModeSingleModule, job.Mode)
	assert.Equal(t, models.JobQueued, job.Status)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, 20, job.Settings.CardCount, "defaulted from config")
}

func TestValidateGenerateRequestMissingModuleID(t *testing.T) {
	_, err := validateGenerateRequest(generateRequest{Mode: "single_module"}, testCfg())
	require.Error(t, err, "malformed target is rejected before anything is enqueued")
	assert.Contains(t, err.Error(), "module_id")
}

func TestValidateGenerateRequestMissingCourseID(t *testing.T) {
	_, err := validateGenerateRequest(generateRequest{Mode: "course"}, testCfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course_id")
}

func TestValidateGenerateRequestBadMode(t *testing.T) {
	_, err := validateGenerateRequest(generateRequest{Mode: "everything"}, testCfg())
	require.Error(t, err)
}

func TestValidateGenerateRequestCardCountBounds(t *testing.T) {
	_, err := validateGenerateRequest(generateRequest{
		Mode:     "all_courses",
		Settings: models.JobSettings{CardCount: 500},
	}, testCfg())
	require.Error(t, err)

	job, err := validateGenerateRequest(generateRequest{
		Mode:     "all_courses",
		Settings: models.JobSettings{CardCount: 50},
	}, testCfg())
	require.NoError(t, err)
	assert.Equal(t, 50, job.Settings.CardCount)
}

func TestValidateGenerateRequestBloomLevels(t *testing.T) {
	_, err := validateGenerateRequest(generateRequest{
		Mode:     "all_courses",
		Settings: models.JobSettings{BloomLevels: []string{"remember", "memorize"}},
	}, testCfg())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memorize")
}

func TestValidateGenerateRequestDifficulty(t *testing.T) {
	_, err := validateGenerateRequest(generateRequest{
		Mode:     "all_courses",
		Settings: models.JobSettings{Difficulty: "brutal"},
	}, testCfg())
	require.Error(t, err)
}
