package workflows

import (
	"context"
	"sync"
	"testing"

	"cardflow/internal/activities"
	"cardflow/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func TestGenerateJobWorkflowFansOutPerModule(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GenerateJobWorkflow)
	env.RegisterWorkflow(DeckBuildWorkflow)

	var mu sync.Mutex
	statuses := []string{}
	registerActivityName(env, "UpdateJobStatusActivity", func(_ context.Context, in activities.UpdateJobStatusInput) error {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, in.Status)
		return nil
	})
	registerActivityName(env, "ResolveTargetsActivity", func(context.Context, activities.ResolveTargetsInput) (activities.ResolveTargetsOutput, error) {
		return activities.ResolveTargetsOutput{Targets: []activities.ModuleTarget{
			{ModuleID: "mod-1", CourseID: "bio-101"},
			{ModuleID: "mod-2", CourseID: "bio-101"},
			{ModuleID: "mod-3", CourseID: "bio-101"},
		}}, nil
	})
	env.OnWorkflow(DeckBuildWorkflow, mock.Anything, mock.Anything).Return(string(models.RunSuccess), nil)

	env.ExecuteWorkflow(GenerateJobWorkflow, GenerateJobInput{
		JobID:             "job-1",
		Mode:              models.ModeCourse,
		Target:            models.JobTarget{CourseID: "bio-101"},
		MaxConcurrentRuns: 2,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.JobCompleted), out)
	require.Equal(t, []string{string(models.JobRunning), string(models.JobCompleted)}, statuses)
}

func TestGenerateJobWorkflowAllRunsFailedFailsJob(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GenerateJobWorkflow)
	env.RegisterWorkflow(DeckBuildWorkflow)

	registerActivityName(env, "UpdateJobStatusActivity", func(context.Context, activities.UpdateJobStatusInput) error { return nil })
	registerActivityName(env, "ResolveTargetsActivity", func(context.Context, activities.ResolveTargetsInput) (activities.ResolveTargetsOutput, error) {
		return activities.ResolveTargetsOutput{Targets: []activities.ModuleTarget{
			{ModuleID: "mod-1", CourseID: "bio-101"},
		}}, nil
	})
	env.OnWorkflow(DeckBuildWorkflow, mock.Anything, mock.Anything).Return(string(models.RunFailed), nil)

	env.ExecuteWorkflow(GenerateJobWorkflow, GenerateJobInput{
		JobID:  "job-2",
		Mode:   models.ModeSingleModule,
		Target: models.JobTarget{ModuleID: "mod-1", CourseID: "bio-101"},
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.JobFailed), out)
}

func TestGenerateJobWorkflowPartialRunCompletesJob(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GenerateJobWorkflow)
	env.RegisterWorkflow(DeckBuildWorkflow)

	registerActivityName(env, "UpdateJobStatusActivity", func(context.Context, activities.UpdateJobStatusInput) error { return nil })
	registerActivityName(env, "ResolveTargetsActivity", func(context.Context, activities.ResolveTargetsInput) (activities.ResolveTargetsOutput, error) {
		return activities.ResolveTargetsOutput{Targets: []activities.ModuleTarget{
			{ModuleID: "mod-1", CourseID: "bio-101"},
		}}, nil
	})
	env.OnWorkflow(DeckBuildWorkflow, mock.Anything, mock.Anything).Return(string(models.RunPartial), nil)

	env.ExecuteWorkflow(GenerateJobWorkflow, GenerateJobInput{
		JobID:  "job-3",
		Mode:   models.ModeSingleModule,
		Target: models.JobTarget{ModuleID: "mod-1", CourseID: "bio-101"},
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.JobCompleted), out, "a partial deck still counts as job output")
}

func TestGenerateJobWorkflowNoTargetsFails(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(GenerateJobWorkflow)

	registerActivityName(env, "UpdateJobStatusActivity", func(context.Context, activities.UpdateJobStatusInput) error { return nil })
	registerActivityName(env, "ResolveTargetsActivity", func(context.Context, activities.ResolveTargetsInput) (activities.ResolveTargetsOutput, error) {
		return activities.ResolveTargetsOutput{}, nil
	})

	env.ExecuteWorkflow(GenerateJobWorkflow, GenerateJobInput{
		JobID: "job-4",
		Mode:  models.ModeCourse,
		Target: models.JobTarget{
			CourseID: "empty-course",
		},
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.JobFailed), out)
}
