package jobs

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/tallybook/tallybook/internal/jobs"
)

func TestBackupSnapshotRejectsBadPayload(t *testing.T) {
	job := NewBackupSnapshotJob(nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), t.TempDir())

	err := job.Handle(context.Background(), asynq.NewTask(TaskBackupSnapshot, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBackupSnapshotSurfacesExportFailure(t *testing.T) {
	job := NewBackupSnapshotJob(nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), t.TempDir())

	task, err := NewBackupSnapshotTask(BackupSnapshotPayload{Reason: "commit"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool not configured")
}
