package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackupSnapshot is the task type for exporting a data snapshot.
	TaskBackupSnapshot = "backup:snapshot"
)

// BackupSnapshotPayload describes a snapshot request.
type BackupSnapshotPayload struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewBackupSnapshotTask constructs an Asynq task.
func NewBackupSnapshotTask(payload BackupSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackupSnapshot, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueBackupSnapshot enqueues a snapshot task.
func (c *Client) EnqueueBackupSnapshot(ctx context.Context, payload BackupSnapshotPayload) (*asynq.TaskInfo, error) {
	task, err := NewBackupSnapshotTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
