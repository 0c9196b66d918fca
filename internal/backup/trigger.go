package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tallybook/tallybook/jobs"
)

const cooldownKey = "tallybook:backup:cooldown"

// Trigger schedules a backup snapshot after each committed voucher
// mutation, throttled by a shared cooldown. It runs entirely off the
// request path: enqueue happens in a goroutine and failures are logged,
// never surfaced to the caller.
type Trigger struct {
	logger   *slog.Logger
	redis    *redis.Client
	enqueue  func(ctx context.Context, payload jobs.BackupSnapshotPayload) error
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewTrigger builds a Trigger around an asynq client.
func NewTrigger(logger *slog.Logger, redisClient *redis.Client, client *jobs.Client, cooldown time.Duration) *Trigger {
	return &Trigger{
		logger: logger,
		redis:  redisClient,
		enqueue: func(ctx context.Context, payload jobs.BackupSnapshotPayload) error {
			_, err := client.EnqueueBackupSnapshot(ctx, payload)
			return err
		},
		cooldown: cooldown,
		timeout:  5 * time.Second,
		now:      time.Now,
	}
}

// TransactionCommitted requests a snapshot unless one was scheduled
// within the cooldown window.
func (t *Trigger) TransactionCommitted(_ context.Context, action string, voucherID int64) {
	if t == nil {
		return
	}
	go t.schedule(action, voucherID)
}

func (t *Trigger) schedule(action string, voucherID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	ok, err := t.redis.SetNX(ctx, cooldownKey, t.now().Format(time.RFC3339), t.cooldown).Result()
	if err != nil {
		t.logger.Warn("backup cooldown check failed", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}

	payload := jobs.BackupSnapshotPayload{
		Reason:      action,
		RequestedBy: "system",
		RequestedAt: t.now().UTC(),
	}
	if err := t.enqueue(ctx, payload); err != nil {
		t.logger.Warn("backup enqueue failed",
			slog.String("action", action),
			slog.Int64("voucher_id", voucherID),
			slog.Any("error", err),
		)
		return
	}
	t.logger.Info("backup snapshot scheduled",
		slog.String("action", action),
		slog.Int64("voucher_id", voucherID),
	)
}
