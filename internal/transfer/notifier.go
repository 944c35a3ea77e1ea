package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-wms/atlas-wms/jobs"
)

// EventEnqueuer hands a document event off to the delivery queue.
type EventEnqueuer interface {
	EnqueueDocumentEvent(ctx context.Context, payload jobs.DocumentEventPayload) (*asynq.TaskInfo, error)
}

// QueueNotifier forwards document events to the background delivery queue.
// Enqueue failures are logged and swallowed: notification is best-effort and
// must never fail the triggering mutation. A short-lived redis key keyed by
// document id and kind suppresses duplicate signals fired in quick
// succession; once it expires the same signal may legitimately re-fire.
type QueueNotifier struct {
	enqueuer EventEnqueuer
	redis    *redis.Client
	logger   *slog.Logger
	dedupTTL time.Duration
}

// NewQueueNotifier constructs a QueueNotifier. The redis client is optional;
// without it every event is enqueued.
func NewQueueNotifier(enqueuer EventEnqueuer, redisClient *redis.Client, logger *slog.Logger, dedupTTL time.Duration) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if dedupTTL <= 0 {
		dedupTTL = 2 * time.Minute
	}
	return &QueueNotifier{enqueuer: enqueuer, redis: redisClient, logger: logger, dedupTTL: dedupTTL}
}

// Notify implements Notifier.
func (n *QueueNotifier) Notify(ctx context.Context, evt DocumentEvent) {
	if n.redis != nil {
		key := fmt.Sprintf("notify:%d:%s", evt.DocumentID, evt.Kind)
		set, err := n.redis.SetNX(ctx, key, 1, n.dedupTTL).Result()
		if err != nil {
			// Dedupe is an optimization; deliver anyway.
			n.logger.Warn("notification dedupe check failed", slog.Any("error", err))
		} else if !set {
			n.logger.Debug("duplicate notification suppressed",
				slog.Int64("document_id", evt.DocumentID),
				slog.String("kind", evt.Kind))
			return
		}
	}

	payload := jobs.DocumentEventPayload{
		EventID:         uuid.NewString(),
		Kind:            evt.Kind,
		DocumentID:      evt.DocumentID,
		DocumentNumber:  evt.DocumentNumber,
		SourceWarehouse: evt.SourceWarehouse,
		TargetWarehouse: evt.TargetWarehouse,
		ActorID:         evt.ActorID,
	}
	if _, err := n.enqueuer.EnqueueDocumentEvent(ctx, payload); err != nil {
		n.logger.Error("enqueue notification failed",
			slog.Int64("document_id", evt.DocumentID),
			slog.String("kind", evt.Kind),
			slog.Any("error", err))
		return
	}
	n.logger.Info("notification enqueued",
		slog.Int64("document_id", evt.DocumentID),
		slog.String("kind", evt.Kind))
}
