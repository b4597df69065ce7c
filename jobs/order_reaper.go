package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tokoflow/tokoflow/internal/orders"
)

// OrderReaperJob expires pending orders that sat unallocated past their
// TTL. Each order is released individually so a bad row never blocks the
// rest of the batch.
type OrderReaperJob struct {
	Orders *orders.Service
	Logger *slog.Logger
}

// NewOrderReaperJob initialises the reaper handler.
func NewOrderReaperJob(ordersSvc *orders.Service, logger *slog.Logger) *OrderReaperJob {
	return &OrderReaperJob{Orders: ordersSvc, Logger: logger}
}

// Handle executes one reaper pass.
func (j *OrderReaperJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Orders == nil {
		return errors.New("order reaper: handler not configured")
	}
	var payload OrderReaperPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	expired, err := j.Orders.ExpireStale(ctx, payload.BatchSize)
	if err != nil {
		j.Logger.Error("order reaper failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("order reaper completed",
		slog.Int("expired", expired),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
