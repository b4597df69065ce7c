package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskOrderReaper expires pending orders past their TTL.
	TaskOrderReaper = "orders:reap_stale"
	// TaskChatReactivate hands idle chat sessions back to the bot.
	TaskChatReactivate = "chat:reactivate_idle"
	// TaskStockConsistency sweeps the mutation ledger against stock counters.
	TaskStockConsistency = "inventory:consistency_check"
	// TaskIssueEscalation reports order issues past their SLA.
	TaskIssueEscalation = "orders:issue_escalation"
	// TaskIdempotencyCleanup trims processed idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// OrderReaperPayload bounds how many stale orders one run releases.
type OrderReaperPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewOrderReaperTask constructs the nightly order reaper task.
func NewOrderReaperTask(batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(OrderReaperPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderReaper, data), nil
}

// NewChatReactivateTask constructs the idle-bot sweep task.
func NewChatReactivateTask() *asynq.Task {
	return asynq.NewTask(TaskChatReactivate, nil)
}

// NewStockConsistencyTask constructs the stock consistency sweep task.
func NewStockConsistencyTask() *asynq.Task {
	return asynq.NewTask(TaskStockConsistency, nil)
}

// NewIssueEscalationTask constructs the issue SLA sweep task.
func NewIssueEscalationTask() *asynq.Task {
	return asynq.NewTask(TaskIssueEscalation, nil)
}

// IdempotencyCleanupPayload sets the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the idempotency key cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
