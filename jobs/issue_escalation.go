package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tokoflow/tokoflow/internal/orders"
)

// IssueEscalationJob surfaces order issues that blew past their SLA so
// operations can chase them.
type IssueEscalationJob struct {
	Orders *orders.Service
	Logger *slog.Logger
}

// NewIssueEscalationJob initialises the escalation handler.
func NewIssueEscalationJob(ordersSvc *orders.Service, logger *slog.Logger) *IssueEscalationJob {
	return &IssueEscalationJob{Orders: ordersSvc, Logger: logger}
}

// Handle logs every overdue open issue.
func (j *IssueEscalationJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Orders == nil {
		return errors.New("issue escalation: handler not configured")
	}
	issues, err := j.Orders.OverdueIssues(ctx)
	if err != nil {
		j.Logger.Error("issue escalation failed", slog.Any("error", err))
		return err
	}
	for _, issue := range issues {
		j.Logger.Warn("order issue past SLA",
			slog.Int64("issue_id", issue.ID),
			slog.Int64("order_id", issue.OrderID),
			slog.String("type", string(issue.Type)),
			slog.Time("opened_at", issue.CreatedAt),
		)
	}
	if len(issues) > 0 {
		j.Logger.Info("issue escalation completed", slog.Int("overdue", len(issues)))
	}
	return nil
}
