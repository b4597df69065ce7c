package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tokoflow/tokoflow/internal/chat"
)

// ChatSweepJob hands conversations back to the bot after the agent has
// been idle for the timeout.
type ChatSweepJob struct {
	Chat   *chat.Service
	Logger *slog.Logger
}

// NewChatSweepJob initialises the sweep handler.
func NewChatSweepJob(chatSvc *chat.Service, logger *slog.Logger) *ChatSweepJob {
	return &ChatSweepJob{Chat: chatSvc, Logger: logger}
}

// Handle executes one sweep.
func (j *ChatSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Chat == nil {
		return errors.New("chat sweep: handler not configured")
	}
	n, err := j.Chat.ReactivateIdleBots(ctx)
	if err != nil {
		j.Logger.Error("chat sweep failed", slog.Any("error", err))
		return err
	}
	if n > 0 {
		j.Logger.Info("chat sweep completed", slog.Int64("reactivated", n))
	}
	return nil
}
