package chat

import (
	"context"
	"log/slog"
)

// LogNotifier writes outbound messages to the log. Stand-in transport
// until the WhatsApp gateway credentials land.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, session Session, message string) {
	if n.Logger == nil {
		return
	}
	n.Logger.Info("chat notify",
		slog.Int64("session_id", session.ID),
		slog.String("channel", string(session.Channel)),
		slog.String("message", message),
	)
}
