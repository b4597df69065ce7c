package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// Notifier dispatches a message to the customer. Fire-and-forget after
// the state change commits; the core never waits on transport.
type Notifier interface {
	Notify(ctx context.Context, session Session, message string)
}

// Service manages chat sessions and the agent/bot hand-over.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Open returns the session for the contact, creating it when the first
// message arrives.
func (s *Service) Open(ctx context.Context, channel Channel, contactKey string, customerID *int64) (Session, error) {
	if contactKey == "" {
		return Session{}, fmt.Errorf("%w: contact key required", shared.ErrValidation)
	}
	if channel != ChannelWeb && channel != ChannelWhatsApp {
		return Session{}, fmt.Errorf("%w: unknown channel %s", shared.ErrValidation, channel)
	}
	return s.repo.Upsert(ctx, Session{Channel: channel, ContactKey: contactKey, CustomerID: customerID})
}

// Takeover silences the bot and puts the agent in front of the customer.
func (s *Service) Takeover(ctx context.Context, sessionID int64, actor shared.Actor) (Session, error) {
	if actor.Role == shared.RoleCustomer || actor.Role == shared.RoleDriver {
		return Session{}, fmt.Errorf("%w: role %s may not take over chats", shared.ErrForbidden, actor.Role)
	}
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := s.repo.SetAgent(ctx, sessionID, actor.ID, s.now()); err != nil {
		return Session{}, err
	}
	session, err = s.repo.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, session, "You are now chatting with our staff.")
	}
	return session, nil
}

// TouchAgent bumps the agent activity clock; called on every agent
// message so the sweep only reclaims genuinely idle sessions.
func (s *Service) TouchAgent(ctx context.Context, sessionID int64) error {
	return s.repo.TouchAgent(ctx, sessionID, s.now())
}

// HandBack returns the session to the bot immediately.
func (s *Service) HandBack(ctx context.Context, sessionID int64) error {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.AgentActive {
		return nil
	}
	return s.repo.ClearAgent(ctx, sessionID)
}

// ReactivateIdleBots flips sessions whose agent has been silent past the
// idle timeout back to the bot. Run periodically.
func (s *Service) ReactivateIdleBots(ctx context.Context) (int64, error) {
	n, err := s.repo.ReactivateIdle(ctx, s.now().Add(-BotIdleTimeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("reactivated idle chat bots", slog.Int64("count", n))
	}
	return n, nil
}
