package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// TTL is how long a code stays valid.
const TTL = 5 * time.Minute

// codeLength is the number of digits in a code.
const codeLength = 6

// Store persists codes with expiry. Take deletes the code so each one
// verifies at most once.
type Store interface {
	Put(ctx context.Context, key, code string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, error)
	Close() error
}

// Sender delivers the code to the contact. Fire-and-forget; the core
// does not wait on transport.
type Sender interface {
	Send(ctx context.Context, contact, code string)
}

// LogSender writes codes to the log. Stand-in transport until an SMS
// gateway is wired up.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, contact, code string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("otp send", slog.String("contact", contact), slog.String("code", code))
}

// Service issues and verifies one-time passwords. Expiry is enforced by
// the store's TTL, so the service itself carries no clock.
type Service struct {
	store  Store
	sender Sender
	logger *slog.Logger
}

// New builds the OTP service around an injected store.
func New(store Store, sender Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sender: sender, logger: logger}
}

// Init verifies the backing store is reachable.
func (s *Service) Init(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("otp store not configured")
	}
	return nil
}

// Shutdown releases the backing store.
func (s *Service) Shutdown() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Issue generates a fresh code for the contact and hands it to the
// sender. Re-issuing replaces any previous code.
func (s *Service) Issue(ctx context.Context, contact string) error {
	if contact == "" {
		return fmt.Errorf("%w: contact required", shared.ErrValidation)
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, contact, code, TTL); err != nil {
		return err
	}
	if s.sender != nil {
		s.sender.Send(ctx, contact, code)
	}
	s.logger.Debug("otp issued", slog.String("contact", contact))
	return nil
}

// Verify consumes the contact's code. A code verifies exactly once;
// wrong or expired codes fail with ErrPreconditionFailed. The compare is
// constant-time.
func (s *Service) Verify(ctx context.Context, contact, code string) error {
	if contact == "" || code == "" {
		return fmt.Errorf("%w: contact and code required", shared.ErrValidation)
	}
	stored, err := s.store.Take(ctx, contact)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: invalid code", shared.ErrPreconditionFailed)
		}
		return err
	}
	if len(stored) != len(code) || subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return fmt.Errorf("%w: invalid code", shared.ErrPreconditionFailed)
	}
	return nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
