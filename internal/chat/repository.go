package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoflow/tokoflow/internal/shared"
)

// Repository encapsulates DB operations for chat sessions.
type Repository interface {
	Upsert(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id int64) (Session, error)
	GetByContact(ctx context.Context, channel Channel, contactKey string) (Session, error)
	SetAgent(ctx context.Context, id int64, agentID int64, at time.Time) error
	TouchAgent(ctx context.Context, id int64, at time.Time) error
	ClearAgent(ctx context.Context, id int64) error
	// ReactivateIdle hands idle agent sessions back to the bot and
	// returns how many flipped.
	ReactivateIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const sessionColumns = `id, customer_id, channel, contact_key, agent_active, agent_id, last_agent_at, created_at, updated_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CustomerID, &s.Channel, &s.ContactKey, &s.AgentActive, &s.AgentID, &s.LastAgentAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("%w: chat session", shared.ErrNotFound)
		}
		return Session{}, err
	}
	return s, nil
}

func (r *repository) Upsert(ctx context.Context, s Session) (Session, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO chat_sessions (customer_id, channel, contact_key, agent_active, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())
		ON CONFLICT (channel, contact_key)
		DO UPDATE SET customer_id = COALESCE(EXCLUDED.customer_id, chat_sessions.customer_id), updated_at = NOW()
		RETURNING `+sessionColumns, s.CustomerID, s.Channel, s.ContactKey)
	return scanSession(row)
}

func (r *repository) Get(ctx context.Context, id int64) (Session, error) {
	return scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id=$1`, id))
}

func (r *repository) GetByContact(ctx context.Context, channel Channel, contactKey string) (Session, error) {
	return scanSession(r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions WHERE channel=$1 AND contact_key=$2`, channel, contactKey))
}

func (r *repository) SetAgent(ctx context.Context, id int64, agentID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_sessions SET agent_active=TRUE, agent_id=$2, last_agent_at=$3, updated_at=NOW()
		WHERE id=$1`, id, agentID, at)
	return err
}

func (r *repository) TouchAgent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_sessions SET last_agent_at=$2, updated_at=NOW()
		WHERE id=$1 AND agent_active=TRUE`, id, at)
	return err
}

func (r *repository) ClearAgent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chat_sessions SET agent_active=FALSE, agent_id=NULL, updated_at=NOW()
		WHERE id=$1`, id)
	return err
}

func (r *repository) ReactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE chat_sessions SET agent_active=FALSE, agent_id=NULL, updated_at=NOW()
		WHERE agent_active=TRUE AND last_agent_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
