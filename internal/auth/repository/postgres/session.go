package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/securesteps/auth-service/internal/auth/domain"
)

func (r *PostgresRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := r.db.Exec(r.scope(ctx), `
		INSERT INTO sessions (id, user_id, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, session.UserAgent, session.IPAddress, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// DeleteActiveSession removes and returns the session if it is still live.
// Of two concurrent callers only one gets the row back.
func (r *PostgresRepository) DeleteActiveSession(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRow(r.scope(ctx), `
		DELETE FROM sessions
		WHERE id = $1 AND expires_at > $2
		RETURNING id, user_id, user_agent, ip_address, created_at, expires_at`, sessionID, now).Scan(
		&s.ID, &s.UserID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.db.Exec(r.scope(ctx), `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) ListSessionsByUserID(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := r.db.Query(r.scope(ctx), `
		SELECT id, user_id, user_agent, ip_address, created_at, expires_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *PostgresRepository) DeleteSessionsByUserID(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(r.scope(ctx), `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
