package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/securesteps/auth-service/internal/social"
)

// FollowRepository stores follow relations and the denormalised counters on
// users.
type FollowRepository struct {
	store
}

func NewFollowRepository(db DB, txTimeout time.Duration) *FollowRepository {
	return &FollowRepository{store: store{db: db, txTimeout: txTimeout}}
}

func (r *FollowRepository) WithTx(ctx context.Context, fn func(repo social.Repository) error) error {
	return r.inTx(ctx, func(tx store) error {
		return fn(&FollowRepository{store: tx})
	})
}

func (r *FollowRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(r.scope(ctx), `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func (r *FollowRepository) InsertFollow(ctx context.Context, followerID, followingID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(r.scope(ctx), `
		INSERT INTO follows (follower_id, following_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (follower_id, following_id) DO NOTHING`, followerID, followingID, at)
	if err != nil {
		return false, fmt.Errorf("failed to insert follow: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *FollowRepository) DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error) {
	tag, err := r.db.Exec(r.scope(ctx),
		`DELETE FROM follows WHERE follower_id = $1 AND following_id = $2`, followerID, followingID)
	if err != nil {
		return false, fmt.Errorf("failed to delete follow: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *FollowRepository) AdjustFollowCounts(ctx context.Context, followerID, followingID string, delta int) error {
	ctx = r.scope(ctx)
	if _, err := r.db.Exec(ctx,
		`UPDATE users SET following_count = GREATEST(following_count + $2, 0), updated_at = now() WHERE id = $1`,
		followerID, delta); err != nil {
		return fmt.Errorf("failed to update following count: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`UPDATE users SET followers_count = GREATEST(followers_count + $2, 0), updated_at = now() WHERE id = $1`,
		followingID, delta); err != nil {
		return fmt.Errorf("failed to update followers count: %w", err)
	}
	return nil
}

func (r *FollowRepository) ListFollowers(ctx context.Context, userID string, limit, offset int) ([]social.Connection, error) {
	return r.list(ctx, `
		SELECT u.id, u.username, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.following_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (r *FollowRepository) ListFollowing(ctx context.Context, userID string, limit, offset int) ([]social.Connection, error) {
	return r.list(ctx, `
		SELECT u.id, u.username, f.created_at
		FROM follows f
		JOIN users u ON u.id = f.following_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (r *FollowRepository) list(ctx context.Context, query, userID string, limit, offset int) ([]social.Connection, error) {
	rows, err := r.db.Query(r.scope(ctx), query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list follows: %w", err)
	}
	defer rows.Close()

	var conns []social.Connection
	for rows.Next() {
		var c social.Connection
		if err := rows.Scan(&c.UserID, &c.Username, &c.FollowedAt); err != nil {
			return nil, fmt.Errorf("failed to scan follow: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate follows: %w", err)
	}
	return conns, nil
}
