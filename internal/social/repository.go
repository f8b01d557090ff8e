package social

//go:generate mockgen -destination=../mocks/mock_follow_repository.go -package=mocks -mock_names=Repository=MockFollowRepository github.com/securesteps/auth-service/internal/social Repository

import (
	"context"
	"time"
)

// Connection is one side of a follow relation as shown in lists.
type Connection struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	FollowedAt time.Time `json:"followedAt"`
}

type Repository interface {
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	UserExists(ctx context.Context, userID string) (bool, error)
	// InsertFollow reports false when the relation already exists.
	InsertFollow(ctx context.Context, followerID, followingID string, at time.Time) (bool, error)
	// DeleteFollow reports false when there was no relation to remove.
	DeleteFollow(ctx context.Context, followerID, followingID string) (bool, error)
	// AdjustFollowCounts adds delta to the follower's following_count and the
	// target's followers_count. Counters never drop below zero.
	AdjustFollowCounts(ctx context.Context, followerID, followingID string, delta int) error

	ListFollowers(ctx context.Context, userID string, limit, offset int) ([]Connection, error)
	ListFollowing(ctx context.Context, userID string, limit, offset int) ([]Connection, error)
}
