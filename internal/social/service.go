package social

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/securesteps/auth-service/internal/auth/domain"
	autherror "github.com/securesteps/auth-service/internal/errors"
	"github.com/securesteps/auth-service/internal/events"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Service struct {
	repo      Repository
	publisher domain.EventPublisher
	now       func() time.Time
}

func NewService(repo Repository, publisher domain.EventPublisher) *Service {
	return &Service{repo: repo, publisher: publisher, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Follow records that followerID follows followingID. The relation row and
// both counters change together or not at all.
func (s *Service) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return autherror.ErrSelfFollow
	}

	err := s.repo.WithTx(ctx, func(repo Repository) error {
		exists, err := repo.UserExists(ctx, followingID)
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if !exists {
			return autherror.ErrUserNotFound
		}

		inserted, err := repo.InsertFollow(ctx, followerID, followingID, s.now())
		if err != nil {
			return fmt.Errorf("insert follow: %w", err)
		}
		if !inserted {
			return autherror.ErrAlreadyFollowing
		}
		return repo.AdjustFollowCounts(ctx, followerID, followingID, 1)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TypeUserFollowed, followerID, followingID))
	return nil
}

func (s *Service) Unfollow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return autherror.ErrSelfFollow
	}

	err := s.repo.WithTx(ctx, func(repo Repository) error {
		deleted, err := repo.DeleteFollow(ctx, followerID, followingID)
		if err != nil {
			return fmt.Errorf("delete follow: %w", err)
		}
		if !deleted {
			return autherror.ErrNotFollowing
		}
		return repo.AdjustFollowCounts(ctx, followerID, followingID, -1)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.New(events.TypeUserUnfollowed, followerID, followingID))
	return nil
}

// Followers lists who follows userID, newest first.
func (s *Service) Followers(ctx context.Context, userID string, limit, offset int) ([]Connection, error) {
	return s.list(ctx, userID, limit, offset, Repository.ListFollowers)
}

// Following lists whom userID follows, newest first.
func (s *Service) Following(ctx context.Context, userID string, limit, offset int) ([]Connection, error) {
	return s.list(ctx, userID, limit, offset, Repository.ListFollowing)
}

type lister func(repo Repository, ctx context.Context, userID string, limit, offset int) ([]Connection, error)

func (s *Service) list(ctx context.Context, userID string, limit, offset int, fetch lister) ([]Connection, error) {
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !exists {
		return nil, autherror.ErrUserNotFound
	}

	limit, offset = clampPage(limit, offset)
	conns, err := fetch(s.repo, ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	if conns == nil {
		conns = []Connection{}
	}
	return conns, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("warn: failed to publish %s for user %s: %v", event.Type, event.ActorID, err)
	}
}
