package social_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	autherror "github.com/securesteps/auth-service/internal/errors"
	"github.com/securesteps/auth-service/internal/events"
	"github.com/securesteps/auth-service/internal/mocks"
	"github.com/securesteps/auth-service/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *mocks.MockFollowRepository
	publisher *mocks.MockEventPublisher
	svc       *social.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		repo:      mocks.NewMockFollowRepository(ctrl),
		publisher: mocks.NewMockEventPublisher(ctrl),
	}
	f.svc = social.NewService(f.repo, f.publisher)
	f.svc.SetClock(func() time.Time { return fixedNow })
	return f
}

// inTx runs the transaction body against the same mock; a body error is what
// WithTx returns, as with a rolled-back transaction.
func (f *fixture) inTx() {
	f.repo.EXPECT().WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(social.Repository) error) error {
			return fn(f.repo)
		})
}

func expectEvent(t *testing.T, typ events.Type, actor, subject string) func(context.Context, events.Event) error {
	return func(_ context.Context, e events.Event) error {
		assert.Equal(t, typ, e.Type)
		assert.Equal(t, actor, e.ActorID)
		assert.Equal(t, subject, e.SubjectID)
		return nil
	}
}

func TestService_Follow(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		gomock.InOrder(
			f.repo.EXPECT().UserExists(ctx, "bob").Return(true, nil),
			f.repo.EXPECT().InsertFollow(ctx, "alice", "bob", fixedNow).Return(true, nil),
			f.repo.EXPECT().AdjustFollowCounts(ctx, "alice", "bob", 1).Return(nil),
			f.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(expectEvent(t, events.TypeUserFollowed, "alice", "bob")),
		)

		require.NoError(t, f.svc.Follow(ctx, "alice", "bob"))
	})

	t.Run("self follow", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.Follow(ctx, "alice", "alice"), autherror.ErrSelfFollow)
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		f.repo.EXPECT().UserExists(ctx, "ghost").Return(false, nil)

		assert.ErrorIs(t, f.svc.Follow(ctx, "alice", "ghost"), autherror.ErrUserNotFound)
	})

	t.Run("already following leaves counters alone", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		f.repo.EXPECT().UserExists(ctx, "bob").Return(true, nil)
		f.repo.EXPECT().InsertFollow(ctx, "alice", "bob", fixedNow).Return(false, nil)

		assert.ErrorIs(t, f.svc.Follow(ctx, "alice", "bob"), autherror.ErrAlreadyFollowing)
	})

	t.Run("counter failure is not published", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		f.repo.EXPECT().UserExists(ctx, "bob").Return(true, nil)
		f.repo.EXPECT().InsertFollow(ctx, "alice", "bob", fixedNow).Return(true, nil)
		f.repo.EXPECT().AdjustFollowCounts(ctx, "alice", "bob", 1).Return(errors.New("deadlock detected"))

		err := f.svc.Follow(ctx, "alice", "bob")
		require.Error(t, err)
		assert.Equal(t, autherror.KindInternal, autherror.KindOf(err))
	})

	t.Run("publish failure still succeeds", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		f.repo.EXPECT().UserExists(ctx, "bob").Return(true, nil)
		f.repo.EXPECT().InsertFollow(ctx, "alice", "bob", fixedNow).Return(true, nil)
		f.repo.EXPECT().AdjustFollowCounts(ctx, "alice", "bob", 1).Return(nil)
		f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("redis unavailable"))

		assert.NoError(t, f.svc.Follow(ctx, "alice", "bob"))
	})
}

func TestService_Unfollow(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		gomock.InOrder(
			f.repo.EXPECT().DeleteFollow(ctx, "alice", "bob").Return(true, nil),
			f.repo.EXPECT().AdjustFollowCounts(ctx, "alice", "bob", -1).Return(nil),
			f.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(expectEvent(t, events.TypeUserUnfollowed, "alice", "bob")),
		)

		require.NoError(t, f.svc.Unfollow(ctx, "alice", "bob"))
	})

	t.Run("not following", func(t *testing.T) {
		f := newFixture(t)
		f.inTx()
		f.repo.EXPECT().DeleteFollow(ctx, "alice", "bob").Return(false, nil)

		assert.ErrorIs(t, f.svc.Unfollow(ctx, "alice", "bob"), autherror.ErrNotFollowing)
	})

	t.Run("self unfollow", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.Unfollow(ctx, "bob", "bob"), autherror.ErrSelfFollow)
	})
}

func TestService_Lists(t *testing.T) {
	ctx := context.Background()
	conns := []social.Connection{{UserID: "bob", Username: "bob", FollowedAt: fixedNow}}

	t.Run("followers with default page", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().UserExists(ctx, "alice").Return(true, nil)
		f.repo.EXPECT().ListFollowers(ctx, "alice", social.DefaultPageSize, 0).Return(conns, nil)

		got, err := f.svc.Followers(ctx, "alice", 0, -5)
		require.NoError(t, err)
		assert.Equal(t, conns, got)
	})

	t.Run("following caps the page size", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().UserExists(ctx, "alice").Return(true, nil)
		f.repo.EXPECT().ListFollowing(ctx, "alice", social.MaxPageSize, 40).Return(nil, nil)

		got, err := f.svc.Following(ctx, "alice", 1000, 40)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().UserExists(ctx, "ghost").Return(false, nil)

		_, err := f.svc.Followers(ctx, "ghost", 10, 0)
		assert.ErrorIs(t, err, autherror.ErrUserNotFound)
	})
}
