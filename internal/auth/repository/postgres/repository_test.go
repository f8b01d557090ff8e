package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/securesteps/auth-service/internal/auth/domain"
	repo "github.com/securesteps/auth-service/internal/auth/repository/postgres"
	autherror "github.com/securesteps/auth-service/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "email", "username", "password_hash", "role", "is_email_verified", "is_phone_verified",
	"otp_retry_count", "otp_blocked_until", "followers_count", "following_count", "created_at", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *repo.PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, repo.NewPostgresRepository(mock, 5*time.Second)
}

func TestGetByIdentifier(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users WHERE lower\\(email\\) = lower\\(\\$1\\) OR lower\\(username\\) = lower\\(\\$1\\)").
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow("user-1", "alice@example.com", "alice", "hash", "agent", true, false, 0, nil, 3, 4, now, now))

		user, err := r.GetByIdentifier(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "user-1", user.ID)
		assert.Equal(t, domain.RoleAgent, user.Role)
		assert.True(t, user.IsEmailVerified)
		assert.Nil(t, user.OTPBlockedUntil)
		assert.Equal(t, 3, user.FollowersCount)
		assert.Equal(t, 4, user.FollowingCount)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		user, err := r.GetByIdentifier(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("alice").
			WillReturnError(fmt.Errorf("db error"))

		_, err := r.GetByIdentifier(ctx, "alice")
		assert.ErrorContains(t, err, "db error")
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_BlockedUser(t *testing.T) {
	mock, r := newMock(t)
	now := time.Now()
	blockedUntil := now.Add(15 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("user-1", "alice@example.com", "alice", "hash", "student", false, false, 0, &blockedUntil, 0, 0, now, now))

	user, err := r.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, user.OTPBlockedUntil)
	assert.True(t, user.OTPBlocked(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	user := &domain.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "hash",
		Role:         domain.RoleStudent,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WithArgs(user.ID, user.Email, user.Username, user.PasswordHash, "student", false, user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, r.Create(ctx, user))
	})

	t.Run("unique violation", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

		assert.ErrorIs(t, r.Create(ctx, user), autherror.ErrUserExists)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(fmt.Errorf("db error"))

		err := r.Create(ctx, user)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, autherror.ErrUserExists)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByEmailOrUsername(t *testing.T) {
	mock, r := newMock(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("alice@example.com", "alice").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := r.ExistsByEmailOrUsername(context.Background(), "alice@example.com", "alice")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePassword(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("user-1", "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, r.UpdatePassword(ctx, "user-1", "new-hash"))

	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("ghost", "new-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, r.UpdatePassword(ctx, "ghost", "new-hash"), autherror.ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementOTPRetry(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	blockUntil := time.Now().Add(15 * time.Minute)

	t.Run("below threshold", func(t *testing.T) {
		mock.ExpectQuery("UPDATE users SET(.+)otp_retry_count(.+)RETURNING otp_blocked_until").
			WithArgs("user-1", 3, blockUntil).
			WillReturnRows(pgxmock.NewRows([]string{"otp_blocked_until"}).AddRow(nil))

		blocked, err := r.IncrementOTPRetry(ctx, "user-1", 3, blockUntil)
		require.NoError(t, err)
		assert.Nil(t, blocked)
	})

	t.Run("threshold reached", func(t *testing.T) {
		mock.ExpectQuery("UPDATE users SET").
			WithArgs("user-1", 3, blockUntil).
			WillReturnRows(pgxmock.NewRows([]string{"otp_blocked_until"}).AddRow(&blockUntil))

		blocked, err := r.IncrementOTPRetry(ctx, "user-1", 3, blockUntil)
		require.NoError(t, err)
		require.NotNil(t, blocked)
		assert.True(t, blocked.Equal(blockUntil))
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectQuery("UPDATE users SET").
			WithArgs("ghost", 3, blockUntil).
			WillReturnError(pgx.ErrNoRows)

		_, err := r.IncrementOTPRetry(ctx, "ghost", 3, blockUntil)
		assert.ErrorIs(t, err, autherror.ErrUserNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestOTP(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	now := time.Now()
	columns := []string{"id", "user_id", "otp_code", "purpose", "type", "expires_at", "is_verified", "verified_at", "created_at"}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM otps WHERE user_id = \$1 AND purpose = \$2 ORDER BY created_at DESC LIMIT 1`).
			WithArgs("user-1", "password_reset").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("otp-1", "user-1", "123456", "password_reset", "email", now.Add(15*time.Minute), false, nil, now))

		otp, err := r.GetLatestOTP(ctx, "user-1", domain.PurposePasswordReset)
		require.NoError(t, err)
		require.NotNil(t, otp)
		assert.Equal(t, "123456", otp.Code)
		assert.Equal(t, domain.PurposePasswordReset, otp.Purpose)
		assert.Nil(t, otp.VerifiedAt)
	})

	t.Run("consumed newest is still returned", func(t *testing.T) {
		verifiedAt := now.Add(time.Minute)
		mock.ExpectQuery(`SELECT (.+) FROM otps WHERE user_id = \$1 AND purpose = \$2 ORDER BY`).
			WithArgs("user-1", "password_reset").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("otp-2", "user-1", "654321", "password_reset", "email", now.Add(15*time.Minute), true, &verifiedAt, now))

		otp, err := r.GetLatestOTP(ctx, "user-1", domain.PurposePasswordReset)
		require.NoError(t, err)
		require.NotNil(t, otp)
		assert.Equal(t, "otp-2", otp.ID)
		assert.True(t, otp.IsVerified)
	})

	t.Run("none", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM otps").
			WithArgs("user-1", "signup_verification").
			WillReturnError(pgx.ErrNoRows)

		otp, err := r.GetLatestOTP(ctx, "user-1", domain.PurposeSignupVerification)
		require.NoError(t, err)
		assert.Nil(t, otp)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOTPVerified(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	at := time.Now()

	mock.ExpectExec("UPDATE otps SET is_verified = TRUE(.+)AND is_verified = FALSE").
		WithArgs("otp-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := r.MarkOTPVerified(ctx, "otp-1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE otps SET is_verified = TRUE").
		WithArgs("otp-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = r.MarkOTPVerified(ctx, "otp-1", at)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteActiveSession(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	now := time.Now()
	columns := []string{"id", "user_id", "user_agent", "ip_address", "created_at", "expires_at"}

	t.Run("live session", func(t *testing.T) {
		mock.ExpectQuery("DELETE FROM sessions WHERE id = \\$1 AND expires_at > \\$2 RETURNING").
			WithArgs("sid-1", now).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("sid-1", "user-1", "ua", "10.0.0.1", now.Add(-time.Hour), now.Add(time.Hour)))

		s, err := r.DeleteActiveSession(ctx, "sid-1", now)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "user-1", s.UserID)
		assert.Equal(t, "ua", s.UserAgent)
	})

	t.Run("already gone", func(t *testing.T) {
		mock.ExpectQuery("DELETE FROM sessions").
			WithArgs("sid-1", now).
			WillReturnError(pgx.ErrNoRows)

		s, err := r.DeleteActiveSession(ctx, "sid-1", now)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessions(t *testing.T) {
	mock, r := newMock(t)
	ctx := context.Background()
	now := time.Now()

	session := &domain.Session{ID: "sid-1", UserID: "user-1", UserAgent: "ua", IPAddress: "10.0.0.1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(session.ID, session.UserID, session.UserAgent, session.IPAddress, session.CreatedAt, session.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.CreateSession(ctx, session))

	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE user_id = \\$1").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "user_agent", "ip_address", "created_at", "expires_at"}).
			AddRow("sid-2", "user-1", "ua2", "10.0.0.2", now, now.Add(time.Hour)).
			AddRow("sid-1", "user-1", "ua", "10.0.0.1", now, now.Add(time.Hour)))
	sessions, err := r.ListSessionsByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sid-2", sessions[0].ID)

	mock.ExpectExec("DELETE FROM sessions WHERE id = \\$1").
		WithArgs("sid-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	deleted, err := r.DeleteSession(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	mock.ExpectExec("DELETE FROM sessions WHERE user_id = \\$1").
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	n, err := r.DeleteSessionsByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		mock, r := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users SET is_email_verified = TRUE").
			WithArgs("user-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		err := r.WithTx(ctx, func(tx domain.UserRepository) error {
			return tx.MarkEmailVerified(ctx, "user-1")
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		mock, r := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE otps SET is_verified = TRUE").
			WithArgs("otp-1", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE users SET password_hash").
			WithArgs("user-1", "hash").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := r.WithTx(ctx, func(tx domain.UserRepository) error {
			if _, err := tx.MarkOTPVerified(ctx, "otp-1", time.Now()); err != nil {
				return err
			}
			return tx.UpdatePassword(ctx, "user-1", "hash")
		})
		assert.ErrorContains(t, err, "disk full")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested call reuses the transaction", func(t *testing.T) {
		mock, r := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM sessions WHERE user_id").
			WithArgs("user-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		err := r.WithTx(ctx, func(tx domain.UserRepository) error {
			return tx.WithTx(ctx, func(inner domain.UserRepository) error {
				_, err := inner.DeleteSessionsByUserID(ctx, "user-1")
				return err
			})
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		mock, r := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := r.WithTx(ctx, func(domain.UserRepository) error {
			t.Fatal("fn must not run")
			return nil
		})
		assert.ErrorContains(t, err, "begin transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
