package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/securesteps/auth-service/internal/auth/domain"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool used by the repositories. pgx.Tx and
// pgxmock satisfy it as well.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// store carries the connection and, inside a transaction, the context that
// bounds it.
type store struct {
	db        DB
	txTimeout time.Duration
	txCtx     context.Context
}

// scope returns the transaction context when one is open so that every
// statement of the transaction shares its deadline.
func (s store) scope(ctx context.Context) context.Context {
	if s.txCtx != nil {
		return s.txCtx
	}
	return ctx
}

func (s store) inTx(ctx context.Context, fn func(tx store) error) error {
	if s.txCtx != nil {
		return fn(s)
	}

	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(store{db: tx, txTimeout: s.txTimeout, txCtx: ctx}); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Printf("warn: rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type PostgresRepository struct {
	store
}

// NewPostgresRepository binds the credential store to db. Transactions opened
// through WithTx are cancelled after txTimeout; zero disables the limit.
func NewPostgresRepository(db DB, txTimeout time.Duration) *PostgresRepository {
	return &PostgresRepository{store: store{db: db, txTimeout: txTimeout}}
}

func (r *PostgresRepository) WithTx(ctx context.Context, fn func(repo domain.UserRepository) error) error {
	return r.inTx(ctx, func(tx store) error {
		return fn(&PostgresRepository{store: tx})
	})
}

const userColumns = `id, email, username, password_hash, role, is_email_verified, is_phone_verified,
	otp_retry_count, otp_blocked_until, followers_count, following_count, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &role,
		&user.IsEmailVerified, &user.IsPhoneVerified, &user.OTPRetryCount, &user.OTPBlockedUntil,
		&user.FollowersCount, &user.FollowingCount, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(r.scope(ctx), `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(r.scope(ctx), `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) LIMIT 1`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByIdentifier matches either the email or the username, ignoring case.
func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	row := r.db.QueryRow(r.scope(ctx), `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1) OR lower(username) = lower($1)
		LIMIT 1`, identifier)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by identifier: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(r.scope(ctx), `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE lower(email) = lower($1) OR lower(username) = lower($2)
		)`, email, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// Create inserts the user. A unique violation means someone else took the
// email or username first and is reported as ErrUserExists.
func (r *PostgresRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(r.scope(ctx), `
		INSERT INTO users (id, email, username, password_hash, role, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.Username, user.PasswordHash, string(user.Role),
		user.IsEmailVerified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return autherror.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.db.Exec(r.scope(ctx),
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherror.ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(r.scope(ctx),
		`UPDATE users SET is_email_verified = TRUE, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherror.ErrUserNotFound
	}
	return nil
}

// IncrementOTPRetry is a single statement so concurrent failures cannot lose
// an increment. The CASE arms read the pre-update counter.
func (r *PostgresRepository) IncrementOTPRetry(ctx context.Context, userID string, maxAttempts int, blockUntil time.Time) (*time.Time, error) {
	var blockedUntil *time.Time
	err := r.db.QueryRow(r.scope(ctx), `
		UPDATE users SET
			otp_retry_count   = CASE WHEN otp_retry_count + 1 >= $2 THEN 0 ELSE otp_retry_count + 1 END,
			otp_blocked_until = CASE WHEN otp_retry_count + 1 >= $2 THEN $3 ELSE otp_blocked_until END,
			updated_at        = now()
		WHERE id = $1
		RETURNING otp_blocked_until`, userID, maxAttempts, blockUntil).Scan(&blockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autherror.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to increment otp retry: %w", err)
	}
	return blockedUntil, nil
}

func (r *PostgresRepository) ResetOTPCounters(ctx context.Context, userID string) error {
	_, err := r.db.Exec(r.scope(ctx),
		`UPDATE users SET otp_retry_count = 0, otp_blocked_until = NULL, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to reset otp counters: %w", err)
	}
	return nil
}
