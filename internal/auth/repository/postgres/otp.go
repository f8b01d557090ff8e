package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/securesteps/auth-service/internal/auth/domain"
)

func (r *PostgresRepository) CreateOTP(ctx context.Context, otp *domain.OTP) error {
	_, err := r.db.Exec(r.scope(ctx), `
		INSERT INTO otps (id, user_id, otp_code, purpose, type, expires_at, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		otp.ID, otp.UserID, otp.Code, string(otp.Purpose), otp.Type, otp.ExpiresAt, otp.IsVerified, otp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create otp: %w", err)
	}
	return nil
}

// GetLatestOTP returns the newest code for the user and purpose, consumed or
// not. Older codes are never returned once a newer one exists.
func (r *PostgresRepository) GetLatestOTP(ctx context.Context, userID string, purpose domain.OTPPurpose) (*domain.OTP, error) {
	var (
		otp        domain.OTP
		otpPurpose string
	)
	err := r.db.QueryRow(r.scope(ctx), `
		SELECT id, user_id, otp_code, purpose, type, expires_at, is_verified, verified_at, created_at
		FROM otps
		WHERE user_id = $1 AND purpose = $2
		ORDER BY created_at DESC
		LIMIT 1`, userID, string(purpose)).Scan(
		&otp.ID, &otp.UserID, &otp.Code, &otpPurpose, &otp.Type,
		&otp.ExpiresAt, &otp.IsVerified, &otp.VerifiedAt, &otp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest otp: %w", err)
	}
	otp.Purpose = domain.OTPPurpose(otpPurpose)
	return &otp, nil
}

// MarkOTPVerified consumes the code. It reports false when another request
// consumed it first.
func (r *PostgresRepository) MarkOTPVerified(ctx context.Context, otpID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(r.scope(ctx),
		`UPDATE otps SET is_verified = TRUE, verified_at = $2 WHERE id = $1 AND is_verified = FALSE`, otpID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark otp verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
