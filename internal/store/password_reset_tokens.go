package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaychat/backend/types"
)

// PasswordResetTokenRepository handles persistence for password reset tokens.
type PasswordResetTokenRepository struct {
	db *sql.DB
}

func NewPasswordResetTokenRepository(db *sql.DB) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{db: db}
}

func (r *PasswordResetTokenRepository) Create(ctx context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error) {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	const query = `
		INSERT INTO password_reset_tokens (id, token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, token.ID, token.Token, token.UserID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.PasswordResetToken{}, ErrConflict
		}
		return types.PasswordResetToken{}, err
	}
	return token, nil
}

func (r *PasswordResetTokenRepository) GetByToken(ctx context.Context, tokenValue string) (types.PasswordResetToken, error) {
	const query = `
		SELECT id, token, user_id, expires_at, created_at
		FROM password_reset_tokens
		WHERE token = $1`
	var token types.PasswordResetToken
	err := r.db.QueryRowContext(ctx, query, tokenValue).Scan(
		&token.ID,
		&token.Token,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PasswordResetToken{}, ErrNotFound
		}
		return types.PasswordResetToken{}, err
	}
	return token, nil
}

// DeleteByToken removes a reset token by value. Deleting an absent token is
// not an error.
func (r *PasswordResetTokenRepository) DeleteByToken(ctx context.Context, tokenValue string) error {
	const query = `DELETE FROM password_reset_tokens WHERE token = $1`
	_, err := r.db.ExecContext(ctx, query, tokenValue)
	return err
}

// DeleteExpired removes tokens whose expiry has passed and reports how many
// were deleted.
func (r *PasswordResetTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM password_reset_tokens WHERE expires_at < NOW()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
