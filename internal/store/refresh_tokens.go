package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaychat/backend/types"
)

// RefreshTokenRepository handles persistence for refresh tokens.
type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token types.RefreshToken) (types.RefreshToken, error) {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	const query = `
		INSERT INTO refresh_tokens (id, token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, token.ID, token.Token, token.UserID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.RefreshToken{}, ErrConflict
		}
		return types.RefreshToken{}, err
	}
	return token, nil
}

// GetByToken fetches a refresh token by its token value with the owning
// user embedded.
func (r *RefreshTokenRepository) GetByToken(ctx context.Context, tokenValue string) (types.RefreshToken, error) {
	const query = `
		SELECT t.id, t.token, t.user_id, t.expires_at, t.created_at,
			u.id, u.email, COALESCE(u.username, ''), COALESCE(u.first_name, ''),
			COALESCE(u.last_name, ''), COALESCE(u.avatar, ''), COALESCE(u.github_id, ''),
			u.role, u.status, u.email_verified, COALESCE(u.password_hash, ''),
			u.last_login_at, u.created_at, u.updated_at
		FROM refresh_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1`
	var token types.RefreshToken
	var user types.User
	err := r.db.QueryRowContext(ctx, query, tokenValue).Scan(
		&token.ID,
		&token.Token,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Avatar,
		&user.GithubID,
		&user.Role,
		&user.Status,
		&user.EmailVerified,
		&user.PasswordHash,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RefreshToken{}, ErrNotFound
		}
		return types.RefreshToken{}, err
	}
	token.User = &user
	return token, nil
}

// DeleteByToken removes a refresh token by value. Deleting an absent token
// is not an error.
func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, tokenValue string) error {
	const query = `DELETE FROM refresh_tokens WHERE token = $1`
	_, err := r.db.ExecContext(ctx, query, tokenValue)
	return err
}

// DeleteByUser removes all refresh tokens owned by a user.
func (r *RefreshTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeleteExpired removes tokens whose expiry has passed and reports how many
// were deleted.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < NOW()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
