package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/relaychat/backend/types"
)

const userColumns = `id, email, COALESCE(username, ''), COALESCE(first_name, ''),
		COALESCE(last_name, ''), COALESCE(avatar, ''), COALESCE(github_id, ''),
		role, status, email_verified, COALESCE(password_hash, ''), last_login_at,
		created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) GetByGithubID(ctx context.Context, githubID string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE github_id = $1`
	return r.getOne(ctx, query, githubID)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := scanUser(r.db.QueryRowContext(ctx, query, arg), &user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if user.Status == "" {
		user.Status = types.StatusActive
	}

	const query = `
		INSERT INTO users (id, email, username, first_name, last_name, avatar,
			github_id, role, status, email_verified, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		nullable(user.Username),
		nullable(user.FirstName),
		nullable(user.LastName),
		nullable(user.Avatar),
		nullable(user.GithubID),
		user.Role,
		user.Status,
		user.EmailVerified,
		nullable(user.PasswordHash),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// Update applies the non-nil fields of the partial update and returns the
// updated row.
func (r *UserRepository) Update(ctx context.Context, id string, update types.UserUpdate) (types.User, error) {
	assignments := []string{}
	args := []any{}
	idx := 1

	appendSet := func(column string, value any) {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if update.Username != nil {
		appendSet("username", nullable(*update.Username))
	}
	if update.FirstName != nil {
		appendSet("first_name", nullable(*update.FirstName))
	}
	if update.LastName != nil {
		appendSet("last_name", nullable(*update.LastName))
	}
	if update.Avatar != nil {
		appendSet("avatar", nullable(*update.Avatar))
	}
	if update.GithubID != nil {
		appendSet("github_id", nullable(*update.GithubID))
	}
	if update.Role != nil {
		appendSet("role", *update.Role)
	}
	if update.Status != nil {
		appendSet("status", *update.Status)
	}
	if update.EmailVerified != nil {
		appendSet("email_verified", *update.EmailVerified)
	}
	if update.PasswordHash != nil {
		appendSet("password_hash", nullable(*update.PasswordHash))
	}
	if update.LastLoginAt != nil {
		appendSet("last_login_at", *update.LastLoginAt)
	}
	appendSet("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(assignments, ", "), idx,
	)

	var user types.User
	err := scanUser(r.db.QueryRowContext(ctx, query, args...), &user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of non-deleted users ordered by creation time.
func (r *UserRepository) List(ctx context.Context, skip, take int) (types.UserList, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE status <> 'DELETED'
		ORDER BY created_at
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, skip, take)
	if err != nil {
		return types.UserList{}, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		var user types.User
		if err := scanUser(rows, &user); err != nil {
			return types.UserList{}, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return types.UserList{}, err
	}

	var total int
	const countQuery = `SELECT COUNT(*) FROM users WHERE status <> 'DELETED'`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return types.UserList{}, err
	}

	return types.UserList{Users: users, Total: total, Skip: skip, Take: take}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, user *types.User) error {
	return row.Scan(
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
}

// nullable maps empty strings to SQL NULL so unique indexes on optional
// columns (username, github_id) ignore absent values.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
