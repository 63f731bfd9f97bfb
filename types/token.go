package types

import "time"

// RefreshToken is one issued refresh credential. A row exists per issuance
// and is deleted on use (rotation) or on any sign-out-everywhere cascade.
type RefreshToken struct {
	// ID is the unique identifier of the token row.
	ID string `json:"id" db:"id"`

	// Token is the opaque signed token string, unique.
	Token string `json:"token" db:"token"`

	// UserID is the owning user.
	UserID string `json:"userId" db:"user_id"`

	// ExpiresAt is the instant after which the token may no longer be used.
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`

	// CreatedAt is the issuance timestamp.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// User embeds the owning user when the row is fetched by token value.
	User *User `json:"user,omitempty" db:"-"`
}

// PasswordResetToken is a single-use, time-bounded reset credential.
// Single use is enforced by deleting the row on consumption.
type PasswordResetToken struct {
	ID        string    `json:"id" db:"id"`
	Token     string    `json:"token" db:"token"`
	UserID    string    `json:"userId" db:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
