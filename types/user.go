package types

import "time"

// Roles a user account can hold.
const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// Account statuses. Only ACTIVE users may authenticate.
const (
	StatusActive    = "ACTIVE"
	StatusInactive  = "INACTIVE"
	StatusSuspended = "SUSPENDED"
	StatusDeleted   = "DELETED"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// Username is an optional unique display handle.
	Username string `json:"username,omitempty" db:"username"`

	// FirstName and LastName are optional profile fields.
	FirstName string `json:"firstName,omitempty" db:"first_name"`
	LastName  string `json:"lastName,omitempty" db:"last_name"`

	// Avatar is a URL to the user's avatar image.
	Avatar string `json:"avatar,omitempty" db:"avatar"`

	// GithubID links the account to an external GitHub identity.
	GithubID string `json:"githubId,omitempty" db:"github_id"`

	// Role indicates the user's authorization level within the system.
	Role string `json:"role" db:"role"`

	// Status is the account lifecycle state.
	Status string `json:"status" db:"status"`

	// EmailVerified reports whether the email address has been verified.
	EmailVerified bool `json:"emailVerified" db:"email_verified"`

	// PasswordHash stores the hashed representation of the user's password.
	// Empty for OAuth-only accounts. Never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// LastLoginAt is the timestamp of the most recent login, if any.
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserUpdate carries a partial update for a user record. Nil fields are
// left untouched.
type UserUpdate struct {
	Username      *string    `json:"username,omitempty"`
	FirstName     *string    `json:"firstName,omitempty"`
	LastName      *string    `json:"lastName,omitempty"`
	Avatar        *string    `json:"avatar,omitempty"`
	GithubID      *string    `json:"githubId,omitempty"`
	Role          *string    `json:"role,omitempty"`
	Status        *string    `json:"status,omitempty"`
	EmailVerified *bool      `json:"emailVerified,omitempty"`
	PasswordHash  *string    `json:"password,omitempty"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// UserWithSecret is the wire form of a user that carries the password hash
// under the "password" key. Used only between the record store and the
// credential service; never exposed past that boundary.
type UserWithSecret struct {
	User
	Password string `json:"password,omitempty"`
}

// UserList is a paginated page of users.
type UserList struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
	Skip  int    `json:"skip"`
	Take  int    `json:"take"`
}
