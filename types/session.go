package types

import "time"

// Session records login activity for a user. Sessions are deleted in bulk
// alongside refresh tokens whenever a user is signed out everywhere.
type Session struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"userId" db:"user_id"`
	IPAddress string     `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent string     `json:"userAgent,omitempty" db:"user_agent"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}
