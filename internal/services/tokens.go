package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/relaychat/backend/config"
)

const (
	defaultAccessExpiry  = 15 * time.Minute
	defaultRefreshExpiry = 7 * 24 * time.Hour
)

// Claims are the JWT claims carried by both access and refresh tokens.
// The user id travels in the registered "sub" claim.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is a matched access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer produces signed access/refresh token pairs and persists each
// refresh token in the record store.
type TokenIssuer struct {
	store RecordStore
	cfg   config.JWTConfig
	now   func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with the provided dependencies.
func NewTokenIssuer(store RecordStore, cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{store: store, cfg: cfg, now: time.Now}
}

// Issue signs an access/refresh pair bearing {sub, email, role} claims and
// persists the refresh token with its computed expiry. Multiple refresh
// tokens may be live per user (one per device).
func (i *TokenIssuer) Issue(ctx context.Context, userID, email, role string) (TokenPair, error) {
	now := i.now()

	accessToken, err := i.sign(userID, email, role, []byte(i.cfg.Secret),
		now, now.Add(parseExpiry(i.cfg.ExpiresIn, defaultAccessExpiry)))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshExpiresAt := now.Add(parseExpiry(i.cfg.RefreshExpiresIn, defaultRefreshExpiry))
	refreshToken, err := i.sign(userID, email, role, []byte(i.cfg.RefreshSecret), now, refreshExpiresAt)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if _, err := i.store.CreateRefreshToken(ctx, refreshToken, userID, refreshExpiresAt); err != nil {
		return TokenPair{}, storeError(err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// sign stamps each token with a unique jti. JWT timestamps only have
// second granularity, so without it two issuances in the same second
// would produce identical token strings and rotation could resurrect a
// consumed refresh token.
func (i *TokenIssuer) sign(userID, email, role string, secret []byte, now, expiresAt time.Time) (string, error) {
	claims := Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access token signature and expiry.
func (i *TokenIssuer) VerifyAccess(tokenString string) (*Claims, error) {
	return verify(tokenString, []byte(i.cfg.Secret))
}

// VerifyRefresh validates a refresh token against the refresh signing secret.
func (i *TokenIssuer) VerifyRefresh(tokenString string) (*Claims, error) {
	return verify(tokenString, []byte(i.cfg.RefreshSecret))
}

func verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// expiryPattern accepts duration expressions like "7d", "24h" or "60m".
var expiryPattern = regexp.MustCompile(`^(\d+)([dhm])$`)

// parseExpiry converts a duration expression to a time.Duration, falling
// back to the given default when the expression does not parse.
func parseExpiry(expr string, fallback time.Duration) time.Duration {
	match := expiryPattern.FindStringSubmatch(expr)
	if match == nil {
		return fallback
	}

	value, err := strconv.Atoi(match[1])
	if err != nil {
		return fallback
	}

	switch match[2] {
	case "d":
		return time.Duration(value) * 24 * time.Hour
	case "h":
		return time.Duration(value) * time.Hour
	default:
		return time.Duration(value) * time.Minute
	}
}
