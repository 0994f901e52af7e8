// Package auth issues and validates the JWT access/refresh token pair and
// verifies passwords, grounded on the teacher's AuthHandler (same
// golang-jwt/jwt/v5 + bcrypt pairing), extended with a Session-tracked
// refresh token and the tokens_valid_from logout-all cutoff (spec.md §4.9,
// §8 logout-all invariant).
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nvrd/internal/apperr"
	"nvrd/internal/config"
)

// Claims is the JWT payload shape for both access and refresh tokens,
// distinguished by Type.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"type"` // "access" or "refresh"
	jwt.RegisteredClaims
}

// Issuer mints and validates token pairs for cfg's secret/expiry settings.
type Issuer struct {
	cfg config.JWTConfig
}

// NewIssuer builds an Issuer.
func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{cfg: cfg}
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks password against a stored bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueAccessToken mints a short-lived (~15min) access token.
func (i *Issuer) IssueAccessToken(userID uint, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.AccessExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.Secret))
}

// RefreshToken pairs a signed JWT with the JTI/expiry a Session row tracks.
type RefreshToken struct {
	Signed    string
	JTI       string
	ExpiresAt time.Time
}

// IssueRefreshToken mints a long-lived refresh token carrying a fresh JTI
// for session tracking.
func (i *Issuer) IssueRefreshToken(userID uint, email string) (*RefreshToken, error) {
	now := time.Now()
	expires := now.Add(i.cfg.RefreshExpiry)
	jti := uuid.NewString()

	claims := Claims{
		UserID: userID,
		Email:  email,
		Type:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &RefreshToken{Signed: signed, JTI: jti, ExpiresAt: expires}, nil
}

// Parse validates a signed token and returns its claims.
func (i *Issuer) Parse(signed string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(i.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Auth("invalid or expired token")
	}
	return claims, nil
}
