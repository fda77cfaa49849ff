package access

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
)

// adminGrantEnv holds raw env values before post-parse validation.
type adminGrantEnv struct {
	Issuer    string `env:"SORTITION_ADMIN_GRANT_ISSUER"`
	Audience  string `env:"SORTITION_ADMIN_GRANT_AUDIENCE"`
	PublicKey string `env:"SORTITION_ADMIN_GRANT_PUBLIC_KEY"`
}

// AdminGrantConfig defines how admin grants are verified.
type AdminGrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// AdminGrantClaims captures validated admin grant claims.
type AdminGrantClaims struct {
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
	AdminID   string
}

// adminGrantClaims is the internal claims type used for JWT parsing.
type adminGrantClaims struct {
	jwt.RegisteredClaims
	AdminID string `json:"admin_id"`
}

// LoadAdminGrantConfigFromEnv reads admin grant verification configuration.
func LoadAdminGrantConfigFromEnv(now func() time.Time) (AdminGrantConfig, error) {
	var raw adminGrantEnv
	if err := env.Parse(&raw); err != nil {
		return AdminGrantConfig{}, fmt.Errorf("parse admin grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return AdminGrantConfig{}, fmt.Errorf("SORTITION_ADMIN_GRANT_ISSUER is required")
	}
	if audience == "" {
		return AdminGrantConfig{}, fmt.Errorf("SORTITION_ADMIN_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return AdminGrantConfig{}, fmt.Errorf("SORTITION_ADMIN_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := base64.RawStdEncoding.DecodeString(publicKey)
	if err != nil {
		return AdminGrantConfig{}, fmt.Errorf("decode admin grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return AdminGrantConfig{}, fmt.Errorf("admin grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return AdminGrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// ValidateAdminGrant verifies an admin grant token and returns its claims.
func ValidateAdminGrant(grant string, cfg AdminGrantConfig) (AdminGrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return AdminGrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return AdminGrantClaims{}, errors.New("admin grant verifier is not configured")
	}

	var parsed adminGrantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return AdminGrantClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return AdminGrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"admin grant issuer mismatch",
			map[string]string{"field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return AdminGrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeGrantInvalid,
			"admin grant audience mismatch",
			map[string]string{"field": "audience"},
		)
	}
	if parsed.ID == "" {
		return AdminGrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant jti is required")
	}
	if strings.TrimSpace(parsed.AdminID) == "" {
		return AdminGrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant admin_id is required")
	}
	if parsed.ExpiresAt == nil {
		return AdminGrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return AdminGrantClaims{}, apperrors.New(apperrors.CodeGrantExpired, "admin grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return AdminGrantClaims{}, apperrors.New(apperrors.CodeGrantInvalid, "admin grant not active yet")
	}

	claims := AdminGrantClaims{
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
		AdminID:   parsed.AdminID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// IssueAdminGrant signs a short-lived admin grant for the given identity.
// Used by operator tooling and tests; verification lives in
// ValidateAdminGrant.
func IssueAdminGrant(adminID, jwtID string, ttl time.Duration, cfg AdminGrantConfig, key ed25519.PrivateKey) (string, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return "", errors.New("admin id is required")
	}
	if jwtID == "" {
		return "", errors.New("jwt id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("admin grant private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	now := cfg.Now().UTC()
	claims := adminGrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jwtID,
		},
		AdminID: adminID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign admin grant: %w", err)
	}
	return signed, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeGrantInvalid, "admin grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeGrantInvalid, "admin grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeGrantInvalid, "admin grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
