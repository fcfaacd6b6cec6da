package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

var (
	ErrTokenMalformed = errors.New("invalid token format")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// invoiceLinkAudience keeps invoice links from being accepted where a
// session token is expected, and the other way round.
const invoiceLinkAudience = "invoice-link"

// InvoiceLinkClaims grant read-only access to one invoice. They travel in the
// link sent to the invoiced client.
type InvoiceLinkClaims struct {
	UserID    string `json:"uid"`
	InvoiceID uint   `json:"inv"`
	jwt.RegisteredClaims
}

// DeriveLinkSecret expands the field encryption key into a separate signing
// key for invoice links, so the AEAD key never signs anything itself.
func DeriveLinkSecret(encryptionKey []byte) (string, error) {
	if len(encryptionKey) == 0 {
		return "", ErrInvalidKey
	}
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, encryptionKey, nil, []byte(invoiceLinkAudience))
	if _, err := io.ReadFull(r, out); err != nil {
		return "", fmt.Errorf("derive link secret: %w", err)
	}
	return string(out), nil
}

// LinkSecretFromEnv returns INVOICE_LINK_SECRET, or a key derived from
// ENCRYPTION_KEY when it is unset. An empty result disables invoice links.
func LinkSecretFromEnv() (string, error) {
	if secret := env.GetEnv("INVOICE_LINK_SECRET", ""); secret != "" {
		return secret, nil
	}
	raw := env.GetEnv("ENCRYPTION_KEY", "")
	if raw == "" {
		return "", nil
	}
	key, err := ParseKey(raw)
	if err != nil {
		return "", err
	}
	return DeriveLinkSecret(key)
}

// GenerateInvoiceLinkToken signs an HS256 token valid for ttl.
func GenerateInvoiceLinkToken(userID string, invoiceID uint, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token generation")
	}
	now := time.Now()
	claims := InvoiceLinkClaims{
		UserID:    userID,
		InvoiceID: invoiceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{invoiceLinkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyInvoiceLinkToken checks signature, audience and expiry. Failures are
// reported as ErrTokenMalformed, ErrTokenSignature or ErrTokenExpired.
func VerifyInvoiceLinkToken(token, secret string) (*InvoiceLinkClaims, error) {
	if secret == "" {
		return nil, errors.New("secret is required for token verification")
	}
	claims := &InvoiceLinkClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(invoiceLinkAudience),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenSignature
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.UserID == "" || claims.InvoiceID == 0 {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
