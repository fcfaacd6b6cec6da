package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes (hex or base64)")
	ErrCiphertextInvalid = errors.New("ciphertext is invalid")
)

// FieldCipher encrypts short sensitive fields (IBAN) with XChaCha20-Poly1305.
// Output is base64(nonce|ciphertext).
type FieldCipher struct {
	aead cipher.AEAD
}

// ParseKey decodes a 32-byte key given as hex or standard base64.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 2*chacha20poly1305.KeySize {
		if b, err := hex.DecodeString(raw); err == nil {
			return b, nil
		}
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(b) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return b, nil
}

func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// NewFieldCipherFromEnv builds the cipher from ENCRYPTION_KEY.
func NewFieldCipherFromEnv() (*FieldCipher, error) {
	key, err := ParseKey(env.GetEnv("ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	return NewFieldCipher(key)
}

func (c *FieldCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *FieldCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return "", ErrCiphertextInvalid
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plain), nil
}

// NormalizeIBAN strips spaces and upper-cases the value.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

// MaskIBAN keeps the country code and the last four characters.
func MaskIBAN(iban string) string {
	iban = NormalizeIBAN(iban)
	if len(iban) <= 8 {
		return iban
	}
	return iban[:4] + strings.Repeat("*", len(iban)-8) + iban[len(iban)-4:]
}

// FormatIBAN prints the normalized IBAN in groups of four characters.
func FormatIBAN(iban string) string {
	iban = NormalizeIBAN(iban)
	var b strings.Builder
	for i, r := range iban {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
