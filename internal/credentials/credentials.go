// Package credentials resolves platform logins on demand.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"jobpilot/internal/browser"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/store"
)

var (
	// ErrMissing means no usable login exists for the user on the platform.
	ErrMissing = errors.New("credential missing")
	// ErrUnreadable means a stored login exists but cannot be decoded; it
	// will not become readable without the user re-entering it.
	ErrUnreadable = errors.New("credential unreadable")
)

// Credential is a decrypted platform login
type Credential struct {
	Username string           `json:"username"`
	Password string           `json:"password"`
	Cookies  []browser.Cookie `json:"cookies,omitempty"`
}

func (c Credential) HasCookies() bool  { return len(c.Cookies) > 0 }
func (c Credential) HasPassword() bool { return c.Username != "" && c.Password != "" }

// Provider returns the login for a user on a platform
type Provider interface {
	Credential(ctx context.Context, userID, platform string) (Credential, error)
}

// Decrypter opens stored secrets
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// DecrypterFunc adapts a function to Decrypter
type DecrypterFunc func([]byte) ([]byte, error)

func (f DecrypterFunc) Decrypt(b []byte) ([]byte, error) { return f(b) }

// Plaintext passes stored bytes through unchanged
var Plaintext Decrypter = DecrypterFunc(func(b []byte) ([]byte, error) { return b, nil })

type aesGCM struct {
	aead cipher.AEAD
}

// NewAESGCMDecrypter opens secrets sealed as nonce||ciphertext with AES-GCM.
// key is base64 encoded and must decode to 16, 24 or 32 bytes.
func NewAESGCMDecrypter(key string) (Decrypter, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aesGCM{aead: aead}, nil
}

func (a *aesGCM) Decrypt(b []byte) ([]byte, error) {
	n := a.aead.NonceSize()
	if len(b) < n {
		return nil, errors.New("ciphertext too short")
	}
	return a.aead.Open(nil, b[:n], b[n:], nil)
}

// Seal is the inverse of the AES-GCM decrypter; used by tooling and tests.
func (a *aesGCM) Seal(nonce, plaintext []byte) []byte {
	return append(append([]byte(nil), nonce...), a.aead.Seal(nil, nonce, plaintext, nil)...)
}

// Source is the slice of the account store that holds credential rows
type Source interface {
	Credential(ctx context.Context, userID, platform string) (store.CredentialRecord, error)
}

// DBProvider reads encrypted rows from the platform_credentials table
type DBProvider struct {
	source Source
	dec    Decrypter
	logger types.Logger
}

func NewDBProvider(source Source, dec Decrypter, logger types.Logger) *DBProvider {
	if dec == nil {
		dec = Plaintext
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &DBProvider{source: source, dec: dec, logger: logger}
}

func (p *DBProvider) Credential(ctx context.Context, userID, platform string) (Credential, error) {
	rec, err := p.source.Credential(ctx, userID, platform)
	if errors.Is(err, store.ErrNotFound) {
		return Credential{}, fmt.Errorf("%w: %s", ErrMissing, platform)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}

	cred := Credential{Username: rec.Username}

	if len(rec.Password) > 0 {
		pw, err := p.dec.Decrypt(rec.Password)
		if err != nil {
			return Credential{}, fmt.Errorf("%w: decrypt password: %w", ErrUnreadable, err)
		}
		cred.Password = string(pw)
	}

	if len(rec.Cookies) > 0 {
		raw, err := p.dec.Decrypt(rec.Cookies)
		if err != nil {
			return Credential{}, fmt.Errorf("%w: decrypt cookies: %w", ErrUnreadable, err)
		}
		if err := json.Unmarshal(raw, &cred.Cookies); err != nil {
			// a corrupt cookie jar falls back to the password login
			p.logger.Warn("Ignoring unreadable session cookies", map[string]interface{}{
				"user_id":  userID,
				"platform": platform,
				"error":    err.Error(),
			})
			cred.Cookies = nil
		}
	}

	if !cred.HasCookies() && !cred.HasPassword() {
		return Credential{}, fmt.Errorf("%w: %s", ErrMissing, platform)
	}
	return cred, nil
}
