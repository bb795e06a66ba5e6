package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringProvider keeps credentials in the OS keychain as JSON secrets,
// one entry per user and platform.
type KeyringProvider struct {
	service string
}

func NewKeyringProvider(service string) *KeyringProvider {
	if service == "" {
		service = "jobpilot"
	}
	return &KeyringProvider{service: service}
}

func keyringUser(userID, platform string) string {
	return userID + "/" + strings.ToLower(platform)
}

func (k *KeyringProvider) Credential(_ context.Context, userID, platform string) (Credential, error) {
	secret, err := keyring.Get(k.service, keyringUser(userID, platform))
	if errors.Is(err, keyring.ErrNotFound) {
		return Credential{}, fmt.Errorf("%w: %s", ErrMissing, platform)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("keyring lookup: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(secret), &cred); err != nil {
		return Credential{}, fmt.Errorf("%w: keyring entry for %s is not valid JSON: %w", ErrUnreadable, platform, err)
	}
	if !cred.HasCookies() && !cred.HasPassword() {
		return Credential{}, fmt.Errorf("%w: %s", ErrMissing, platform)
	}
	return cred, nil
}

// Put stores or replaces a credential.
func (k *KeyringProvider) Put(userID, platform string, cred Credential) error {
	b, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, keyringUser(userID, platform), string(b))
}

// Delete removes a stored credential.
func (k *KeyringProvider) Delete(userID, platform string) error {
	err := keyring.Delete(k.service, keyringUser(userID, platform))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
