package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/systmms/credstore/pkg/provider"
)

// KeyringBackend reads secrets from the OS credential store (Secret Service
// on Linux, Keychain on macOS, Credential Manager on Windows). The secret's
// namespace maps to the keyring service, optionally prefixed, and the key
// maps to the account.
type KeyringBackend struct {
	name          string
	servicePrefix string
}

// NewKeyringBackend creates a keyring backend. servicePrefix, when set, is
// joined to the namespace with a dot ("com.example" + "myapp" →
// "com.example.myapp").
func NewKeyringBackend(name, servicePrefix string) *KeyringBackend {
	return &KeyringBackend{name: name, servicePrefix: servicePrefix}
}

// NewKeyringBackendBuilder builds a keyring backend from config. Expected
// block:
//
//	service_prefix: com.example
func NewKeyringBackendBuilder(name string, cfg map[string]interface{}) (provider.Backend, error) {
	prefix, _ := cfg["service_prefix"].(string)
	return NewKeyringBackend(name, prefix), nil
}

func (k *KeyringBackend) Name() string { return k.name }

func (k *KeyringBackend) service(namespace string) string {
	if k.servicePrefix == "" {
		return namespace
	}
	return k.servicePrefix + "." + namespace
}

func (k *KeyringBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	if err := ctx.Err(); err != nil {
		return provider.SecretValue{}, provider.UnavailableError{Provider: k.name, Err: err}
	}
	value, err := keyring.Get(k.service(name.Namespace), name.Key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return provider.SecretValue{}, provider.NotFoundError{Provider: k.name, Name: name}
		}
		return provider.SecretValue{}, provider.UnavailableError{Provider: k.name, Err: err}
	}
	return provider.SecretValue{
		Value:     value,
		Provider:  k.name,
		FetchedAt: time.Now(),
		Metadata:  map[string]string{"service": k.service(name.Namespace)},
	}, nil
}

// List is unsupported: the OS keyring API has no portable enumeration.
func (k *KeyringBackend) List(ctx context.Context) ([]provider.Name, error) {
	return nil, provider.ErrListUnsupported
}

// HealthCheck probes the credential store with a read of a key that is not
// expected to exist. ErrNotFound means the store answered.
func (k *KeyringBackend) HealthCheck(ctx context.Context) error {
	_, err := keyring.Get(k.service("credstore-health"), "probe")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credential store unreachable: %w", err)
	}
	return nil
}
