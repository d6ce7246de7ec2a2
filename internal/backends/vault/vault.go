// Package vault implements the HashiCorp Vault backend over the KV v2
// engine. A secret name db/password maps to field "password" of the KV
// entry at <mount>/data/db.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/systmms/credstore/pkg/provider"
)

const (
	defaultMount   = "secret"
	defaultTimeout = 30 * time.Second
)

// Backend reads secrets from a Vault KV v2 mount.
type Backend struct {
	name   string
	mount  string
	client Client
}

// Config holds the Vault connection settings.
type Config struct {
	Address   string
	Mount     string
	Namespace string
	Token     string
	Timeout   time.Duration
	TLSSkip   bool
}

// Option configures the backend.
type Option func(*Backend)

// WithClient injects a custom transport, used by tests.
func WithClient(c Client) Option {
	return func(b *Backend) { b.client = c }
}

// New creates a Vault backend. The token falls back to VAULT_TOKEN and the
// address to VAULT_ADDR when unset in config.
func New(name string, cfg Config, opts ...Option) (*Backend, error) {
	if cfg.Address == "" {
		cfg.Address = os.Getenv("VAULT_ADDR")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("no vault address in config or VAULT_ADDR environment variable")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Mount == "" {
		cfg.Mount = defaultMount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	b := &Backend{name: name, mount: cfg.Mount}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		if cfg.Token == "" {
			return nil, fmt.Errorf("no vault token in config or VAULT_TOKEN environment variable")
		}
		b.client = newHTTPClient(cfg.Address, cfg.Namespace, cfg.Token, cfg.Timeout, cfg.TLSSkip)
	}
	return b, nil
}

// NewBackendBuilder builds a Vault backend from a raw config block.
// Recognized keys: address, mount, namespace, token, timeout, tls_skip.
func NewBackendBuilder(name string, raw map[string]interface{}) (provider.Backend, error) {
	var cfg Config
	if v, ok := raw["address"].(string); ok {
		cfg.Address = v
	}
	if v, ok := raw["mount"].(string); ok {
		cfg.Mount = v
	}
	if v, ok := raw["namespace"].(string); ok {
		cfg.Namespace = v
	}
	if v, ok := raw["token"].(string); ok {
		cfg.Token = v
	}
	if v, ok := raw["timeout"].(string); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		cfg.Timeout = d
	}
	if v, ok := raw["tls_skip"].(bool); ok {
		cfg.TLSSkip = v
	}
	return New(name, cfg)
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	path := b.mount + "/data/" + name.Namespace
	resp, err := b.client.Read(ctx, path)
	if err != nil {
		return provider.SecretValue{}, b.classify(err, name)
	}
	if resp == nil {
		return provider.SecretValue{}, provider.NotFoundError{Provider: b.name, Name: name}
	}

	// KV v2 nests the fields and version metadata one level down.
	fields, ok := resp.Data["data"].(map[string]interface{})
	if !ok {
		return provider.SecretValue{}, provider.MalformedError{
			Provider: b.name, Name: name, Reason: "response missing kv v2 data block",
		}
	}
	raw, ok := fields[name.Key]
	if !ok {
		return provider.SecretValue{}, provider.NotFoundError{Provider: b.name, Name: name}
	}
	value, ok := raw.(string)
	if !ok {
		return provider.SecretValue{}, provider.MalformedError{
			Provider: b.name, Name: name, Reason: fmt.Sprintf("field %q is not a string", name.Key),
		}
	}

	now := time.Now()
	sv := provider.SecretValue{
		Value:     value,
		Provider:  b.name,
		FetchedAt: now,
		Metadata:  map[string]string{"mount": b.mount, "path": name.Namespace},
	}
	if meta, ok := resp.Data["metadata"].(map[string]interface{}); ok {
		if v, ok := meta["version"].(float64); ok {
			sv.Version = strconv.Itoa(int(v))
		}
	}
	if resp.LeaseDuration > 0 {
		sv.ExpiresAt = now.Add(time.Duration(resp.LeaseDuration) * time.Second)
	}
	return sv, nil
}

// List enumerates the mount's metadata tree two levels deep: top-level keys
// become namespaces, their children become keys.
func (b *Backend) List(ctx context.Context) ([]provider.Name, error) {
	namespaces, err := b.client.List(ctx, b.mount+"/metadata")
	if err != nil {
		return nil, b.classify(err, provider.Name{})
	}
	var names []provider.Name
	for _, ns := range namespaces {
		// Plain entries are namespaces; trailing-slash entries are
		// deeper folders outside the namespace/key model.
		if len(ns) == 0 || ns[len(ns)-1] == '/' {
			continue
		}
		entry, err := b.client.Read(ctx, b.mount+"/data/"+ns)
		if err != nil || entry == nil {
			continue
		}
		fields, ok := entry.Data["data"].(map[string]interface{})
		if !ok {
			continue
		}
		for key := range fields {
			names = append(names, provider.Name{Namespace: ns, Key: key})
		}
	}
	return names, nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	return b.client.Health(ctx)
}

// Close releases the underlying transport, wiping the cached token.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) classify(err error, name provider.Name) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return provider.UnauthorizedError{Provider: b.name, Message: apiErr.Error()}
		case 404:
			return provider.NotFoundError{Provider: b.name, Name: name}
		}
	}
	return provider.UnavailableError{Provider: b.name, Err: err}
}
