// Package provider defines the contract between the credstore resolution
// engine and the backing secret stores it fetches from.
//
// A Backend is a single configured store: a HashiCorp-Vault-style service,
// AWS Secrets Manager, GCP Secret Manager, Azure Key Vault, the OS keyring,
// and so on. All backends implement the same small capability set (fetch,
// list, health check) so the resolver can walk them in priority order
// without knowing what is behind each one. New stores implement Backend and
// register a factory; the resolver is never touched.
//
// # Error contract
//
// Fetch must classify failures into the typed errors of this package:
//
//   - NotFoundError: the name does not exist at this backend. Not fatal for
//     the resolver, which proceeds to the next backend.
//   - UnauthorizedError: the credentials used to reach the backend were
//     rejected. The backend is unhealthy until reconfigured.
//   - UnavailableError: transient network or service failure, retryable.
//   - MalformedError: the backend returned data that cannot be parsed as a
//     secret. Treated like Unavailable for fallback, logged louder.
//
// Anything else is treated as Unavailable by the resolver.
//
// # Security
//
// Backends must never log secret values. Names and outcomes only; use
// logging.Secret for anything that might contain material.
//
// # Concurrency
//
// Backend implementations must be safe for concurrent use. The resolver
// guarantees at most one in-flight Fetch per secret name, but different
// names are fetched in parallel and health checks may run concurrently
// with fetches.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend is a single backing secret store.
type Backend interface {
	// Name returns the configured instance name (e.g. "vault-main").
	// It is used in logs, health state, and diagnostics; never for
	// anything secret.
	Name() string

	// Fetch retrieves the current value of a secret and any expiry the
	// store declares for it. Implementations must honor ctx cancellation
	// and return one of the typed errors above on failure.
	Fetch(ctx context.Context, name Name) (SecretValue, error)

	// List enumerates the names this backend holds, used for cache
	// pre-warming. Backends that cannot enumerate return
	// ErrListUnsupported.
	List(ctx context.Context) ([]Name, error)

	// HealthCheck is a lightweight liveness probe. A nil return means the
	// backend is reachable and authenticated well enough to attempt a
	// Fetch.
	HealthCheck(ctx context.Context) error
}

// ErrListUnsupported is returned by List for backends that cannot enumerate
// their secrets.
var ErrListUnsupported = fmt.Errorf("backend does not support listing secrets")

// Name identifies a secret: an opaque namespace plus key. Equality is
// byte-exact on both parts, so Name is usable directly as a map key.
type Name struct {
	Namespace string
	Key       string
}

// ParseName parses "namespace/key". The key may itself contain slashes;
// only the first separator splits.
func ParseName(s string) (Name, error) {
	idx := strings.Index(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return Name{}, fmt.Errorf("invalid secret name %q: want namespace/key", s)
	}
	return Name{Namespace: s[:idx], Key: s[idx+1:]}, nil
}

// String returns the canonical "namespace/key" form.
func (n Name) String() string {
	return n.Namespace + "/" + n.Key
}

// IsZero reports whether the name is empty.
func (n Name) IsZero() bool {
	return n.Namespace == "" && n.Key == ""
}

// SecretValue is a retrieved secret plus the metadata the cache needs to
// decide freshness. The value itself must never be duplicated into logs or
// error messages.
type SecretValue struct {
	// Value is the sensitive material.
	Value string

	// Provider is the Name() of the backend this value came from.
	Provider string

	// Version is the store's version identifier, if it has one.
	Version string

	// FetchedAt is when the value was retrieved from the backend.
	FetchedAt time.Time

	// ExpiresAt is the backend-declared expiry. Zero means the store
	// declared none; the cache then treats the entry as fresh until
	// explicitly invalidated (or applies a configured default TTL).
	ExpiresAt time.Time

	// Metadata carries non-sensitive provider attributes (resource path,
	// labels). Backends must not put secret material here.
	Metadata map[string]string
}

// TTL returns the declared lifetime of the value at fetch time, or zero if
// the backend declared no expiry.
func (v SecretValue) TTL() time.Duration {
	if v.ExpiresAt.IsZero() || v.FetchedAt.IsZero() {
		return 0
	}
	d := v.ExpiresAt.Sub(v.FetchedAt)
	if d < 0 {
		return 0
	}
	return d
}
