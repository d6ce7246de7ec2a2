// Package backends contains the concrete secret store integrations and the
// catalog that builds them from configuration. Each backend adapts one store
// (Vault, AWS, GCP, Azure, OS keyring, inline literals) to the
// provider.Backend interface; classification of store errors into the shared
// taxonomy happens here so the resolver never sees SDK error types.
package backends

import (
	"fmt"
	"sort"

	"github.com/systmms/credstore/internal/backends/vault"
	"github.com/systmms/credstore/pkg/provider"
)

// BuildFunc constructs a backend instance from its config block.
type BuildFunc func(name string, cfg map[string]interface{}) (provider.Backend, error)

// Catalog maps backend type strings to their builders.
type Catalog struct {
	builders map[string]BuildFunc
}

// NewCatalog returns a catalog with all built-in backend types registered.
func NewCatalog() *Catalog {
	c := &Catalog{builders: make(map[string]BuildFunc)}

	c.Register("static", NewStaticBackendBuilder)
	c.Register("keyring", NewKeyringBackendBuilder)
	c.Register("vault", vault.NewBackendBuilder)
	c.Register("aws.secretsmanager", NewSecretsManagerBackendBuilder)
	c.Register("aws.ssm", NewSSMBackendBuilder)
	c.Register("gcp.secretmanager", NewGCPSecretManagerBackendBuilder)
	c.Register("azure.keyvault", NewAzureKeyVaultBackendBuilder)

	return c
}

// Register adds or replaces the builder for a backend type.
func (c *Catalog) Register(backendType string, fn BuildFunc) {
	c.builders[backendType] = fn
}

// Build constructs a backend of the given type.
func (c *Catalog) Build(backendType, name string, cfg map[string]interface{}) (provider.Backend, error) {
	fn, ok := c.builders[backendType]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
	return fn(name, cfg)
}

// SupportedTypes returns the registered type strings, sorted.
func (c *Catalog) SupportedTypes() []string {
	types := make([]string, 0, len(c.builders))
	for t := range c.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether a backend type is registered.
func (c *Catalog) IsSupported(backendType string) bool {
	_, ok := c.builders[backendType]
	return ok
}
