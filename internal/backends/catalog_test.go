package backends_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/internal/backends"
	"github.com/systmms/credstore/pkg/provider"
)

func TestCatalogBuiltins(t *testing.T) {
	c := backends.NewCatalog()
	for _, typ := range []string{
		"static", "keyring", "vault",
		"aws.secretsmanager", "aws.ssm",
		"gcp.secretmanager", "azure.keyvault",
	} {
		assert.True(t, c.IsSupported(typ), "missing builtin %s", typ)
	}
	assert.False(t, c.IsSupported("carrier-pigeon"))
}

func TestCatalogBuildStatic(t *testing.T) {
	c := backends.NewCatalog()
	b, err := c.Build("static", "dev", map[string]interface{}{
		"values": map[string]interface{}{"db/password": "hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dev", b.Name())

	v, err := b.Fetch(context.Background(), provider.Name{Namespace: "db", Key: "password"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v.Value)
}

func TestCatalogUnknownType(t *testing.T) {
	_, err := backends.NewCatalog().Build("carrier-pigeon", "p", nil)
	assert.Error(t, err)
}

func TestCatalogRegisterCustom(t *testing.T) {
	c := backends.NewCatalog()
	c.Register("fake", func(name string, cfg map[string]interface{}) (provider.Backend, error) {
		return provider.NewFakeBackend(name), nil
	})
	b, err := c.Build("fake", "custom", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", b.Name())

	types := c.SupportedTypes()
	assert.Contains(t, types, "fake")
	assert.IsIncreasing(t, types)
}
