package credstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/internal/backends"
	"github.com/systmms/credstore/internal/config"
	"github.com/systmms/credstore/pkg/credstore"
	"github.com/systmms/credstore/pkg/provider"
)

func newService(t *testing.T, yaml string, opts credstore.Options) *credstore.Service {
	t.Helper()
	def, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	svc, err := credstore.New(def, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceResolvesFromStaticProvider(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: dev
    type: static
    ttl: 1h
    values:
      db/password: hunter2
`, credstore.Options{})

	v, err := svc.ResolveRef(context.Background(), "db/password", credstore.ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v.Value)
	assert.Equal(t, "dev", v.Provider)
}

func TestServicePriorityFallback(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: primary
    type: static
    values:
      svc/api-key: from-primary
  - name: fallback
    type: static
    values:
      svc/api-key: from-fallback
      db/password: only-here
`, credstore.Options{})

	v, err := svc.ResolveRef(context.Background(), "svc/api-key", credstore.ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-primary", v.Value)

	v, err = svc.ResolveRef(context.Background(), "db/password", credstore.ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from-fallback", v.Provider)
}

func TestServiceRejectsUnknownBackendType(t *testing.T) {
	def, err := config.Parse([]byte(`
version: 0
providers:
  - name: p
    type: static
`))
	require.NoError(t, err)
	def.Providers[0].Type = "carrier-pigeon"

	_, err = credstore.New(def, credstore.Options{})
	assert.Error(t, err)
}

func TestServiceCustomCatalog(t *testing.T) {
	catalog := backends.NewCatalog()
	fake := provider.NewFakeBackend("injected").
		WithValueTTL(provider.Name{Namespace: "db", Key: "password"}, "pw", time.Minute)
	catalog.Register("fake", func(name string, cfg map[string]interface{}) (provider.Backend, error) {
		return fake, nil
	})

	svc := newService(t, `
version: 0
providers:
  - name: injected
    type: static
`, credstore.Options{Catalog: catalog})
	_ = svc

	svc2 := newService(t, `
version: 0
providers:
  - name: injected
    type: fake
`, credstore.Options{Catalog: catalog})

	v, err := svc2.ResolveRef(context.Background(), "db/password", credstore.ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pw", v.Value)
	assert.Equal(t, 1, fake.FetchCount(provider.Name{Namespace: "db", Key: "password"}))
}

func TestServiceWarmAndCacheSize(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: dev
    type: static
    ttl: 1h
    values:
      db/password: a
      svc/api-key: b
`, credstore.Options{})

	assert.Equal(t, 2, svc.Warm(context.Background(), ""))
	assert.Equal(t, 2, svc.CacheSize())
	assert.Equal(t, 1, svc.Warm(context.Background(), "db"))
}

func TestServiceProviderStatus(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: first
    type: static
  - name: second
    type: static
`, credstore.Options{})

	statuses := svc.Providers()
	require.Len(t, statuses, 2)
	assert.Equal(t, "first", statuses[0].Name)
	assert.Equal(t, "closed", statuses[0].Circuit)
	assert.Zero(t, statuses[0].ConsecutiveFailures)
}

func TestServiceCheckHealth(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: dev
    type: static
`, credstore.Options{})

	assert.Empty(t, svc.CheckHealth(context.Background()))
}

func TestServiceInvalidate(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: dev
    type: static
    ttl: 1h
    values:
      db/password: pw
`, credstore.Options{})

	name := provider.Name{Namespace: "db", Key: "password"}
	_, err := svc.Resolve(context.Background(), name, credstore.ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.CacheSize())

	svc.Invalidate(name)
	assert.Equal(t, 0, svc.CacheSize())
}

func TestServiceStartStop(t *testing.T) {
	svc := newService(t, `
version: 0
providers:
  - name: dev
    type: static
rotation:
  interval: 1h
`, credstore.Options{})

	svc.Start(context.Background())
	require.NoError(t, svc.Close())
}
