package backends_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/internal/backends"
	"github.com/systmms/credstore/pkg/provider"
)

func TestStaticFetch(t *testing.T) {
	b, err := backends.NewStaticBackend("static", map[string]string{
		"db/password": "hunter2",
	}, time.Minute)
	require.NoError(t, err)

	v, err := b.Fetch(context.Background(), provider.Name{Namespace: "db", Key: "password"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v.Value)
	assert.False(t, v.ExpiresAt.IsZero())

	_, err = b.Fetch(context.Background(), provider.Name{Namespace: "db", Key: "absent"})
	assert.True(t, provider.IsNotFound(err))
}

func TestStaticZeroTTLMeansNoExpiry(t *testing.T) {
	b, err := backends.NewStaticBackend("static", map[string]string{"db/password": "pw"}, 0)
	require.NoError(t, err)

	v, err := b.Fetch(context.Background(), provider.Name{Namespace: "db", Key: "password"})
	require.NoError(t, err)
	assert.True(t, v.ExpiresAt.IsZero())
}

func TestStaticRejectsMalformedNames(t *testing.T) {
	_, err := backends.NewStaticBackend("static", map[string]string{"no-namespace": "x"}, 0)
	assert.Error(t, err)
}

func TestStaticContract(t *testing.T) {
	b, err := backends.NewStaticBackend("static", map[string]string{"db/password": "hunter2"}, 0)
	require.NoError(t, err)

	provider.ContractTest{
		Backend:     b,
		KnownName:   provider.Name{Namespace: "db", Key: "password"},
		MissingName: provider.Name{Namespace: "db", Key: "absent"},
	}.Run(t)
}
