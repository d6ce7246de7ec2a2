package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/credstore/pkg/provider"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		input   string
		want    provider.Name
		wantErr bool
	}{
		{"db/password", provider.Name{Namespace: "db", Key: "password"}, false},
		{"infra/tls/cert", provider.Name{Namespace: "infra", Key: "tls/cert"}, false},
		{"nokey/", provider.Name{}, true},
		{"/nonamespace", provider.Name{}, true},
		{"plain", provider.Name{}, true},
		{"", provider.Name{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := provider.ParseName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestNameEquality(t *testing.T) {
	a := provider.Name{Namespace: "db", Key: "password"}
	b := provider.Name{Namespace: "db", Key: "password"}
	c := provider.Name{Namespace: "db", Key: "Password"}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "comparison is byte-exact")

	m := map[provider.Name]int{a: 1}
	assert.Equal(t, 1, m[b])
}

func TestSecretValueTTL(t *testing.T) {
	now := time.Now()

	v := provider.SecretValue{FetchedAt: now, ExpiresAt: now.Add(time.Minute)}
	assert.Equal(t, time.Minute, v.TTL())

	noExpiry := provider.SecretValue{FetchedAt: now}
	assert.Zero(t, noExpiry.TTL())

	alreadyExpired := provider.SecretValue{FetchedAt: now, ExpiresAt: now.Add(-time.Second)}
	assert.Zero(t, alreadyExpired.TTL())
}

func TestErrorClassification(t *testing.T) {
	name := provider.Name{Namespace: "db", Key: "password"}

	notFound := provider.NotFoundError{Provider: "vault", Name: name}
	unauthorized := provider.UnauthorizedError{Provider: "vault", Message: "token expired"}
	unavailable := provider.UnavailableError{Provider: "vault", Err: errors.New("connection refused")}
	malformed := provider.MalformedError{Provider: "vault", Name: name, Reason: "payload is not a secret"}

	assert.True(t, provider.IsNotFound(notFound))
	assert.False(t, provider.IsNotFound(unavailable))

	assert.True(t, provider.IsUnauthorized(unauthorized))
	assert.False(t, provider.IsUnauthorized(notFound))

	assert.True(t, provider.IsUnavailable(unavailable))
	assert.True(t, provider.IsUnavailable(context.DeadlineExceeded))
	assert.False(t, provider.IsUnavailable(notFound))

	assert.True(t, provider.IsMalformed(malformed))
	assert.False(t, provider.IsMalformed(unauthorized))
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	name := provider.Name{Namespace: "db", Key: "password"}
	wrapped := errors.Join(errors.New("outer"), provider.NotFoundError{Provider: "vault", Name: name})
	assert.True(t, provider.IsNotFound(wrapped))
}

func TestFakeBackendContract(t *testing.T) {
	known := provider.Name{Namespace: "test", Key: "known"}
	missing := provider.Name{Namespace: "test", Key: "missing"}

	fake := provider.NewFakeBackend("fake").WithValueTTL(known, "v1", time.Minute)

	provider.ContractTest{
		Backend:     fake,
		KnownName:   known,
		MissingName: missing,
	}.Run(t)
}

func TestFakeBackendCounting(t *testing.T) {
	name := provider.Name{Namespace: "test", Key: "counted"}
	fake := provider.NewFakeBackend("fake").WithValueTTL(name, "v1", 0)

	for i := 0; i < 3; i++ {
		_, err := fake.Fetch(context.Background(), name)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, fake.FetchCount(name))
	assert.Equal(t, 3, fake.TotalFetches())
}
