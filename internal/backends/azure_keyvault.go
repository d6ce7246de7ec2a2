package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/credstore/pkg/provider"
)

// AzureSecretAPI is the slice of the Key Vault client the backend uses.
type AzureSecretAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKeyVaultBackend reads secrets from Azure Key Vault. Key Vault secret
// names may not contain slashes, so db/password maps to "db-password".
// Expiry set on the Key Vault secret carries through to the cached value.
type AzureKeyVaultBackend struct {
	name     string
	client   AzureSecretAPI
	vaultURL string
}

// AzureOption configures the backend.
type AzureOption func(*AzureKeyVaultBackend)

// WithAzureClient injects a custom client, used by tests.
func WithAzureClient(client AzureSecretAPI) AzureOption {
	return func(b *AzureKeyVaultBackend) { b.client = client }
}

// NewAzureKeyVaultBackend creates a Key Vault backend. Recognized config
// keys: vault_url (required), tenant_id, client_id, client_secret (service
// principal auth; otherwise the default credential chain applies).
func NewAzureKeyVaultBackend(name string, cfg map[string]interface{}, opts ...AzureOption) (*AzureKeyVaultBackend, error) {
	vaultURL, _ := cfg["vault_url"].(string)
	if vaultURL == "" {
		return nil, fmt.Errorf("vault_url is required for azure.keyvault backend %q", name)
	}

	b := &AzureKeyVaultBackend{name: name, vaultURL: vaultURL}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		var cred azcore.TokenCredential
		var err error
		tenantID, _ := cfg["tenant_id"].(string)
		clientID, _ := cfg["client_id"].(string)
		clientSecret, _ := cfg["client_secret"].(string)
		if tenantID != "" && clientID != "" && clientSecret != "" {
			cred, err = azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
		} else {
			cred, err = azidentity.NewDefaultAzureCredential(nil)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err := azsecrets.NewClient(vaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		b.client = client
	}
	return b, nil
}

// NewAzureKeyVaultBackendBuilder adapts NewAzureKeyVaultBackend to the
// catalog's builder signature.
func NewAzureKeyVaultBackendBuilder(name string, cfg map[string]interface{}) (provider.Backend, error) {
	return NewAzureKeyVaultBackend(name, cfg)
}

func (b *AzureKeyVaultBackend) Name() string { return b.name }

func (b *AzureKeyVaultBackend) secretName(name provider.Name) string {
	return name.Namespace + "-" + strings.ReplaceAll(name.Key, "/", "-")
}

func (b *AzureKeyVaultBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	resp, err := b.client.GetSecret(ctx, b.secretName(name), "", nil)
	if err != nil {
		return provider.SecretValue{}, b.classify(err, name)
	}
	if resp.Value == nil {
		return provider.SecretValue{}, provider.MalformedError{
			Provider: b.name, Name: name, Reason: "secret has no value",
		}
	}

	sv := provider.SecretValue{
		Value:     *resp.Value,
		Provider:  b.name,
		FetchedAt: time.Now(),
		Metadata:  map[string]string{"vault_url": b.vaultURL},
	}
	if resp.ID != nil {
		sv.Version = resp.ID.Version()
	}
	if resp.Attributes != nil && resp.Attributes.Expires != nil {
		sv.ExpiresAt = *resp.Attributes.Expires
	}
	return sv, nil
}

// List enumerates secret properties when the injected client is the real
// one; the mockable interface covers reads only.
func (b *AzureKeyVaultBackend) List(ctx context.Context) ([]provider.Name, error) {
	client, ok := b.client.(*azsecrets.Client)
	if !ok {
		return nil, provider.ErrListUnsupported
	}
	var names []provider.Name
	pager := client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, b.classify(err, provider.Name{})
		}
		for _, item := range page.Value {
			if item.ID == nil {
				continue
			}
			id := item.ID.Name()
			idx := strings.Index(id, "-")
			if idx <= 0 || idx == len(id)-1 {
				continue
			}
			names = append(names, provider.Name{Namespace: id[:idx], Key: id[idx+1:]})
		}
	}
	return names, nil
}

// HealthCheck reads a probe name. SecretNotFound means the vault answered
// and credentials work.
func (b *AzureKeyVaultBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.GetSecret(ctx, "credstore-health-probe", "", nil)
	if err == nil {
		return nil
	}
	classified := b.classify(err, provider.Name{})
	if provider.IsNotFound(classified) {
		return nil
	}
	return classified
}

func (b *AzureKeyVaultBackend) classify(err error, name provider.Name) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return provider.NotFoundError{Provider: b.name, Name: name}
		case 401, 403:
			return provider.UnauthorizedError{Provider: b.name, Message: respErr.Error()}
		}
	}
	return provider.UnavailableError{Provider: b.name, Err: err}
}
