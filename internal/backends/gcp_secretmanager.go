package backends

import (
	"context"
	"fmt"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/credstore/pkg/provider"
)

// GCPSecretAPI is the slice of the Secret Manager client the backend uses.
// The concrete *secretmanager.Client satisfies it; tests inject a mock.
type GCPSecretAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) *secretmanager.SecretIterator
}

// GCPSecretManagerBackend reads secrets from Google Cloud Secret Manager.
// Secret IDs may not contain slashes, so db/password maps to the secret ID
// "db_password" and List reverses the mapping on the first underscore.
type GCPSecretManagerBackend struct {
	name      string
	client    GCPSecretAPI
	projectID string
}

// GCPOption configures the backend.
type GCPOption func(*GCPSecretManagerBackend)

// WithGCPClient injects a custom client, used by tests.
func WithGCPClient(client GCPSecretAPI) GCPOption {
	return func(b *GCPSecretManagerBackend) { b.client = client }
}

// NewGCPSecretManagerBackend creates a Secret Manager backend. Recognized
// config keys: project_id (required), service_account_key_path.
func NewGCPSecretManagerBackend(name string, cfg map[string]interface{}, opts ...GCPOption) (*GCPSecretManagerBackend, error) {
	projectID, _ := cfg["project_id"].(string)
	if projectID == "" {
		return nil, fmt.Errorf("project_id is required for gcp.secretmanager backend %q", name)
	}

	b := &GCPSecretManagerBackend{name: name, projectID: projectID}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		var clientOpts []option.ClientOption
		if keyPath, ok := cfg["service_account_key_path"].(string); ok && keyPath != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(keyPath))
		}
		client, err := secretmanager.NewClient(context.Background(), clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		b.client = client
	}
	return b, nil
}

// NewGCPSecretManagerBackendBuilder adapts NewGCPSecretManagerBackend to the
// catalog's builder signature.
func NewGCPSecretManagerBackendBuilder(name string, cfg map[string]interface{}) (provider.Backend, error) {
	return NewGCPSecretManagerBackend(name, cfg)
}

func (b *GCPSecretManagerBackend) Name() string { return b.name }

func (b *GCPSecretManagerBackend) secretID(name provider.Name) string {
	return name.Namespace + "_" + strings.ReplaceAll(name.Key, "/", "_")
}

func (b *GCPSecretManagerBackend) versionResource(name provider.Name) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", b.projectID, b.secretID(name))
}

func (b *GCPSecretManagerBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	resp, err := b.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: b.versionResource(name),
	})
	if err != nil {
		return provider.SecretValue{}, b.classify(err, name)
	}
	if resp.Payload == nil {
		return provider.SecretValue{}, provider.MalformedError{
			Provider: b.name, Name: name, Reason: "secret version has no payload",
		}
	}

	// The version number is the trailing path element of resp.Name.
	version := "latest"
	if idx := strings.LastIndex(resp.Name, "/"); idx != -1 {
		version = resp.Name[idx+1:]
	}

	return provider.SecretValue{
		Value:     string(resp.Payload.Data),
		Provider:  b.name,
		Version:   version,
		FetchedAt: time.Now(),
		Metadata:  map[string]string{"project": b.projectID, "resource": resp.Name},
	}, nil
}

func (b *GCPSecretManagerBackend) List(ctx context.Context) ([]provider.Name, error) {
	it := b.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: "projects/" + b.projectID,
	})
	var names []provider.Name
	for {
		s, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, b.classify(err, provider.Name{})
		}
		id := s.Name
		if idx := strings.LastIndex(id, "/"); idx != -1 {
			id = id[idx+1:]
		}
		// Reverse the slash-to-underscore mapping on the first
		// underscore only; keys keep any further underscores.
		idx := strings.Index(id, "_")
		if idx <= 0 || idx == len(id)-1 {
			continue
		}
		names = append(names, provider.Name{Namespace: id[:idx], Key: id[idx+1:]})
	}
	return names, nil
}

// HealthCheck lists one secret to verify credentials and connectivity.
func (b *GCPSecretManagerBackend) HealthCheck(ctx context.Context) error {
	it := b.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent:   "projects/" + b.projectID,
		PageSize: 1,
	})
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return b.classify(err, provider.Name{})
	}
	return nil
}

func (b *GCPSecretManagerBackend) classify(err error, name provider.Name) error {
	switch status.Code(err) {
	case codes.NotFound:
		return provider.NotFoundError{Provider: b.name, Name: name}
	case codes.PermissionDenied, codes.Unauthenticated:
		return provider.UnauthorizedError{Provider: b.name, Message: err.Error()}
	default:
		return provider.UnavailableError{Provider: b.name, Err: err}
	}
}
