package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	"github.com/systmms/credstore/pkg/provider"
)

// SecretsManagerAPI is the slice of the AWS SDK client the backend uses,
// extracted so tests can inject a mock.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// SecretsManagerBackend reads secrets from AWS Secrets Manager. A secret
// name db/password maps to the Secrets Manager secret ID "db/password",
// optionally under a configured prefix.
type SecretsManagerBackend struct {
	name   string
	client SecretsManagerAPI
	region string
	prefix string
}

// SecretsManagerOption configures the backend.
type SecretsManagerOption func(*SecretsManagerBackend)

// WithSecretsManagerClient injects a custom client, used by tests.
func WithSecretsManagerClient(client SecretsManagerAPI) SecretsManagerOption {
	return func(b *SecretsManagerBackend) { b.client = client }
}

// NewSecretsManagerBackend creates a Secrets Manager backend. Recognized
// config keys: region, prefix, endpoint (LocalStack), access_key_id and
// secret_access_key (static credentials for testing).
func NewSecretsManagerBackend(name string, cfg map[string]interface{}, opts ...SecretsManagerOption) (*SecretsManagerBackend, error) {
	region := "us-east-1"
	if r, ok := cfg["region"].(string); ok && r != "" {
		region = r
	}
	prefix, _ := cfg["prefix"].(string)
	endpoint, _ := cfg["endpoint"].(string)

	b := &SecretsManagerBackend{name: name, region: region, prefix: prefix}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		configOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
		if ak, ok := cfg["access_key_id"].(string); ok && ak != "" {
			sk, _ := cfg["secret_access_key"].(string)
			configOpts = append(configOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(ak, sk, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		var clientOpts []func(*secretsmanager.Options)
		if endpoint != "" {
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		b.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	}
	return b, nil
}

// NewSecretsManagerBackendBuilder adapts NewSecretsManagerBackend to the
// catalog's builder signature.
func NewSecretsManagerBackendBuilder(name string, cfg map[string]interface{}) (provider.Backend, error) {
	return NewSecretsManagerBackend(name, cfg)
}

func (b *SecretsManagerBackend) Name() string { return b.name }

func (b *SecretsManagerBackend) secretID(name provider.Name) string {
	if b.prefix == "" {
		return name.String()
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + name.String()
}

func (b *SecretsManagerBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	secretID := b.secretID(name)
	out, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return provider.SecretValue{}, b.classify(err, name)
	}

	var value string
	switch {
	case out.SecretString != nil:
		value = *out.SecretString
	case out.SecretBinary != nil:
		value = string(out.SecretBinary)
	default:
		return provider.SecretValue{}, provider.MalformedError{
			Provider: b.name, Name: name, Reason: "secret has neither string nor binary value",
		}
	}

	sv := provider.SecretValue{
		Value:     value,
		Provider:  b.name,
		FetchedAt: time.Now(),
		Metadata:  map[string]string{"region": b.region, "secret_id": secretID},
	}
	if out.VersionId != nil {
		sv.Version = *out.VersionId
	}
	return sv, nil
}

func (b *SecretsManagerBackend) List(ctx context.Context) ([]provider.Name, error) {
	var names []provider.Name
	var nextToken *string
	for {
		out, err := b.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{NextToken: nextToken})
		if err != nil {
			return nil, b.classify(err, provider.Name{})
		}
		for _, entry := range out.SecretList {
			if entry.Name == nil {
				continue
			}
			id := *entry.Name
			if b.prefix != "" {
				trimmed := strings.TrimPrefix(id, strings.TrimSuffix(b.prefix, "/")+"/")
				if trimmed == id {
					continue
				}
				id = trimmed
			}
			n, err := provider.ParseName(id)
			if err != nil {
				continue
			}
			names = append(names, n)
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return names, nil
}

// HealthCheck lists one secret to verify credentials and connectivity.
func (b *SecretsManagerBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)})
	if err != nil {
		return b.classify(err, provider.Name{})
	}
	return nil
}

func (b *SecretsManagerBackend) classify(err error, name provider.Name) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return provider.NotFoundError{Provider: b.name, Name: name}
	}
	if isAWSAuthError(err) {
		return provider.UnauthorizedError{Provider: b.name, Message: err.Error()}
	}
	return provider.UnavailableError{Provider: b.name, Err: err}
}

// isAWSAuthError matches smithy error codes shared by the AWS services, plus
// the string forms the SDK emits for credential-chain failures.
func isAWSAuthError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation",
			"UnrecognizedClientException", "ExpiredTokenException", "InvalidClientTokenId":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "AccessDenied") ||
		strings.Contains(msg, "ExpiredToken") ||
		strings.Contains(msg, "no EC2 IMDS role found")
}
