package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/credstore/pkg/provider"
)

// SSMAPI is the slice of the SSM client the backend uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMBackend reads SecureString parameters from AWS Systems Manager
// Parameter Store. db/password maps to the parameter path
// "<path_prefix>/db/password".
type SSMBackend struct {
	name       string
	client     SSMAPI
	region     string
	pathPrefix string
}

// SSMOption configures the backend.
type SSMOption func(*SSMBackend)

// WithSSMClient injects a custom client, used by tests.
func WithSSMClient(client SSMAPI) SSMOption {
	return func(b *SSMBackend) { b.client = client }
}

// NewSSMBackend creates a Parameter Store backend. Recognized config keys:
// region, path_prefix.
func NewSSMBackend(name string, cfg map[string]interface{}, opts ...SSMOption) (*SSMBackend, error) {
	region := "us-east-1"
	if r, ok := cfg["region"].(string); ok && r != "" {
		region = r
	}
	pathPrefix := "/"
	if p, ok := cfg["path_prefix"].(string); ok && p != "" {
		pathPrefix = p
	}
	if !strings.HasPrefix(pathPrefix, "/") {
		pathPrefix = "/" + pathPrefix
	}

	b := &SSMBackend{name: name, region: region, pathPrefix: pathPrefix}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		b.client = ssm.NewFromConfig(awsCfg)
	}
	return b, nil
}

// NewSSMBackendBuilder adapts NewSSMBackend to the catalog's builder
// signature.
func NewSSMBackendBuilder(name string, cfg map[string]interface{}) (provider.Backend, error) {
	return NewSSMBackend(name, cfg)
}

func (b *SSMBackend) Name() string { return b.name }

func (b *SSMBackend) parameterPath(name provider.Name) string {
	return strings.TrimSuffix(b.pathPrefix, "/") + "/" + name.String()
}

func (b *SSMBackend) Fetch(ctx context.Context, name provider.Name) (provider.SecretValue, error) {
	path := b.parameterPath(name)
	out, err := b.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return provider.SecretValue{}, b.classify(err, name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return provider.SecretValue{}, provider.MalformedError{
			Provider: b.name, Name: name, Reason: "parameter has no value",
		}
	}

	sv := provider.SecretValue{
		Value:     *out.Parameter.Value,
		Provider:  b.name,
		Version:   fmt.Sprintf("%d", out.Parameter.Version),
		FetchedAt: time.Now(),
		Metadata:  map[string]string{"region": b.region, "parameter": path},
	}
	return sv, nil
}

func (b *SSMBackend) List(ctx context.Context) ([]provider.Name, error) {
	var names []provider.Name
	var nextToken *string
	for {
		out, err := b.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:      aws.String(b.pathPrefix),
			Recursive: aws.Bool(true),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, b.classify(err, provider.Name{})
		}
		for _, p := range out.Parameters {
			if p.Name == nil {
				continue
			}
			rel := strings.TrimPrefix(*p.Name, strings.TrimSuffix(b.pathPrefix, "/")+"/")
			n, err := provider.ParseName(rel)
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

// HealthCheck lists under the configured path to verify connectivity.
func (b *SSMBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
		Path:       aws.String(b.pathPrefix),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return b.classify(err, provider.Name{})
	}
	return nil
}

func (b *SSMBackend) classify(err error, name provider.Name) error {
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return provider.NotFoundError{Provider: b.name, Name: name}
	}
	if isAWSAuthError(err) {
		return provider.UnauthorizedError{Provider: b.name, Message: err.Error()}
	}
	return provider.UnavailableError{Provider: b.name, Err: err}
}
