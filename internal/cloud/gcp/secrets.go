package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretFetcher resolves a Secret Manager resource name to its payload.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// SecretManagerClient implements SecretFetcher over the real Secret
// Manager API. Bare secret names are resolved against the project
// named by TUNDRA_GCP_PROJECT (or the standard GCP project env vars).
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerClient creates a Secret Manager client. It requires
// a project id in the environment; there is no VM metadata fallback,
// since the pipeline runs on a developer machine, not a GCE instance.
func NewSecretManagerClient(ctx context.Context, opts ...option.ClientOption) (*SecretManagerClient, error) {
	projectID, ok := projectFromEnv()
	if !ok {
		return nil, fmt.Errorf("no GCP project configured (set TUNDRA_GCP_PROJECT)")
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	return &SecretManagerClient{client: client, projectID: projectID}, nil
}

// projectFromEnv picks the GCP project id, preferring the pipeline's
// own variable over the generic GCP ones.
func projectFromEnv() (string, bool) {
	for _, key := range []string{"TUNDRA_GCP_PROJECT", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
	}
	return "", false
}

// FetchSecret retrieves one secret payload. secretPath may be a full
// resource name with or without a version, or a bare secret name.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName(c.projectID, secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", secretPath, err)
	}
	return string(result.Payload.Data), nil
}

// Close releases the underlying API client.
func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// resourceName expands secretPath into a versioned Secret Manager
// resource name, defaulting to the latest version and to projectID for
// bare names.
func resourceName(projectID, secretPath string) string {
	switch {
	case strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/"):
		return secretPath
	case strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/"):
		return secretPath + "/versions/latest"
	default:
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretPath)
	}
}

// IsSecretPath reports whether an env-var value names a Secret Manager
// resource rather than carrying the key itself.
func IsSecretPath(v string) bool {
	return strings.HasPrefix(v, "projects/") && strings.Contains(v, "/secrets/")
}

// KeyResolver resolves a provider profile's API key from its named
// environment variable. A value of the form projects/<p>/secrets/<name>
// is treated as a Secret Manager resource and fetched; anything else is
// the key itself. Fetched secrets are cached for the resolver's
// lifetime, since the failover loop re-resolves keys on every attempt.
type KeyResolver struct {
	mu         sync.Mutex
	fetcher    SecretFetcher
	newFetcher func(ctx context.Context) (SecretFetcher, error)
	cache      map[string]string
	warn       func(msg string)
}

// NewKeyResolver builds a resolver whose Secret Manager client is
// created lazily on the first secret-path hit, so runs without GCP
// credentials never touch the API. warn receives diagnostics (may be
// nil).
func NewKeyResolver(warn func(msg string)) *KeyResolver {
	return &KeyResolver{
		newFetcher: func(ctx context.Context) (SecretFetcher, error) {
			return NewSecretManagerClient(ctx)
		},
		cache: make(map[string]string),
		warn:  warn,
	}
}

func (r *KeyResolver) warnf(format string, args ...any) {
	if r.warn != nil {
		r.warn(fmt.Sprintf(format, args...))
	}
}

// Resolve looks up envVar and returns the API key it yields. The
// boolean follows the os.LookupEnv convention: false means no usable
// key, which the profile registry treats as "profile not keyed".
func (r *KeyResolver) Resolve(envVar string) (string, bool) {
	val, ok := os.LookupEnv(envVar)
	if !ok || !IsSecretPath(val) {
		return val, ok
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if secret, hit := r.cache[val]; hit {
		return secret, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if r.fetcher == nil {
		fetcher, err := r.newFetcher(ctx)
		if err != nil {
			r.warnf("secret manager unavailable for %s: %v", envVar, err)
			return "", false
		}
		r.fetcher = fetcher
	}
	secret, err := r.fetcher.FetchSecret(ctx, val)
	if err != nil {
		r.warnf("fetching secret %s: %v", val, err)
		return "", false
	}
	r.cache[val] = secret
	return secret, true
}

// Close releases the resolver's Secret Manager client, if one was ever
// created.
func (r *KeyResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetcher != nil {
		return r.fetcher.Close()
	}
	return nil
}
