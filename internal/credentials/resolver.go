// Package credentials stores the courier API credentials and decides which
// credentials the courier client uses.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

type Source string

const (
	SourceDatabase    Source = "database"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

var ErrNoCredentials = fmt.Errorf("no courier credentials stored or configured: %w", courier.ErrNotConfigured)

// Resolver reads credentials: the stored record wins, environment
// variables are the fallback.
type Resolver struct {
	repo   storage.CredentialRepository
	cipher *Cipher
	env    courier.Credentials
	logger *zap.Logger
}

func NewResolver(repo storage.CredentialRepository, cipher *Cipher, env courier.Credentials, logger *zap.Logger) *Resolver {
	return &Resolver{repo: repo, cipher: cipher, env: env, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context) (courier.Credentials, error) {
	creds, _, err := r.lookup(ctx)
	return creds, err
}

// lookup reports the credentials in effect and where they came from. A
// stored record that cannot be read is an error, never a silent fallback.
func (r *Resolver) lookup(ctx context.Context) (courier.Credentials, Source, error) {
	stored, err := r.repo.Get(ctx)
	switch {
	case err == nil:
		apiKey, err := r.cipher.Open(stored.APIKeyEncrypted)
		if err != nil {
			return courier.Credentials{}, SourceDatabase, err
		}
		return courier.Credentials{APIKey: apiKey, Endpoint: stored.Endpoint}, SourceDatabase, nil
	case !errors.Is(err, repository.ErrObjectNotFound):
		return courier.Credentials{}, SourceNone, fmt.Errorf("failed to load stored credentials: %w", err)
	}

	if r.hasEnv() {
		return r.env, SourceEnvironment, nil
	}
	return courier.Credentials{}, SourceNone, ErrNoCredentials
}

func (r *Resolver) hasEnv() bool {
	return strings.TrimSpace(r.env.APIKey) != "" && strings.TrimSpace(r.env.Endpoint) != ""
}

// ProductionMode reports whether an endpoint points at the live API rather
// than a demo or sandbox host.
func ProductionMode(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return !strings.Contains(host, "demo") && !strings.Contains(host, "sandbox")
}
