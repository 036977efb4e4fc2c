package courier

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Resolver supplies the credentials the next client is built with.
type Resolver interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// Factory builds a client for one set of credentials.
type Factory func(Credentials) Client

// Provider is the process-wide Client. It builds the real client lazily from
// the resolver and keeps it until Refresh is called.
type Provider struct {
	resolver Resolver
	factory  Factory
	logger   *zap.Logger

	mu     sync.Mutex
	client Client
}

func NewProvider(resolver Resolver, factory Factory, logger *zap.Logger) *Provider {
	return &Provider{resolver: resolver, factory: factory, logger: logger}
}

// Client returns the cached client, building it when needed. Missing
// credentials yield an error wrapping ErrNotConfigured.
func (p *Provider) Client(ctx context.Context) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	creds, err := p.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if creds.APIKey == "" || creds.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	p.client = p.factory(creds)
	p.logger.Info("courier client built", zap.String("endpoint", creds.Endpoint))
	return p.client, nil
}

// Refresh drops the cached client so the next call resolves credentials
// again. Calls already holding the old client finish with it.
func (p *Provider) Refresh() {
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
	p.logger.Info("courier client invalidated")
}

func (p *Provider) GetBalance(ctx context.Context) Result[Balance] {
	c, err := p.Client(ctx)
	if err != nil {
		return Fail[Balance](err)
	}
	return c.GetBalance(ctx)
}

func (p *Provider) TrackShipment(ctx context.Context, trackingNumber string) Result[TrackingInfo] {
	c, err := p.Client(ctx)
	if err != nil {
		return Fail[TrackingInfo](err)
	}
	return c.TrackShipment(ctx, trackingNumber)
}

func (p *Provider) CreateShipment(ctx context.Context, req ShipmentRequest) Result[ShipmentResult] {
	c, err := p.Client(ctx)
	if err != nil {
		return Fail[ShipmentResult](err)
	}
	return c.CreateShipment(ctx, req)
}
