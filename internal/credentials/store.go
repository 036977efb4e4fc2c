package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
	"github.com/ecomjrm/fulfillment-sync/internal/validation"
)

//go:generate mockgen -source ./store.go -destination=./mocks/store.go -package=mock_credentials

// ClientRefresher drops any courier client built from old credentials.
type ClientRefresher interface {
	Refresh()
}

type BalanceInvalidator interface {
	InvalidateBalance(ctx context.Context) error
}

type AuditWriter interface {
	RecordTx(ctx context.Context, tx db.Tx, e audit.Entry) error
}

type SaveInput struct {
	APIKey   string `json:"apiKey" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,httpurl"`
}

type Status struct {
	HasCredentials   bool   `json:"hasCredentials"`
	Source           Source `json:"source"`
	UsingEnvFallback bool   `json:"usingEnvironmentFallback"`
	ProductionMode   bool   `json:"productionMode"`
	Endpoint         string `json:"endpoint,omitempty"`
}

type Store struct {
	db        db.DB
	repo      storage.CredentialRepository
	resolver  *Resolver
	cipher    *Cipher
	audit     AuditWriter
	refresher ClientRefresher
	balance   BalanceInvalidator
	validate  *validation.Validator
	logger    *zap.Logger
	timeNow   func() time.Time
}

func NewStore(
	database db.DB,
	repo storage.CredentialRepository,
	resolver *Resolver,
	cipher *Cipher,
	auditWriter AuditWriter,
	refresher ClientRefresher,
	balance BalanceInvalidator,
	validate *validation.Validator,
	logger *zap.Logger,
) *Store {
	return &Store{
		db:        database,
		repo:      repo,
		resolver:  resolver,
		cipher:    cipher,
		audit:     auditWriter,
		refresher: refresher,
		balance:   balance,
		validate:  validate,
		logger:    logger,
		timeNow:   time.Now,
	}
}

func (s *Store) Save(ctx context.Context, apiKey, endpoint, actorID string) error {
	in := SaveInput{APIKey: strings.TrimSpace(apiKey), Endpoint: strings.TrimSpace(endpoint)}
	if err := s.validate.Struct(in); err != nil {
		return err
	}

	sealed, err := s.cipher.Seal(in.APIKey)
	if err != nil {
		return apperr.Persistence("failed to encrypt courier api key", err)
	}

	now := s.timeNow().UTC()
	err = db.WithTx(ctx, s.db, func(tx db.Tx) error {
		cred := &repository.CourierCredential{
			APIKeyEncrypted: sealed,
			Endpoint:        in.Endpoint,
			UpdatedBy:       actorID,
			UpdatedAt:       now,
		}
		if err := s.repo.UpsertTx(ctx, tx, cred); err != nil {
			return err
		}
		return s.audit.RecordTx(ctx, tx, audit.Entry{
			Action:     audit.ActionCredentialsSaved,
			Resource:   audit.ResourceCredentials,
			ResourceID: "courier",
			ActorID:    actorID,
			Details: map[string]any{
				"apiKey":         maskKey(in.APIKey),
				"endpoint":       in.Endpoint,
				"productionMode": ProductionMode(in.Endpoint),
			},
		})
	})
	if err != nil {
		return apperr.Persistence("failed to save courier credentials", err)
	}

	metrics.CredentialChangesTotal.WithLabelValues("save").Inc()
	s.afterChange(ctx, "save")
	s.logger.Info("courier credentials saved",
		zap.String("actor", actorID),
		zap.String("endpoint", in.Endpoint))
	return nil
}

func (s *Store) Clear(ctx context.Context, actorID string) error {
	err := db.WithTx(ctx, s.db, func(tx db.Tx) error {
		existed, err := s.repo.DeleteTx(ctx, tx)
		if err != nil {
			return err
		}
		return s.audit.RecordTx(ctx, tx, audit.Entry{
			Action:     audit.ActionCredentialsCleared,
			Resource:   audit.ResourceCredentials,
			ResourceID: "courier",
			ActorID:    actorID,
			Details: map[string]any{
				"hadStoredCredentials": existed,
				"environmentFallback":  s.resolver.hasEnv(),
			},
		})
	})
	if err != nil {
		return apperr.Persistence("failed to clear courier credentials", err)
	}

	metrics.CredentialChangesTotal.WithLabelValues("clear").Inc()
	s.afterChange(ctx, "clear")
	s.logger.Info("courier credentials cleared", zap.String("actor", actorID))
	return nil
}

// afterChange drops the cached client and the cached balance. A cache
// failure is logged only: the credential change has already committed.
func (s *Store) afterChange(ctx context.Context, op string) {
	s.refresher.Refresh()
	if s.balance == nil {
		return
	}
	if err := s.balance.InvalidateBalance(ctx); err != nil {
		s.logger.Warn("failed to invalidate cached courier balance",
			zap.String("operation", op),
			zap.Error(err))
	}
}

// Status never fails. When the stored record cannot be read it reports
// what the environment alone would provide.
func (s *Store) Status(ctx context.Context) Status {
	creds, source, err := s.resolver.lookup(ctx)
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		s.logger.Error("failed to read courier credentials for status", zap.Error(err))
		if s.resolver.hasEnv() {
			creds, source = s.resolver.env, SourceEnvironment
		} else {
			creds, source = courier.Credentials{}, SourceNone
		}
	}

	st := Status{
		HasCredentials:   source != SourceNone,
		Source:           source,
		UsingEnvFallback: source == SourceEnvironment,
	}
	if st.HasCredentials {
		st.Endpoint = creds.Endpoint
		st.ProductionMode = ProductionMode(creds.Endpoint)
	}
	return st
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
