//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=mock_server
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/balance"
	"github.com/ecomjrm/fulfillment-sync/internal/config"
	"github.com/ecomjrm/fulfillment-sync/internal/credentials"
	"github.com/ecomjrm/fulfillment-sync/internal/fulfillment"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/tracking"
	"github.com/ecomjrm/fulfillment-sync/internal/validation"
)

type Fulfiller interface {
	Fulfill(ctx context.Context, req fulfillment.FulfillRequest) (*fulfillment.FulfillResult, error)
	OrderTracking(ctx context.Context, orderID string) (*fulfillment.TrackingView, error)
	MarkPaid(ctx context.Context, orderNumber, reference string) (bool, error)
}

type CredentialStore interface {
	Save(ctx context.Context, apiKey, endpoint, actorID string) error
	Clear(ctx context.Context, actorID string) error
	Status(ctx context.Context) credentials.Status
}

type BalanceSource interface {
	Get(ctx context.Context) (*balance.View, error)
}

type TrackingService interface {
	Refresh(ctx context.Context, sel tracking.Selection, actorID string) (*tracking.Summary, error)
	ApplyWebhook(ctx context.Context, hook tracking.CourierWebhook) (*tracking.WebhookResult, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, req tracking.EnqueueRequest) (int, error)
}

type AuditLog interface {
	List(ctx context.Context, page, limit int, action string) (*audit.Page, error)
}

type AuditSink interface {
	CreateBatch(ctx context.Context, entries []*repository.AuditLog) error
}

type UserRepo interface {
	ValidateUser(ctx context.Context, username, password string) (*repository.User, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP API. Health lists the backends
// /healthz pings, by name.
type Deps struct {
	Fulfillment Fulfiller
	Credentials CredentialStore
	Balance     BalanceSource
	Tracking    TrackingService
	Jobs        JobQueue
	AuditLog    AuditLog
	AuditSink   AuditSink
	Users       UserRepo
	Health      map[string]Pinger
}

type Server struct {
	deps         Deps
	auth         *Authenticator
	webhooks     config.WebhookConfig
	validate     *validation.Validator
	server       *http.Server
	logger       *zap.Logger
	AuditManager *AuditManager
}

func New(deps Deps, authCfg config.AuthConfig, webhooks config.WebhookConfig, logger *zap.Logger) *Server {
	return &Server{
		deps:         deps,
		auth:         NewAuthenticator(deps.Users, authCfg.JWTSecret, authCfg.TokenTTL),
		webhooks:     webhooks,
		validate:     validation.New(),
		logger:       logger,
		AuditManager: NewAuditManager(deps.AuditSink, 2, 20, 500*time.Millisecond, logger),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.AuditManager.Start(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown failed", zap.Error(err))
		}
	}()

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.AuditManager.Shutdown(ctx)
	s.logger.Info("http server shutdown completed")
	return nil
}

// Routes builds the router. Admin routes need an authenticated staff
// account; webhooks need their shared secret.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware, clientMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet).Name("health")
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("metrics")
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost).Name("login")

	hooks := r.PathPrefix("/webhooks").Subrouter()
	hooks.Handle("/courier", s.requireSecret(s.webhooks.CourierSecret, http.HandlerFunc(s.handleCourierWebhook))).
		Methods(http.MethodPost).Name("courierWebhook")
	hooks.Handle("/payment", s.requireSecret(s.webhooks.PaymentSecret, http.HandlerFunc(s.handlePaymentWebhook))).
		Methods(http.MethodPost).Name("paymentWebhook")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.authMiddleware, s.auditLogMiddleware)

	admin.HandleFunc("/shipping/credentials", s.handleSaveCredentials).Methods(http.MethodPost).Name("saveCredentials")
	admin.HandleFunc("/shipping/credentials", s.handleClearCredentials).Methods(http.MethodDelete).Name("clearCredentials")
	admin.HandleFunc("/shipping/credentials/status", s.handleCredentialStatus).Methods(http.MethodGet).Name("credentialStatus")
	admin.HandleFunc("/shipping/balance", s.handleBalance).Methods(http.MethodGet).Name("balance")

	admin.HandleFunc("/orders/{id}/fulfill", s.handleFulfill).Methods(http.MethodPost).Name("fulfillOrder")
	admin.HandleFunc("/orders/{id}/tracking", s.handleOrderTracking).Methods(http.MethodGet).Name("orderTracking")

	admin.HandleFunc("/tracking/refresh", s.handleRefresh).Methods(http.MethodPost).Name("refreshTracking")
	admin.HandleFunc("/tracking/jobs", s.handleEnqueueJobs).Methods(http.MethodPost).Name("enqueueTrackingJobs")

	admin.HandleFunc("/audit-logs", s.handleAuditLogs).Methods(http.MethodGet).Name("auditLogs")

	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps err to its status code. Internal and persistence
// failures are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error()}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Fields = appErr.Fields
		if appErr.Kind == apperr.KindPrecondition {
			body.Code = preconditionCode(appErr.Err)
		}
	}

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body = errorBody{Error: "internal error"}
	}
	respondJSON(w, status, body)
}

func preconditionCode(err error) string {
	switch {
	case errors.Is(err, fulfillment.ErrAlreadyFulfilled):
		return "ALREADY_FULFILLED"
	case errors.Is(err, fulfillment.ErrPaymentIncomplete):
		return "PAYMENT_INCOMPLETE"
	case errors.Is(err, fulfillment.ErrNoCourierSelected):
		return "NO_COURIER_SELECTED"
	case errors.Is(err, fulfillment.ErrOrderNotFulfillable):
		return "ORDER_NOT_FULFILLABLE"
	case errors.Is(err, fulfillment.ErrOrderClosed):
		return "ORDER_CLOSED"
	default:
		return ""
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Health))
	status := http.StatusOK
	for name, p := range s.deps.Health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}
