package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/fulfillment"
	"github.com/ecomjrm/fulfillment-sync/internal/tracking"
)

func actorID(r *http.Request) string {
	if a, ok := ActorFrom(r.Context()); ok {
		return a.Username
	}
	return audit.SystemActor
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dest)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type saveCredentialsRequest struct {
	APIKey   string `json:"apiKey"`
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	var req saveCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.deps.Credentials.Save(r.Context(), req.APIKey, req.Endpoint, actorID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Courier credentials saved",
	})
}

func (s *Server) handleClearCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Credentials.Clear(r.Context(), actorID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Courier credentials cleared",
	})
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Credentials.Status(r.Context()))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Balance.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type fulfillRequest struct {
	ServiceID         string `json:"serviceId"`
	PickupDate        string `json:"pickupDate"`
	OverriddenByAdmin bool   `json:"overriddenByAdmin"`
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "Missing order ID")
		return
	}

	var req fulfillRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.deps.Fulfillment.Fulfill(r.Context(), fulfillment.FulfillRequest{
		OrderID:           orderID,
		CourierServiceID:  req.ServiceID,
		PickupDate:        req.PickupDate,
		OverriddenByAdmin: req.OverriddenByAdmin,
		ActorID:           actorID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleOrderTracking(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "Missing order ID")
		return
	}

	view, err := s.deps.Fulfillment.OrderTracking(r.Context(), orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// refreshRequest selects shipments by order or by shipment id. An empty
// body refreshes every shipment due for an update.
type refreshRequest struct {
	OrderIDs         []string `json:"orderIds"`
	TrackingCacheIDs []string `json:"trackingCacheIds"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.OrderIDs) > 0 && len(req.TrackingCacheIDs) > 0 {
		s.writeError(w, r, apperr.Validation("use either orderIds or trackingCacheIds"))
		return
	}

	summary, err := s.deps.Tracking.Refresh(r.Context(), tracking.Selection{
		ShipmentIDs: req.TrackingCacheIDs,
		OrderIDs:    req.OrderIDs,
	}, actorID(r))
	if summary != nil {
		if err != nil {
			s.logger.Warn("tracking refresh finished with an error", zap.Error(err))
		}
		respondJSON(w, http.StatusOK, summary)
		return
	}
	s.writeError(w, r, err)
}

type enqueueJobsRequest struct {
	TrackingCacheIDs []string   `json:"trackingCacheIds" validate:"required,min=1,dive,required"`
	JobType          string     `json:"jobType"`
	Priority         int        `json:"priority" validate:"gte=0,lte=100"`
	ScheduledFor     *time.Time `json:"scheduledFor"`
}

func (s *Server) handleEnqueueJobs(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	n, err := s.deps.Jobs.Enqueue(r.Context(), tracking.EnqueueRequest{
		ShipmentIDs:  req.TrackingCacheIDs,
		JobType:      req.JobType,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		ActorID:      actorID(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]int{"enqueued": n})
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	page := 1
	limit := 20

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		var err error
		page, err = strconv.Atoi(pageStr)
		if err != nil || page <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid value for 'page' parameter")
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid value for 'limit' parameter")
			return
		}
	}

	result, err := s.deps.AuditLog.List(r.Context(), page, limit, r.URL.Query().Get("action"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCourierWebhook(w http.ResponseWriter, r *http.Request) {
	var hook tracking.CourierWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(hook); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Tracking.ApplyWebhook(r.Context(), hook)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type paymentWebhook struct {
	OrderNumber string `json:"orderNumber" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=PAID FAILED"`
	Reference   string `json:"reference"`
}

// handlePaymentWebhook marks the order paid. Failed payments are
// acknowledged and change nothing.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var hook paymentWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(hook); err != nil {
		s.writeError(w, r, err)
		return
	}

	if hook.Status != "PAID" {
		respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "updated": false})
		return
	}

	updated, err := s.deps.Fulfillment.MarkPaid(r.Context(), hook.OrderNumber, hook.Reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "updated": updated})
}
