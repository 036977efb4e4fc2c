package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
)

const maxErrorBody = 512

// HTTPClient calls the courier REST API with a bearer API key.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(creds Credentials, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(creds.Endpoint, "/"),
		apiKey:  creds.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *HTTPClient) GetBalance(ctx context.Context) Result[Balance] {
	var out Balance
	if err := c.do(ctx, "get_balance", http.MethodPost, "/balance", struct{}{}, &out); err != nil {
		return Fail[Balance](err)
	}
	if out.Currency == "" {
		out.Currency = "MYR"
	}
	return OK(out)
}

func (c *HTTPClient) TrackShipment(ctx context.Context, trackingNumber string) Result[TrackingInfo] {
	if strings.TrimSpace(trackingNumber) == "" {
		return Fail[TrackingInfo](fmt.Errorf("tracking number is empty"))
	}
	var out TrackingInfo
	path := "/tracking/" + url.PathEscape(trackingNumber)
	if err := c.do(ctx, "track_shipment", http.MethodGet, path, nil, &out); err != nil {
		return Fail[TrackingInfo](err)
	}
	if out.TrackingNumber == "" {
		out.TrackingNumber = trackingNumber
	}
	out.Status = orderstate.NormalizeCourierStatus(out.RawStatus)
	return OK(out)
}

func (c *HTTPClient) CreateShipment(ctx context.Context, req ShipmentRequest) Result[ShipmentResult] {
	var out ShipmentResult
	if err := c.do(ctx, "create_shipment", http.MethodPost, "/shipments", req, &out); err != nil {
		return Fail[ShipmentResult](err)
	}
	if out.TrackingNumber == "" {
		return Fail[ShipmentResult](fmt.Errorf("courier returned a shipment without tracking number"))
	}
	return OK(out)
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.CourierRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CourierErrorsTotal.WithLabelValues(operation, strconv.FormatBool(IsRateLimited(err))).Inc()
		}
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("courier %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read courier %s response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
		c.logger.Warn("courier api returned an error",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed courier %s response: %w", operation, err)
	}
	return nil
}

func errorMessage(status int, raw []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		return http.StatusText(status)
	}
	return msg
}
