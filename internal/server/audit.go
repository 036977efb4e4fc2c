package server

import (
	"time"
)

// AuditLogEntry describes one mutating admin request.
type AuditLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Handler    string    `json:"handler"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Route      string    `json:"route"`
	StatusCode int       `json:"status_code"`
	UserID     string    `json:"user_id,omitempty"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	OrderID    string    `json:"order_id,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Request    string    `json:"request,omitempty"`
	Response   string    `json:"response,omitempty"`
}
