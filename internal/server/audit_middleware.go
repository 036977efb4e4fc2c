package server

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
)

const maxAuditBody = 4 << 10

// Routes whose request body must never reach the audit trail.
var redactedRoutes = map[string]bool{
	"saveCredentials": true,
}

// auditLogMiddleware queues an HTTP_REQUEST audit entry for every mutating
// admin request. Reads are not recorded.
func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		started := time.Now()
		name, template := routeInfo(r)
		client := audit.ClientFrom(r.Context())
		entry := AuditLogEntry{
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
			Timestamp: started.UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Route:     template,
			Handler:   name,
			OrderID:   mux.Vars(r)["id"],
		}

		if actor, ok := ActorFrom(r.Context()); ok {
			entry.UserID = actor.Username
		}

		redacted := redactedRoutes[name]
		if r.Body != nil {
			requestBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			if redacted {
				entry.Request = "[redacted]"
			} else {
				entry.Request = truncate(requestBody)
			}
		}

		wrw := newResponseWriterWrapper(w, true)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.GetStatusCode()
		entry.Response = truncate(wrw.GetBody())
		entry.DurationMs = time.Since(started).Milliseconds()

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}

// clientMiddleware stores the caller's address and user agent for the
// audit entries recorded while serving the request.
func clientMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithClient(r.Context(), audit.Client{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first X-Forwarded-For hop over the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return audit.UnknownClient
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrw := newResponseWriterWrapper(w, false)
		next.ServeHTTP(wrw, r)

		_, template := routeInfo(r)
		metrics.HTTPRequestsTotal.WithLabelValues(template, strconv.Itoa(wrw.GetStatusCode())).Inc()
	})
}

// routeInfo returns the matched route's name and path template.
func routeInfo(r *http.Request) (string, string) {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unknown", r.URL.Path
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		template = r.URL.Path
	}
	name := route.GetName()
	if name == "" {
		name = "unknown"
	}
	return name, template
}

func truncate(b []byte) string {
	if len(b) > maxAuditBody {
		return string(b[:maxAuditBody]) + "..."
	}
	return string(b)
}
