package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisync/cloudsync/internal/broker"
	"github.com/medisync/cloudsync/internal/credential"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clinicKey    contextKey = "clinic"
)

// Clinic-scoped endpoints authenticate with these headers; onboarding with
// the install secret.
const (
	HeaderClinicID  = "x-clinic-id"
	HeaderAPIKey    = "x-api-key"
	HeaderAppSecret = "x-app-secret"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request with method, path, status and duration.
func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", GetRequestID(r.Context())).
				Msg("request")
		})
	}
}

// InstallSecretMiddleware gates onboarding behind the deployment-wide
// install secret.
func InstallSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !credential.VerifyInstallSecret(r.Header.Get(HeaderAppSecret), secret) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClinicAuthMiddleware verifies per-clinic credentials and puts the clinic on
// the context. All failures collapse to a single 401 so the response never
// reveals which part of the credential was wrong.
func ClinicAuthMiddleware(svc *broker.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clinicID, err := uuid.Parse(r.Header.Get(HeaderClinicID))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}

			clinic, err := svc.Authenticate(r.Context(), clinicID, r.Header.Get(HeaderAPIKey))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}

			ctx := context.WithValue(r.Context(), clinicKey, clinic)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ClinicFromContext returns the authenticated clinic, if any.
func ClinicFromContext(ctx context.Context) (*broker.Clinic, bool) {
	c, ok := ctx.Value(clinicKey).(*broker.Clinic)
	return c, ok
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
