// Package auth protects administrative routes with API keys.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/middleware"
)

type contextKey string

const keyInfoKey contextKey = "api_key_info"

// Validator resolves a raw key. apikey.Store implements it.
type Validator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// RequireKey rejects requests that do not carry a valid key. Keys are read
// from "Authorization: Bearer <key>" or the X-API-Key header.
func RequireKey(validator Validator) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := validator.Validate(r.Context(), key)
			switch {
			case errors.Is(err, apikey.ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, apikey.ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			case err != nil:
				logger.Error("key validation failed",
					"error", err,
					"request_id", middleware.GetRequestID(r.Context()),
				)
				writeError(w, http.StatusInternalServerError, "authentication error")
				return
			}
			logger.Info("admin request",
				"key", info.Name,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", middleware.GetRequestID(r.Context()),
			)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyInfoKey, info)))
		})
	}
}

// KeyFromContext returns the key that authorised the request, if any.
func KeyFromContext(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(keyInfoKey).(*apikey.KeyInfo)
	return info
}

func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
