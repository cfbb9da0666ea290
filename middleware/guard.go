package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	authsystem "github.com/neecatt/UserAuthSystem"
)

// Validator is implemented by *authsystem.Engine.
type Validator interface {
	ValidateBearerToken(ctx context.Context, authorization string) (*authsystem.Identity, error)
}

// IdentityFromContext returns the identity Guard attached to the request.
func IdentityFromContext(ctx context.Context) (*authsystem.Identity, bool) {
	return authsystem.IdentityFromContext(ctx)
}

// Guard rejects requests without a valid bearer token. Backend failures are
// reported as 503 so clients retry instead of discarding their credentials.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			identity, err := v.ValidateBearerToken(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, authsystem.ErrBackendUnavailable) {
					writeError(w, http.StatusServiceUnavailable, "service unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := authsystem.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
