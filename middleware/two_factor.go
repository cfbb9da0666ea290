package middleware

import "net/http"

// RequireTwoFactor allows the request only when the identity attached by Guard
// carries a verified second factor. Accounts without an active second factor
// are refused too, since their tokens can never be verified.
func RequireTwoFactor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !identity.TwoFactorVerified {
			writeError(w, http.StatusForbidden, "second factor required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
