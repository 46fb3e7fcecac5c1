package middleware

import (
	"crypto/subtle"
	"net/http"
)

const HeaderAdminToken = "X-Admin-Token"

// NewAdminAuthMiddleware exige X-Admin-Token igual ao token configurado.
// Token vazio bloqueia tudo com 403: a administração fica desligada.
func NewAdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin api disabled"})
				return
			}
			given := r.Header.Get(HeaderAdminToken)
			if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
