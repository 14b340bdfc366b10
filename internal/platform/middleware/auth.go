package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth protege a API com o token estático do serviço. Aceita
// Bearer, o header apikey ou ?token= na query (o cliente websocket de
// navegador não consegue mandar header no handshake).
func TokenAuth(expected string) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("apikey"); key != "" {
		return key
	}
	return r.URL.Query().Get("token")
}
