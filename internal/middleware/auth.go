// Package middleware содержит HTTP middleware расчётного сервиса.
package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"net/http"
	"strings"
)

type contextKey string

const adminTokenHeader = "X-Admin-Token"

// AdminAuth пропускает только запросы с административным токеном
// в заголовке Authorization: Bearer <token> или X-Admin-Token.
type AdminAuth struct {
	key      []byte
	expected []byte
	enabled  bool
}

// NewAdminAuth создаёт AdminAuth. С пустым токеном все запросы отклоняются.
func NewAdminAuth(token string) *AdminAuth {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		key = []byte("admin-token-mac-key")
	}
	a := &AdminAuth{key: key, enabled: token != ""}
	a.expected = a.sign(token)
	return a
}

// Middleware проверяет административный токен запроса.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if !a.enabled || token == "" || !hmac.Equal(a.sign(token), a.expected) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sign возвращает MAC токена фиксированной длины.
func (a *AdminAuth) sign(token string) []byte {
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(adminTokenHeader))
}
