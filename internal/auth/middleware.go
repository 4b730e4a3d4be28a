package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/medscan/internal/common"
)

// CookieName is the cookie that carries the identity token for browser clients.
const CookieName = "medscan_token"

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware requires a valid token, taken from the Authorization bearer header
// or the identity cookie, and stores the caller's email in the request context.
func Middleware(iss *Issuer, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := tokenFromRequest(r)
			if tok == "" {
				onError(w, r, common.NewAppError("UNAUTHORIZED", "missing identity token", common.ErrUnauthorized))
				return
			}
			email, err := iss.Parse(tok)
			if err != nil {
				onError(w, r, common.NewAppError("UNAUTHORIZED", "invalid or expired identity token", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithUserEmail(r.Context(), email)))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetCookie stores token in the identity cookie.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		Expires:  time.Now().Add(ttl),
	})
}

// ClearCookie expires the identity cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   -1,
	})
}
