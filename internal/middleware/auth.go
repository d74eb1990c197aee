// Package middleware provides HTTP middlewares for session authorization
// and request logging.
package middleware

import (
	"fmt"
	"net/http"

	"github.com/kdbex/kdbexd/internal/models"
)

// Authorizer checks a presented session token. Satisfied by *session.Store.
type Authorizer interface {
	Authorize(token string) bool
}

// publicPaths are reachable without a session: setup and login establish
// one, hello is the liveness probe.
var publicPaths = map[string]bool{
	"/setup": true,
	"/login": true,
	"/hello": true,
}

// TokenAuth enforces that every non-public request carries an Authorization
// header exactly matching the current session token. Failures are a fixed
// 401 outcome; no session state is mutated on a bad token.
func TokenAuth(auth Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get("Authorization")
			if token == "" {
				http.Error(w, fmt.Sprintf("%v: no token provided", models.ErrAuthorization), http.StatusUnauthorized)
				return
			}
			if !auth.Authorize(token) {
				http.Error(w, fmt.Sprintf("%v: bad token", models.ErrAuthorization), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
