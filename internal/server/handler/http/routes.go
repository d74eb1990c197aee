package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/middleware"
)

// NewRouter constructs the HTTP handler serving the vault API.
//
// Routes:
//
//	GET  /hello                   → authHandler.Hello (public)
//	POST /setup                   → authHandler.Setup (public)
//	POST /login                   → authHandler.Login (public)
//	GET  /entries/name/{name}     → entriesHandler.ByName
//	GET  /entries/url/{url}       → entriesHandler.ByURL
//	GET  /entries/id/{id}         → entriesHandler.ByID
//	POST /entries/create          → entriesHandler.Create
//	POST /entries/update          → entriesHandler.Update
//
// Everything under /entries requires an Authorization header equal to the
// current session token.
func NewRouter(
	authHandler *AuthHandler,
	entriesHandler *EntriesHandler,
	auth middleware.Authorizer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow requests with Content-Type: application/json (bodyless
	// requests pass untouched).
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))
	// Enforce session-token authentication
	r.Use(middleware.TokenAuth(auth))

	r.Get("/hello", authHandler.Hello)
	r.Post("/setup", authHandler.Setup)
	r.Post("/login", authHandler.Login)

	r.Route("/entries", func(r chi.Router) {
		r.Get("/name/{name}", entriesHandler.ByName)
		r.Get("/url/{url}", entriesHandler.ByURL)
		r.Get("/id/{id}", entriesHandler.ByID)
		r.Post("/create", entriesHandler.Create)
		r.Post("/update", entriesHandler.Update)
	})

	return r
}
