package router

import (
	"net/http"

	"go-token-auth/handler"
	"go-token-auth/logger"
)

func NewRouter(authHandler *handler.AuthHandler, userHandler *handler.UserHandler, validator handler.AccessTokenValidator) http.Handler {
	mux := http.NewServeMux()
	authenticated := handler.AuthMiddleware(validator)

	mux.HandleFunc("GET /health", handler.HealthCheck)

	mux.Handle("POST /auth/register", handler.ErrorHandlingMiddleware(userHandler.Register))
	mux.Handle("POST /auth/login", handler.ErrorHandlingMiddleware(authHandler.Login))
	mux.Handle("POST /auth/refresh", handler.ErrorHandlingMiddleware(authHandler.Refresh))
	mux.Handle("POST /auth/logout", handler.ErrorHandlingMiddleware(authHandler.Logout))
	mux.Handle("POST /auth/introspect", handler.ErrorHandlingMiddleware(authHandler.Introspect))

	mux.Handle("GET /auth/me", authenticated(handler.ErrorHandlingMiddleware(authHandler.Me)))
	mux.Handle("GET /auth/tokens/stats", authenticated(handler.ErrorHandlingMiddleware(authHandler.TokenStats)))
	mux.Handle("POST /auth/tokens/revoke-all", authenticated(handler.ErrorHandlingMiddleware(authHandler.RevokeAll)))
	mux.Handle("POST /auth/tokens/revoke-device", authenticated(handler.ErrorHandlingMiddleware(authHandler.RevokeDevice)))

	mux.Handle("POST /admin/tokens/cleanup",
		authenticated(handler.AdminMiddleware(handler.ErrorHandlingMiddleware(authHandler.Cleanup))))

	return handler.RequestLogger(logger.Log)(mux)
}
