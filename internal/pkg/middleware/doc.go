// Package middleware provides the HTTP middleware of the serve command.
//
// Available middleware:
//   - RequestID: tags each request with an X-Request-ID
//   - Recovery: turns handler panics into sanitized 500 responses
//   - Logging: logs method, path, status and duration of each request
//   - RateLimiter: per-client token bucket limiting
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.Chain(mux, middleware.Logging(log), rl.Middleware, middleware.Recovery(log), middleware.RequestID)
package middleware
