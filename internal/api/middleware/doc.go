// Package middleware provides the diagnostics API middleware stack.
//
// Middleware stack includes:
//   - CORS: local origins only, read-only methods
//   - RateLimit: per-IP token buckets with idle eviction
//   - GlobalRateLimit: one bucket shared by every client
//   - RequestLogger: zap request logging
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
