package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig admits local dashboards only. The diagnostics API is
// read-only, so only GET and preflight requests are allowed.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"http://localhost", "http://127.0.0.1"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Accept", "Cache-Control", "Origin"},
		MaxAge:       time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
// Configured origins also match any port on the same host.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: cfg.AllowHeaders,
		AllowOriginFunc: func(origin string) bool {
			return matchesOrigin(cfg.AllowOrigins, origin)
		},
		MaxAge: cfg.MaxAge,
	})
}

func matchesOrigin(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || origin == a {
			return true
		}
		if len(origin) > len(a) && origin[:len(a)] == a && origin[len(a)] == ':' {
			return true
		}
	}
	return false
}
