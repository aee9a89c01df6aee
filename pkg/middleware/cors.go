package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"singles-table-backend/pkg/config"
)

// CORS 创建CORS中间件
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Requested-With",
		},
		ExposedHeaders: []string{
			"Retry-After",
			"X-Request-Id",
		},
		MaxAge: 300, // 5分钟
	}

	// 当AllowedOrigins为*时，不能设置AllowCredentials为true
	if len(cfg.AllowedOrigins) == 0 || cfg.IsDevelopment() {
		corsOptions.AllowedOrigins = []string{"*"}
	}
	if !containsWildcard(corsOptions.AllowedOrigins) {
		corsOptions.AllowCredentials = true
	}

	return cors.Handler(corsOptions)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
