// Package server assembles the chi router and runs the HTTP server.
package server

import (
	"fmt"
	"net/http"
	"time"

	"singles-table-backend/pkg/booking"
	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"
	"singles-table-backend/pkg/handlers"
	customMiddleware "singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatsProvider 暴露运行时统计（通知调度器等）
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Deps 路由依赖
type Deps struct {
	Config  *config.Config
	DB      database.DatabaseInterface
	Engine  *booking.Engine
	JWT     *utils.JWTService
	Limiter *customMiddleware.LimiterStore
	// Notifications is optional; its stats are served under /debug in development.
	Notifications StatsProvider
}

// NewRouter 创建路由
func NewRouter(deps Deps) http.Handler {
	router := chi.NewRouter()

	// 设置中间件
	setupMiddleware(router, deps.Config)

	// 设置路由
	setupRoutes(router, deps)

	return router
}

// setupMiddleware 设置中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件
	router.Use(middleware.Timeout(25 * time.Second))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 开发环境的调试中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置路由
func setupRoutes(router *chi.Mux, deps Deps) {
	cfg := deps.Config
	authHandler := handlers.NewAuthHandler(cfg, deps.DB, deps.JWT)
	usersHandler := handlers.NewUsersHandler(deps.DB)
	bookingsHandler := handlers.NewBookingsHandler(deps.Engine)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = customMiddleware.NewLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// 健康检查
	router.Get("/", authHandler.HealthCheck)

	if cfg.IsDevelopment() {
		// 共享连接状态（serverless 入口使用）
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
		if deps.Notifications != nil {
			router.Get("/debug/notifications", func(w http.ResponseWriter, r *http.Request) {
				utils.WriteSuccessResponse(w, deps.Notifications.GetStats())
			})
		}
	}

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.ContentTypeJSON)
		r.Use(customMiddleware.MaxBodySize(1 << 20))

		// 认证路由（无需认证）
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(deps.JWT))

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", usersHandler.GetMe)
				r.Patch("/me", usersHandler.UpdateMe)
			})

			r.Get("/tables", bookingsHandler.ListTables)

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/me", bookingsHandler.MyBookings)

				// 写操作按参与者限流
				r.Group(func(r chi.Router) {
					r.Use(customMiddleware.RateLimit(limiter))
					r.Post("/", bookingsHandler.Reserve)
					r.Post("/cancel", bookingsHandler.Cancel)
				})
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
