package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"singles-table-backend/pkg/booking"
	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"
	customMiddleware "singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/notify"
	"singles-table-backend/pkg/server"
	"singles-table-backend/pkg/utils"
)

// app 在同一实例的多次调用之间复用；引擎的表锁必须是进程级的
type app struct {
	db        database.DatabaseInterface
	handler   http.Handler
	checkedAt time.Time
}

var (
	appMu  sync.RWMutex
	cached *app

	// appRecheck 内直接复用缓存，不重新加载配置或检查连接
	appRecheck = time.Minute
	appNow     = time.Now
)

// Handler 是Vercel函数的入口点
// 所有API端点集中在 server.NewRouter 构建的一个Chi路由器中
func Handler(w http.ResponseWriter, r *http.Request) {
	h, err := getHandler(r.Context())
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}
	h.ServeHTTP(w, r)
}

func getHandler(ctx context.Context) (http.Handler, error) {
	appMu.RLock()
	if c := cached; c != nil && appNow().Sub(c.checkedAt) < appRecheck {
		appMu.RUnlock()
		return c.handler, nil
	}
	appMu.RUnlock()

	appMu.Lock()
	defer appMu.Unlock()
	if c := cached; c != nil && appNow().Sub(c.checkedAt) < appRecheck {
		return c.handler, nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 获取共享数据库连接（连接由连接池管理，无需手动关闭）
	db, err := database.GetDatabase(ctx, database.DatabaseConfig{
		Driver:      cfg.DBDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.db == db {
		cached.checkedAt = appNow()
		return cached.handler, nil
	}

	if _, err := database.SeedTables(ctx, db, cfg.SeedTables); err != nil {
		return nil, err
	}

	// 函数实例没有常驻后台协程，通知同步打印
	engine := booking.NewEngine(db, notify.LogNotifier{}, booking.Options{
		LockTimeout: cfg.LockTimeout,
		MaxAttempts: cfg.MaxAttempts,
	})
	cached = &app{
		db:        db,
		checkedAt: appNow(),
		handler: server.NewRouter(server.Deps{
			Config:  cfg,
			DB:      db,
			Engine:  engine,
			JWT:     utils.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
			Limiter: customMiddleware.NewLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst),
		}),
	}
	return cached.handler, nil
}
