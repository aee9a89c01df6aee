package database

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DatabasePool 进程级共享连接（serverless 调用之间复用）
type DatabasePool struct {
	instance DatabaseInterface
	config   DatabaseConfig
	mu       sync.RWMutex
	lastUsed time.Time
	created  time.Time
	reused   int
}

var (
	globalPool *DatabasePool
	poolMutex  sync.Mutex

	// poolMaxAge 之后重新建立 SQL 连接；内存库永不过期，否则数据会丢失
	poolMaxAge = 30 * time.Minute
	poolNow    = time.Now
)

// GetDatabase 获取共享数据库连接（单例模式）
func GetDatabase(ctx context.Context, config DatabaseConfig) (DatabaseInterface, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool != nil && !shouldRecreateConnection(ctx, globalPool, config) {
		globalPool.mu.Lock()
		globalPool.lastUsed = poolNow()
		globalPool.reused++
		globalPool.mu.Unlock()
		return globalPool.instance, nil
	}

	if globalPool != nil && globalPool.instance != nil {
		globalPool.instance.Close()
		globalPool = nil
	}

	fmt.Printf("🔄 Creating new database connection\n")
	instance, err := NewDatabase(config)
	if err != nil {
		return nil, err
	}
	now := poolNow()
	globalPool = &DatabasePool{
		instance: instance,
		config:   config,
		lastUsed: now,
		created:  now,
	}
	return instance, nil
}

// shouldRecreateConnection 判断是否需要重新创建连接
func shouldRecreateConnection(ctx context.Context, pool *DatabasePool, newConfig DatabaseConfig) bool {
	if pool == nil || pool.instance == nil {
		return true
	}

	if !configEquals(pool.config, newConfig) {
		fmt.Printf("🔄 Database configuration changed, recreating connection\n")
		return true
	}

	if _, inMemory := pool.instance.(*MemoryDatabase); inMemory {
		return false
	}

	pool.mu.RLock()
	expired := poolNow().Sub(pool.lastUsed) > poolMaxAge
	pool.mu.RUnlock()
	if expired {
		fmt.Printf("⏰ Database connection expired, recreating\n")
		return true
	}

	if err := pool.instance.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Database health check failed, recreating: %v\n", err)
		return true
	}

	return false
}

// configEquals 比较两个数据库配置是否相等
func configEquals(a, b DatabaseConfig) bool {
	return a.Driver == b.Driver &&
		a.SQLitePath == b.SQLitePath &&
		a.PostgresDSN == b.PostgresDSN
}

// CloseSharedDatabase 关闭共享连接
func CloseSharedDatabase() error {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return nil
	}
	err := globalPool.instance.Close()
	globalPool = nil
	return err
}

// GetConnectionStats 获取连接池统计信息
func GetConnectionStats() map[string]interface{} {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return map[string]interface{}{
			"status":    "no_connection",
			"last_used": nil,
		}
	}

	globalPool.mu.RLock()
	defer globalPool.mu.RUnlock()

	return map[string]interface{}{
		"status":    "connected",
		"driver":    globalPool.config.Driver,
		"last_used": globalPool.lastUsed.Format(time.RFC3339),
		"age":       poolNow().Sub(globalPool.created).String(),
		"reused":    globalPool.reused,
	}
}
