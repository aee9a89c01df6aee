package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// OpenPostgres 创建PostgreSQL数据库实例
func OpenPostgres(dsn string) (*SQLDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		dsn,
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
	}

	var lastErr error
	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err := sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			lastErr = err
			continue
		}

		// 设置连接池参数
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		if err == nil {
			err = applySchema(ctx, db)
		}
		cancel()
		if err != nil {
			fmt.Printf("❌ Strategy %d failed: %v\n", i+1, err)
			db.Close()
			lastErr = err
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		return &SQLDatabase{
			db: db,
			dialect: dialect{
				name:              "postgres",
				numberedParams:    true,
				isUniqueViolation: isPostgresUniqueViolation,
			},
		}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
