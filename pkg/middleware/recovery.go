package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回友好的错误信息
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				stack := debug.Stack()
				fmt.Printf("❌ PANIC: %s %s: %v\n", r.Method, r.URL.Path, err)
				fmt.Printf("📍 Stack trace:\n%s\n", stack)

				if cfg.IsDevelopment() {
					// 开发环境：显示详细错误信息
					utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
						"INTERNAL_SERVER_ERROR",
						fmt.Sprintf("Internal server error: %v", err),
						string(stack))
					return
				}
				utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
