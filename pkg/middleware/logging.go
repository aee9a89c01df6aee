package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"singles-table-backend/pkg/config"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger 创建日志中间件；LOG_FORMAT=custom 时使用 CustomLogger
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.LogFormat == "custom" {
		return CustomLogger(cfg)
	}
	return middleware.Logger
}

// CustomLogger 自定义日志中间件
func CustomLogger(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// 创建响应写入器包装器来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			// 认证中间件挂在子路由上，这里只能看到请求ID
			reqID := middleware.GetReqID(r.Context())

			if cfg.IsProduction() {
				logProductionRequest(r, ww, duration, reqID)
			} else {
				logDevelopmentRequest(r, ww, duration, reqID)
			}
		})
	}
}

// logProductionRequest 生产环境日志格式
func logProductionRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, reqID string) {
	fmt.Printf(`{"time":"%s","request_id":"%s","method":"%s","path":"%s","status":%d,"bytes":%d,"duration":"%s","ip":"%s","user_agent":%q}`+"\n",
		time.Now().Format(time.RFC3339),
		reqID,
		r.Method,
		r.URL.Path,
		ww.Status(),
		ww.BytesWritten(),
		duration,
		ClientIP(r),
		r.UserAgent(),
	)
}

// logDevelopmentRequest 开发环境日志格式
func logDevelopmentRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, reqID string) {
	fmt.Printf("%s %s \033[36m%s\033[0m %s%d\033[0m %s %s %s\n",
		time.Now().Format("15:04:05"),
		getMethodColor(r.Method)+r.Method+"\033[0m",
		r.URL.Path,
		getStatusColor(ww.Status()),
		ww.Status(),
		duration,
		ClientIP(r),
		reqID,
	)
}

// ClientIP 获取客户端IP地址：X-Forwarded-For 的第一个地址、X-Real-IP、最后是 RemoteAddr
func ClientIP(r *http.Request) string {
	// 检查X-Forwarded-For头（代理/负载均衡器）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	// 检查X-Real-IP头
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// getStatusColor 根据HTTP状态码返回颜色代码
func getStatusColor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "\033[32m" // 绿色
	case status >= 300 && status < 400:
		return "\033[33m" // 黄色
	case status >= 400 && status < 500:
		return "\033[31m" // 红色
	case status >= 500:
		return "\033[35m" // 紫色
	default:
		return "\033[0m"
	}
}

// getMethodColor 根据HTTP方法返回颜色代码
func getMethodColor(method string) string {
	switch method {
	case http.MethodGet:
		return "\033[34m" // 蓝色
	case http.MethodPost:
		return "\033[32m" // 绿色
	case http.MethodPatch:
		return "\033[36m" // 青色
	case http.MethodOptions:
		return "\033[37m" // 白色
	default:
		return "\033[0m"
	}
}
