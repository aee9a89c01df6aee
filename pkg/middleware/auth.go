package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/utils"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// AuthMiddleware JWT认证中间件，只接受 access token
func AuthMiddleware(jwtService *utils.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 从Authorization头获取token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorizedResponse(w, "Missing authorization header")
				return
			}

			// 检查Bearer前缀
			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == authHeader || tokenString == "" {
				utils.WriteUnauthorizedResponse(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				fmt.Printf("❌ Auth middleware: %s %s: %v\n", r.Method, r.URL.Path, err)
				utils.WriteUnauthorizedResponse(w, "Invalid token: "+err.Error())
				return
			}

			// 令牌只携带身份；档案数据由处理器从存储读取
			user := &models.Participant{
				ID:     claims.ParticipantID,
				Email:  claims.Email,
				Gender: claims.Gender,
			}

			// 将用户信息添加到请求context中
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.Participant, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.Participant)
	return user, ok && user != nil
}

// RequireUser 要求用户必须已认证的辅助函数
func RequireUser(ctx context.Context) (*models.Participant, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("user not authenticated")
	}
	return user, nil
}
