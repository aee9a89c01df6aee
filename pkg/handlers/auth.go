package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"
	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	jwt    *utils.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, db database.DatabaseInterface, jwtService *utils.JWTService) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		db:     db,
		jwt:    jwtService,
	}
}

// Register 用户注册
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Gender == "" {
		utils.WriteValidationErrorResponse(w, "All fields required", "name, email, password and gender are required")
		return
	}
	if !req.Gender.Valid() {
		utils.WriteValidationErrorResponse(w, "Invalid gender", "gender must be male or female")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid email", err.Error())
		return
	}
	if len(req.Password) < utils.MinPasswordLength {
		utils.WriteValidationErrorResponse(w, "Password too short",
			fmt.Sprintf("password must be at least %d characters", utils.MinPasswordLength))
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Registration failed")
		return
	}

	participant := &models.Participant{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Gender:       req.Gender,
		Phone:        req.Phone,
	}
	if err := h.db.CreateParticipant(r.Context(), participant); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			utils.WriteErrorResponseWithCode(w, http.StatusConflict, "EMAIL_TAKEN", "Email already in use", "")
			return
		}
		fmt.Printf("❌ Register failed for %s: %v\n", req.Email, err)
		utils.WriteInternalServerErrorResponse(w, "Registration failed")
		return
	}

	resp, err := h.issueTokens(participant)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Registration failed")
		return
	}
	fmt.Printf("✅ Registered participant %s (%s)\n", participant.ID, participant.Gender)
	utils.WriteCreatedResponse(w, resp)
}

// Login 用户登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		utils.WriteValidationErrorResponse(w, "Email and password are required", "")
		return
	}

	participant, err := h.db.GetParticipantByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		fmt.Printf("❌ Login lookup failed: %v\n", err)
		utils.WriteInternalServerErrorResponse(w, "Login failed")
		return
	}
	// 同一个错误信息，不暴露邮箱是否存在
	if participant == nil || utils.CheckPassword(participant.PasswordHash, req.Password) != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid credentials")
		return
	}

	resp, err := h.issueTokens(participant)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Login failed")
		return
	}
	utils.WriteSuccessResponse(w, resp)
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	accessToken, expiresIn, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

func (h *AuthHandler) issueTokens(p *models.Participant) (*models.UserLoginResponse, error) {
	accessToken, refreshToken, expiresIn, err := h.jwt.GenerateTokenPair(p)
	if err != nil {
		fmt.Printf("❌ Token generation failed for %s: %v\n", p.ID, err)
		return nil, err
	}
	return &models.UserLoginResponse{
		User:         p.Clone(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "healthy"
	if err := h.db.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"status":      status,
		"service":     "Singles Table Booking API",
		"environment": h.config.Environment,
		"database":    h.config.DBDriver,
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
	})
}
