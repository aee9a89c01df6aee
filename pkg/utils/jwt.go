package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"singles-table-backend/pkg/models"
)

const tokenIssuer = "singles-table"

// JWTService JWT服务
type JWTService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTService 创建JWT服务；TTL 为 0 时使用默认值（15分钟 / 7天）
func NewJWTService(secretKey string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTService{
		secretKey:  []byte(secretKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL 访问令牌有效期
func (j *JWTService) AccessTTL() time.Duration {
	return j.accessTTL
}

// GenerateTokenPair 生成访问令牌和刷新令牌对，expiresIn 为访问令牌的有效秒数
func (j *JWTService) GenerateTokenPair(p *models.Participant) (accessToken, refreshToken string, expiresIn int64, err error) {
	now := j.now()

	accessToken, err = j.sign(p.ID, p.Email, p.Gender, "access", now, j.accessTTL)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err = j.sign(p.ID, p.Email, p.Gender, "refresh", now, j.refreshTTL)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return accessToken, refreshToken, int64(j.accessTTL.Seconds()), nil
}

// GenerateAccessToken 生成访问令牌
func (j *JWTService) GenerateAccessToken(participantID, email string, gender models.Gender) (string, int64, error) {
	token, err := j.sign(participantID, email, gender, "access", j.now(), j.accessTTL)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}
	return token, int64(j.accessTTL.Seconds()), nil
}

func (j *JWTService) sign(participantID, email string, gender models.Gender, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := &models.TokenClaims{
		ParticipantID: participantID,
		Email:         email,
		Gender:        gender,
		Type:          typ,
		ID:            uuid.NewString(),
		Issuer:        tokenIssuer,
		Exp:           now.Add(ttl).Unix(),
		Iat:           now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
}

// ValidateToken 验证令牌
func (j *JWTService) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithIssuer(tokenIssuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired")
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || claims.ParticipantID == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateAccessToken 验证访问令牌
func (j *JWTService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, "access")
}

// ValidateRefreshToken 验证刷新令牌
func (j *JWTService) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	return j.validateType(tokenString, "refresh")
}

func (j *JWTService) validateType(tokenString, typ string) (*models.TokenClaims, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", typ, claims.Type)
	}
	return claims, nil
}

// RefreshAccessToken 使用刷新令牌生成新的访问令牌
func (j *JWTService) RefreshAccessToken(refreshToken string) (string, int64, error) {
	claims, err := j.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", 0, fmt.Errorf("invalid refresh token: %w", err)
	}

	return j.GenerateAccessToken(claims.ParticipantID, claims.Email, claims.Gender)
}
