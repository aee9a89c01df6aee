package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Gender 配对约束使用的二元类别
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is one of the two supported categories.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Participant represents a registered user who can hold one reservation
type Participant struct {
	ID                  string    `json:"id" db:"id"`
	Name                string    `json:"name" db:"name"`
	Email               string    `json:"email" db:"email"`
	PasswordHash        string    `json:"-" db:"password_hash"` // Never return password in JSON
	Gender              Gender    `json:"gender" db:"gender"`
	Phone               string    `json:"phone,omitempty" db:"phone"`
	ActiveReservationID *string   `json:"active_reservation_id" db:"active_reservation_id"`
	Version             int64     `json:"-" db:"version"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so callers never share the pointer field.
func (p Participant) Clone() Participant {
	if p.ActiveReservationID != nil {
		id := *p.ActiveReservationID
		p.ActiveReservationID = &id
	}
	return p
}

// UserRegisterRequest represents the request payload for user registration
type UserRegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Gender   Gender `json:"gender" validate:"required,oneof=male female"`
	Phone    string `json:"phone,omitempty"`
}

// UserLoginRequest represents the request payload for user login
type UserLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserLoginResponse represents the response payload for register and login
type UserLoginResponse struct {
	User         Participant `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
}

// UserUpdateRequest only carries the profile fields a user may edit
type UserUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// RefreshTokenRequest represents the request payload for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenClaims JWT 声明；sub 是参与者 ID
type TokenClaims struct {
	ParticipantID string `json:"sub"`
	Email         string `json:"email"`
	Gender        Gender `json:"gender,omitempty"`
	Type          string `json:"type"` // "access" or "refresh"
	ID            string `json:"jti,omitempty"`
	Issuer        string `json:"iss,omitempty"`
	Exp           int64  `json:"exp"`
	Iat           int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.ParticipantID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
