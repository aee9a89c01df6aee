package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"singles-table-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_TokenPair(t *testing.T) {
	svc := NewJWTService("secret", 10*time.Minute, time.Hour)
	p := &models.Participant{ID: "p-42", Email: "bob@example.com", Gender: models.GenderMale}

	access, refresh, expiresIn, err := svc.GenerateTokenPair(p)
	require.NoError(t, err)
	assert.Equal(t, int64(600), expiresIn)

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "p-42", claims.ParticipantID)
	assert.Equal(t, models.GenderMale, claims.Gender)

	_, err = svc.ValidateAccessToken(refresh)
	assert.ErrorContains(t, err, "invalid token type")
	_, err = svc.ValidateRefreshToken(access)
	assert.Error(t, err)

	newAccess, _, err := svc.RefreshAccessToken(refresh)
	require.NoError(t, err)
	claims, err = svc.ValidateAccessToken(newAccess)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", claims.Email)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("secret", time.Minute, time.Hour)
	p := &models.Participant{ID: "p-1", Email: "a@example.com", Gender: models.GenderFemale}
	access, _, _, err := svc.GenerateTokenPair(p)
	require.NoError(t, err)

	other := NewJWTService("other-secret", time.Minute, time.Hour)
	_, err = other.ValidateToken(access)
	assert.Error(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.ValidateToken(access)
	assert.EqualError(t, err, "token expired")
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.True(t, errors.Is(CheckPassword(hash, "battery staple"), ErrPasswordMismatch))
}

func TestResponses(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteListResponse(rec, []string{"a", "b"}, 2)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":["a","b"],"meta":{"total":2}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteErrorResponseWithCode(rec, http.StatusConflict, "CATEGORY_TAKEN", "This table already has a male", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "CATEGORY_TAKEN", resp.Error.Code)
}

func TestParseJSONBody(t *testing.T) {
	var body struct {
		TableID string `json:"tableId"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tableId":"t1"}`))
	require.NoError(t, ParseJSONBody(req, &body))
	assert.Equal(t, "t1", body.TableID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tableId":"t1","admin":true}`))
	assert.Error(t, ParseJSONBody(req, &body))
}
