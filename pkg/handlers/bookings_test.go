package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"singles-table-backend/pkg/booking"
	"singles-table-backend/pkg/database"
	"singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	database.DatabaseInterface
}

func (failingStore) ApplyBooking(ctx context.Context, c database.BookingCommit) error {
	return errors.New("connection reset by peer")
}

func withUser(r *http.Request, p *models.Participant) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserContextKey, p))
}

func TestReserve_StorageFailureIsOpaque(t *testing.T) {
	mem := database.NewMemoryDatabase()
	ctx := context.Background()
	p := &models.Participant{Name: "Bob", Email: "bob@example.com", PasswordHash: "x", Gender: models.GenderMale}
	require.NoError(t, mem.CreateParticipant(ctx, p))
	table := &models.Table{Number: 1}
	require.NoError(t, mem.CreateTable(ctx, table))

	h := NewBookingsHandler(booking.NewEngine(failingStore{mem}, nil, booking.Options{}))
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"tableId":"`+table.ID+`"}`))
	rec := httptest.NewRecorder()
	h.Reserve(rec, withUser(req, p))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORAGE_FAILURE", resp.Error.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestReserve_RequiresUser(t *testing.T) {
	h := NewBookingsHandler(booking.NewEngine(database.NewMemoryDatabase(), nil, booking.Options{}))
	rec := httptest.NewRecorder()
	h.Reserve(rec, httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteBookingError_UnknownError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeBookingError(rec, errors.New("list tables: boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
