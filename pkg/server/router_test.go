package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"singles-table-backend/pkg/booking"
	"singles-table-backend/pkg/config"
	"singles-table-backend/pkg/database"
	customMiddleware "singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

type captured struct {
	mu   sync.Mutex
	msgs []string
	ids  [][]string
}

func (c *captured) Notify(ctx context.Context, ids []string, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ids)
	c.msgs = append(c.msgs, message)
	return nil
}

type testAPI struct {
	t        *testing.T
	handler  http.Handler
	db       database.DatabaseInterface
	notifier *captured
	tables   []models.Table
}

func newTestAPI(t *testing.T, environ map[string]string) *testAPI {
	t.Helper()
	base := map[string]string{
		"ENVIRONMENT":    "test",
		"JWT_SECRET":     "test-secret",
		"DB_DRIVER":      "memory",
		"RATE_LIMIT_RPS": "0",
	}
	for k, v := range environ {
		base[k] = v
	}
	cfg, err := config.Parse(base)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	db := database.NewMemoryDatabase()
	_, err = database.SeedTables(context.Background(), db, 3)
	require.NoError(t, err)
	tables, err := db.ListTables(context.Background())
	require.NoError(t, err)

	notifier := &captured{}
	engine := booking.NewEngine(db, notifier, booking.Options{LockTimeout: time.Second})
	handler := NewRouter(Deps{
		Config:  cfg,
		DB:      db,
		Engine:  engine,
		JWT:     utils.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Limiter: customMiddleware.NewLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst),
	})
	return &testAPI{t: t, handler: handler, db: db, notifier: notifier, tables: tables}
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec.Code, env
}

func (a *testAPI) register(name, email string, gender models.Gender) models.UserLoginResponse {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "password123",
		"gender":   string(gender),
	})
	require.Equal(a.t, http.StatusCreated, status, "register %s: %+v", email, env.Error)
	var resp models.UserLoginResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &resp))
	return resp
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t, nil)
	status, env := api.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "Singles Table Booking API", data["service"])
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	reg := api.register("Ann", "ann@example.com", models.GenderFemale)
	assert.NotEmpty(t, reg.AccessToken)
	assert.Equal(t, models.GenderFemale, reg.User.Gender)

	status, env := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ann 2", "email": "ANN@example.com", "password": "password123", "gender": "female",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "EMAIL_TAKEN", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "X", "email": "x@example.com", "password": "password123", "gender": "other",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ann@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ann@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	var login models.UserLoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))

	status, env = api.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": login.RefreshToken,
	})
	require.Equal(t, http.StatusOK, status)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))

	status, _ = api.do(http.MethodGet, "/api/users/me", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestBookingFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	bob := api.register("Bob", "bob@example.com", models.GenderMale)
	ann := api.register("Ann", "ann@example.com", models.GenderFemale)
	carl := api.register("Carl", "carl@example.com", models.GenderMale)
	table1, table2 := api.tables[0], api.tables[1]

	status, env := api.do(http.MethodPost, "/api/bookings", bob.AccessToken, map[string]string{"tableId": table1.ID})
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	var first struct {
		Outcome        string `json:"outcome"`
		ReservationID  string `json:"reservationId"`
		ResourceStatus string `json:"resourceStatus"`
		Message        string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "waiting", first.Outcome)
	assert.Equal(t, "partially-filled", first.ResourceStatus)
	assert.NotEmpty(t, first.ReservationID)
	assert.Equal(t, "Waiting for a pair... 👤", first.Message)

	status, env = api.do(http.MethodPost, "/api/bookings", bob.AccessToken, map[string]string{"tableId": table2.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_RESERVED", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/bookings", carl.AccessToken, map[string]string{"tableId": table1.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CATEGORY_TAKEN", errorCode(env))
	assert.Equal(t, "This table already has a male", env.Error.Message)

	status, env = api.do(http.MethodPost, "/api/bookings", ann.AccessToken, map[string]string{"tableId": table1.ID})
	require.Equal(t, http.StatusCreated, status)
	var second struct {
		Outcome        string `json:"outcome"`
		ResourceStatus string `json:"resourceStatus"`
		Message        string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, "paired", second.Outcome)
	assert.Equal(t, "filled", second.ResourceStatus)
	assert.Equal(t, "Pair completed! Your table is booked 🎉", second.Message)

	require.Len(t, api.notifier.msgs, 1)
	assert.Equal(t, "🎉 Your table #1 is successfully booked!", api.notifier.msgs[0])
	assert.ElementsMatch(t, []string{bob.User.ID, ann.User.ID}, api.notifier.ids[0])

	status, env = api.do(http.MethodPost, "/api/bookings/cancel", ann.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_PAIRED", errorCode(env))

	dave := api.register("Dave", "dave@example.com", models.GenderFemale)
	status, env = api.do(http.MethodPost, "/api/bookings", dave.AccessToken, map[string]string{"tableId": table1.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RESOURCE_FULL", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/bookings/cancel", dave.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RESERVATION_NOT_FOUND", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/bookings", dave.AccessToken, map[string]string{"tableId": "nope"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "TABLE_NOT_FOUND", errorCode(env))

	status, env = api.do(http.MethodPost, "/api/bookings", dave.AccessToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(env))

	// carl waits on table 2 and then changes his mind
	status, _ = api.do(http.MethodPost, "/api/bookings", carl.AccessToken, map[string]string{"tableId": table2.ID})
	require.Equal(t, http.StatusCreated, status)
	status, env = api.do(http.MethodPost, "/api/bookings/cancel", carl.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var cancelled struct {
		Outcome        string             `json:"outcome"`
		Reservation    models.Reservation `json:"reservation"`
		ResourceStatus string             `json:"resourceStatus"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, "cancelled", cancelled.Outcome)
	assert.Equal(t, models.ReservationCancelled, cancelled.Reservation.Status)
	assert.Equal(t, "free", cancelled.ResourceStatus)

	status, env = api.do(http.MethodGet, "/api/tables", carl.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 3, env.Meta.Total)
	var tables []models.TableWithBookings
	require.NoError(t, json.Unmarshal(env.Data, &tables))
	require.Len(t, tables, 3)
	assert.Equal(t, 1, tables[0].Number)
	assert.Equal(t, models.TableFilled, tables[0].Status)
	assert.Len(t, tables[0].CurrentBookings, 2)
	assert.Equal(t, models.TableFree, tables[1].Status)
	assert.Empty(t, tables[1].CurrentBookings)

	status, env = api.do(http.MethodGet, "/api/bookings/me", carl.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var mine []models.ReservationWithTable
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, models.ReservationCancelled, mine[0].Status)
	require.NotNil(t, mine[0].Table)
	assert.Equal(t, 2, mine[0].Table.Number)
}

func TestUsersMe(t *testing.T) {
	api := newTestAPI(t, nil)
	bob := api.register("Bob", "bob@example.com", models.GenderMale)

	status, _ := api.do(http.MethodPost, "/api/bookings", bob.AccessToken, map[string]string{"tableId": api.tables[2].ID})
	require.Equal(t, http.StatusCreated, status)

	status, env := api.do(http.MethodGet, "/api/users/me", bob.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		User          models.Participant           `json:"user"`
		ActiveBooking *models.ReservationWithTable `json:"active_booking"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "Bob", me.User.Name)
	require.NotNil(t, me.ActiveBooking)
	assert.Equal(t, models.ReservationActive, me.ActiveBooking.Status)
	require.NotNil(t, me.ActiveBooking.Table)
	assert.Equal(t, 3, me.ActiveBooking.Table.Number)

	status, env = api.do(http.MethodPatch, "/api/users/me", bob.AccessToken, map[string]string{"name": "Robert", "phone": "+1 555"})
	require.Equal(t, http.StatusOK, status)
	var updated struct {
		User models.Participant `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Robert", updated.User.Name)
	assert.Equal(t, "+1 555", updated.User.Phone)
	assert.Equal(t, models.GenderMale, updated.User.Gender)
	assert.NotNil(t, updated.User.ActiveReservationID)

	// engine-owned and immutable fields are rejected
	status, _ = api.do(http.MethodPatch, "/api/users/me", bob.AccessToken, map[string]string{"gender": "female"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = api.do(http.MethodPatch, "/api/users/me", bob.AccessToken, map[string]interface{}{"active_reservation_id": nil})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBookingRateLimit(t *testing.T) {
	api := newTestAPI(t, map[string]string{"RATE_LIMIT_RPS": "0.001", "RATE_LIMIT_BURST": "2"})
	bob := api.register("Bob", "bob@example.com", models.GenderMale)

	status, _ := api.do(http.MethodPost, "/api/bookings", bob.AccessToken, map[string]string{"tableId": api.tables[0].ID})
	assert.Equal(t, http.StatusCreated, status)
	status, _ = api.do(http.MethodPost, "/api/bookings/cancel", bob.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, env := api.do(http.MethodPost, "/api/bookings", bob.AccessToken, map[string]string{"tableId": api.tables[0].ID})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", errorCode(env))

	// reads are not limited
	status, _ = api.do(http.MethodGet, "/api/bookings/me", bob.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestNotFoundRoute(t *testing.T) {
	api := newTestAPI(t, nil)
	status, env := api.do(http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(env))
}
