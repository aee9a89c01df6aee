package handlers

import (
	"net/http"
	"strings"

	"singles-table-backend/pkg/booking"
	"singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/utils"
)

// BookingsHandler 预订与桌位处理器
type BookingsHandler struct {
	engine *booking.Engine
}

// NewBookingsHandler 创建预订处理器
func NewBookingsHandler(engine *booking.Engine) *BookingsHandler {
	return &BookingsHandler{engine: engine}
}

// ReserveRequest POST /api/bookings 请求体
type ReserveRequest struct {
	TableID string `json:"tableId"`
}

// ReserveResponse POST /api/bookings 响应
type ReserveResponse struct {
	Outcome        booking.Outcome    `json:"outcome"`
	ReservationID  string             `json:"reservationId"`
	ResourceStatus models.TableStatus `json:"resourceStatus"`
	Reservation    models.Reservation `json:"reservation"`
	Message        string             `json:"message"`
}

// CancelResponse POST /api/bookings/cancel 响应
type CancelResponse struct {
	Outcome        booking.Outcome    `json:"outcome"`
	Reservation    models.Reservation `json:"reservation"`
	ResourceStatus models.TableStatus `json:"resourceStatus"`
	Message        string             `json:"message"`
}

// ListTables GET /api/tables
func (h *BookingsHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.engine.Tables(r.Context())
	if err != nil {
		writeBookingError(w, err)
		return
	}
	utils.WriteListResponse(w, tables, len(tables))
}

// MyBookings GET /api/bookings/me
func (h *BookingsHandler) MyBookings(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	reservations, err := h.engine.Reservations(r.Context(), user.ID)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	utils.WriteListResponse(w, reservations, len(reservations))
}

// Reserve POST /api/bookings
func (h *BookingsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req ReserveRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.TableID) == "" {
		utils.WriteValidationErrorResponse(w, "tableId is required", "")
		return
	}

	res, err := h.engine.Reserve(r.Context(), user.ID, req.TableID)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	message := "Waiting for a pair... 👤"
	if res.Outcome == booking.OutcomePaired {
		message = "Pair completed! Your table is booked 🎉"
	}
	utils.WriteCreatedResponse(w, ReserveResponse{
		Outcome:        res.Outcome,
		ReservationID:  res.Reservation.ID,
		ResourceStatus: res.Table.Status,
		Reservation:    res.Reservation,
		Message:        message,
	})
}

// Cancel POST /api/bookings/cancel
func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	res, err := h.engine.Cancel(r.Context(), user.ID)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, CancelResponse{
		Outcome:        res.Outcome,
		Reservation:    res.Reservation,
		ResourceStatus: res.Table.Status,
		Message:        "Your booking was cancelled",
	})
}

// writeBookingError maps engine errors onto the response envelope.
func writeBookingError(w http.ResponseWriter, err error) {
	e, ok := booking.AsError(err)
	if !ok {
		utils.WriteInternalServerErrorResponse(w, "Internal server error")
		return
	}
	switch e.Kind {
	case booking.KindNotFound:
		utils.WriteErrorResponseWithCode(w, http.StatusNotFound, e.Code(), e.Message, "")
	case booking.KindConflict:
		utils.WriteErrorResponseWithCode(w, http.StatusConflict, e.Code(), e.Message, "")
	default:
		// 底层原因已在引擎中记录，不返回给客户端
		utils.WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, e.Code(), e.Message, "")
	}
}
