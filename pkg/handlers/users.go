package handlers

import (
	"errors"
	"net/http"
	"strings"

	"singles-table-backend/pkg/database"
	"singles-table-backend/pkg/middleware"
	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/utils"
)

// UsersHandler 用户档案处理器
type UsersHandler struct {
	db database.DatabaseInterface
}

// NewUsersHandler 创建用户档案处理器
func NewUsersHandler(db database.DatabaseInterface) *UsersHandler {
	return &UsersHandler{db: db}
}

// GetMe GET /api/users/me
func (h *UsersHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	participant, err := h.db.GetParticipantByID(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteErrorResponseWithCode(w, http.StatusNotFound, "PARTICIPANT_NOT_FOUND", "User not found", "")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to load profile")
		return
	}

	var active *models.ReservationWithTable
	if participant.ActiveReservationID != nil {
		active, err = h.loadReservation(r, participant.ID, *participant.ActiveReservationID)
		if err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to load active booking")
			return
		}
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user":           participant,
		"active_booking": active,
	})
}

// loadReservation 从同一快照读取预订和所在桌位
func (h *UsersHandler) loadReservation(r *http.Request, participantID, id string) (*models.ReservationWithTable, error) {
	reservations, err := h.db.ListReservationsWithTables(r.Context(), participantID)
	if err != nil {
		return nil, err
	}
	for i := range reservations {
		if reservations[i].ID == id {
			return &reservations[i], nil
		}
	}
	return nil, nil
}

// UpdateMe PATCH /api/users/me, only name and phone can change
func (h *UsersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req models.UserUpdateRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body: only name and phone can be updated")
		return
	}

	current, err := h.db.GetParticipantByID(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteErrorResponseWithCode(w, http.StatusNotFound, "PARTICIPANT_NOT_FOUND", "User not found", "")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to load profile")
		return
	}

	name, phone := current.Name, current.Phone
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" {
			utils.WriteValidationErrorResponse(w, "Name cannot be empty", "")
			return
		}
	}
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
	}

	updated, err := h.db.UpdateParticipantProfile(r.Context(), user.ID, name, phone)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.WriteErrorResponseWithCode(w, http.StatusNotFound, "PARTICIPANT_NOT_FOUND", "User not found", "")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to update profile")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"user": updated})
}
