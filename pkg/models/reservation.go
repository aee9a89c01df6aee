package models

import "time"

// ReservationStatus 预订状态
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation binds one participant to one table seat
type Reservation struct {
	ID            string            `json:"id" db:"id"`
	TableID       string            `json:"table_id" db:"table_id"`
	ParticipantID string            `json:"user_id" db:"participant_id"`
	Gender        Gender            `json:"gender" db:"gender"` // snapshot taken at creation
	Status        ReservationStatus `json:"status" db:"status"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// ReservationWithTable is the "my bookings" view
type ReservationWithTable struct {
	Reservation
	Table *Table `json:"table,omitempty"`
}
