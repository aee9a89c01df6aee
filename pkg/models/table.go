package models

import "time"

// TableCapacity is the number of seats at every table.
const TableCapacity = 2

// TableStatus 桌位状态
type TableStatus string

const (
	TableFree            TableStatus = "free"
	TablePartiallyFilled TableStatus = "partially-filled"
	TableFilled          TableStatus = "filled"
)

// StatusForOccupancy maps a non-cancelled occupant count to the table status.
func StatusForOccupancy(n int) TableStatus {
	switch {
	case n <= 0:
		return TableFree
	case n < TableCapacity:
		return TablePartiallyFilled
	default:
		return TableFilled
	}
}

// Table is a shared two-seat resource
type Table struct {
	ID        string      `json:"id" db:"id"`
	Number    int         `json:"table_number" db:"number"`
	Status    TableStatus `json:"status" db:"status"`
	Occupants []string    `json:"occupants" db:"-"` // reservation IDs, never cancelled ones
	Version   int64       `json:"-" db:"version"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy that does not share the occupant slice.
func (t Table) Clone() Table {
	if t.Occupants != nil {
		t.Occupants = append([]string(nil), t.Occupants...)
	}
	return t
}

// TableWithBookings is the listing view: a table plus its occupant reservations
type TableWithBookings struct {
	Table
	CurrentBookings []Reservation `json:"current_bookings"`
}
