// Package booking is the reservation engine: it seats participants at
// two-person tables, one male and one female, and detects when a table is
// paired.
//
// All check-then-act work on a table runs under that table's lock, and the
// final write is a single conditional commit on the store. Requests for
// different tables never wait on each other.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"singles-table-backend/pkg/database"
	"singles-table-backend/pkg/models"
	"singles-table-backend/pkg/notify"

	"github.com/google/uuid"
)

// Outcome is the result label returned to callers.
type Outcome string

const (
	OutcomePaired    Outcome = "paired"
	OutcomeWaiting   Outcome = "waiting"
	OutcomeCancelled Outcome = "cancelled"
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	// LockTimeout bounds the wait for a table lock.
	LockTimeout time.Duration
	// MaxAttempts bounds how often a commit that lost a version race is re-run.
	MaxAttempts int
	Now         func() time.Time
	NewID       func() string
}

// Engine 预订引擎
type Engine struct {
	db       database.DatabaseInterface
	notifier notify.Notifier
	locks    *locker
	opts     Options
}

// ReserveResult describes a successful Reserve.
type ReserveResult struct {
	Outcome     Outcome            `json:"outcome"`
	Reservation models.Reservation `json:"reservation"`
	Table       models.Table       `json:"table"`
	// PartnerID is set when the reservation completed a pair.
	PartnerID string `json:"partner_id,omitempty"`
}

// CancelResult describes a successful Cancel.
type CancelResult struct {
	Outcome     Outcome            `json:"outcome"`
	Reservation models.Reservation `json:"reservation"`
	Table       models.Table       `json:"table"`
}

// NewEngine 创建预订引擎；notifier 可以为 nil
func NewEngine(db database.DatabaseInterface, notifier notify.Notifier, opts Options) *Engine {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Engine{
		db:       db,
		notifier: notifier,
		locks:    newLocker(),
		opts:     opts,
	}
}

// errTableMoved means the reservation being cancelled is not on the table
// whose lock we hold; the caller re-resolves and tries again.
var errTableMoved = errors.New("reservation moved to another table")

// Reserve seats participantID at tableID.
func (e *Engine) Reserve(ctx context.Context, participantID, tableID string) (*ReserveResult, error) {
	participantID = strings.TrimSpace(participantID)
	tableID = strings.TrimSpace(tableID)
	if participantID == "" {
		return nil, notFound(EntityParticipant, "")
	}
	if tableID == "" {
		return nil, notFound(EntityTable, "")
	}

	res, err := e.reserveLocked(ctx, participantID, tableID)
	if err != nil {
		return nil, err
	}
	// 通知在释放表锁之后发送
	if res.Outcome == OutcomePaired {
		e.notifyPaired(ctx, res)
	}
	return res, nil
}

func (e *Engine) reserveLocked(ctx context.Context, participantID, tableID string) (*ReserveResult, error) {
	release, err := e.lockTable(ctx, tableID)
	if err != nil {
		return nil, e.fail("reserve", participantID, tableID, err)
	}
	defer release()

	for attempt := 1; ; attempt++ {
		res, err := e.tryReserve(ctx, participantID, tableID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, database.ErrVersionConflict) {
			return nil, e.classify("reserve", participantID, tableID, err)
		}
		if attempt >= e.opts.MaxAttempts {
			return nil, e.fail("reserve", participantID, tableID, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, e.fail("reserve", participantID, tableID, err)
		}
	}
}

func (e *Engine) tryReserve(ctx context.Context, participantID, tableID string) (*ReserveResult, error) {
	participant, err := e.db.GetParticipantByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityParticipant, participantID)
		}
		return nil, err
	}
	if participant.ActiveReservationID != nil {
		return nil, conflict(ReasonAlreadyReserved, "You already have an active booking")
	}

	table, err := e.db.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityTable, tableID)
		}
		return nil, err
	}
	if table.Status == models.TableFilled {
		return nil, conflict(ReasonResourceFull, "This table is already booked")
	}

	live, err := e.liveOccupants(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, r := range live {
		if r.Gender == participant.Gender {
			return nil, conflict(ReasonCategoryTaken, fmt.Sprintf("This table already has a %s", participant.Gender))
		}
	}
	if len(live) >= models.TableCapacity {
		return nil, conflict(ReasonResourceFull, "Table is full")
	}

	now := e.opts.Now()
	reservation := models.Reservation{
		ID:            e.opts.NewID(),
		TableID:       table.ID,
		ParticipantID: participant.ID,
		Gender:        participant.Gender,
		Status:        models.ReservationActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	live = append(live, reservation)

	occupants := make([]string, 0, len(live))
	for _, r := range live {
		occupants = append(occupants, r.ID)
	}

	commit := database.BookingCommit{
		Table: models.Table{
			ID:        table.ID,
			Version:   table.Version,
			Status:    models.TablePartiallyFilled,
			Occupants: occupants,
		},
		Participant: database.ParticipantPointer{
			ID:                  participant.ID,
			Version:             participant.Version,
			ActiveReservationID: &reservation.ID,
		},
		Create: &reservation,
	}

	result := &ReserveResult{Outcome: OutcomeWaiting}

	if isPair(live) {
		// The new reservation is active for no observable instant: it is
		// written already completed, together with its partner.
		commit.Table.Status = models.TableFilled
		reservation.Status = models.ReservationCompleted
		for _, r := range live {
			if r.ID == reservation.ID {
				continue
			}
			commit.Transitions = append(commit.Transitions, database.StatusTransition{
				ReservationID: r.ID,
				From:          models.ReservationActive,
				To:            models.ReservationCompleted,
			})
			result.PartnerID = r.ParticipantID
		}
		result.Outcome = OutcomePaired
	}

	if err := e.db.ApplyBooking(ctx, commit); err != nil {
		return nil, err
	}

	table.Status = commit.Table.Status
	table.Occupants = occupants
	table.Version++
	table.UpdatedAt = now
	result.Table = *table
	result.Reservation = reservation
	return result, nil
}

// isPair reports whether live is two reservations of differing categories.
func isPair(live []models.Reservation) bool {
	return len(live) == models.TableCapacity && live[0].Gender != live[1].Gender
}

// liveOccupants loads the table's non-cancelled occupant reservations.
func (e *Engine) liveOccupants(ctx context.Context, table *models.Table) ([]models.Reservation, error) {
	if len(table.Occupants) == 0 {
		return nil, nil
	}
	reservations, err := e.db.GetReservations(ctx, table.Occupants)
	if err != nil {
		return nil, err
	}
	live := reservations[:0]
	for _, r := range reservations {
		if r.Status != models.ReservationCancelled {
			live = append(live, r)
		}
	}
	return live, nil
}

// Cancel releases participantID's active, not yet paired reservation.
func (e *Engine) Cancel(ctx context.Context, participantID string) (*CancelResult, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, notFound(EntityParticipant, "")
	}

	for attempt := 1; ; attempt++ {
		reservation, err := e.activeReservation(ctx, participantID)
		if err != nil {
			return nil, e.classify("cancel", participantID, "", err)
		}
		// Completed is terminal, so this needs no lock.
		if reservation.Status == models.ReservationCompleted {
			return nil, conflict(ReasonAlreadyPaired, "Your table is already booked and can no longer be cancelled")
		}

		res, err := e.cancelOnTable(ctx, participantID, reservation.TableID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, database.ErrVersionConflict) && !errors.Is(err, errTableMoved) {
			return nil, e.classify("cancel", participantID, reservation.TableID, err)
		}
		if attempt >= e.opts.MaxAttempts {
			return nil, e.fail("cancel", participantID, reservation.TableID, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, e.fail("cancel", participantID, reservation.TableID, err)
		}
	}
}

// activeReservation resolves the reservation behind participantID's pointer.
func (e *Engine) activeReservation(ctx context.Context, participantID string) (*models.Reservation, error) {
	participant, err := e.db.GetParticipantByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityParticipant, participantID)
		}
		return nil, err
	}
	if participant.ActiveReservationID == nil {
		return nil, notFound(EntityReservation, "")
	}
	reservation, err := e.db.GetReservation(ctx, *participant.ActiveReservationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityReservation, *participant.ActiveReservationID)
		}
		return nil, err
	}
	return reservation, nil
}

func (e *Engine) cancelOnTable(ctx context.Context, participantID, tableID string) (*CancelResult, error) {
	release, err := e.lockTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Everything is re-read under the lock.
	participant, err := e.db.GetParticipantByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityParticipant, participantID)
		}
		return nil, err
	}
	if participant.ActiveReservationID == nil {
		return nil, notFound(EntityReservation, "")
	}
	reservation, err := e.db.GetReservation(ctx, *participant.ActiveReservationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityReservation, *participant.ActiveReservationID)
		}
		return nil, err
	}
	if reservation.TableID != tableID {
		return nil, errTableMoved
	}
	switch reservation.Status {
	case models.ReservationCompleted:
		return nil, conflict(ReasonAlreadyPaired, "Your table is already booked and can no longer be cancelled")
	case models.ReservationCancelled:
		return nil, notFound(EntityReservation, reservation.ID)
	}

	table, err := e.db.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(EntityTable, tableID)
		}
		return nil, err
	}
	live, err := e.liveOccupants(ctx, table)
	if err != nil {
		return nil, err
	}
	remaining := make([]string, 0, len(live))
	for _, r := range live {
		if r.ID != reservation.ID {
			remaining = append(remaining, r.ID)
		}
	}

	commit := database.BookingCommit{
		Table: models.Table{
			ID:        table.ID,
			Version:   table.Version,
			Status:    models.StatusForOccupancy(len(remaining)),
			Occupants: remaining,
		},
		Participant: database.ParticipantPointer{
			ID:      participant.ID,
			Version: participant.Version,
		},
		Transitions: []database.StatusTransition{{
			ReservationID: reservation.ID,
			From:          models.ReservationActive,
			To:            models.ReservationCancelled,
		}},
	}
	if err := e.db.ApplyBooking(ctx, commit); err != nil {
		return nil, err
	}

	now := e.opts.Now()
	reservation.Status = models.ReservationCancelled
	reservation.UpdatedAt = now
	table.Status = commit.Table.Status
	table.Occupants = remaining
	table.Version++
	table.UpdatedAt = now
	return &CancelResult{
		Outcome:     OutcomeCancelled,
		Reservation: *reservation,
		Table:       *table,
	}, nil
}

// Tables lists every table with its occupant reservations, read from one
// snapshot of the store.
func (e *Engine) Tables(ctx context.Context) ([]models.TableWithBookings, error) {
	tables, err := e.db.ListTablesWithBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// Reservations lists participantID's reservations, newest first, with their tables.
func (e *Engine) Reservations(ctx context.Context, participantID string) ([]models.ReservationWithTable, error) {
	reservations, err := e.db.ListReservationsWithTables(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return reservations, nil
}

func (e *Engine) lockTable(ctx context.Context, tableID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.opts.LockTimeout)
	defer cancel()
	release, err := e.locks.acquire(lockCtx, tableID)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for table %s: %w", tableID, err)
	}
	return release, nil
}

func (e *Engine) notifyPaired(ctx context.Context, res *ReserveResult) {
	if e.notifier == nil {
		return
	}
	ids := []string{res.PartnerID, res.Reservation.ParticipantID}
	msg := fmt.Sprintf("🎉 Your table #%d is successfully booked!", res.Table.Number)
	// The commit is done; a request that is going away must not stop delivery.
	if err := e.notifier.Notify(context.WithoutCancel(ctx), ids, msg); err != nil {
		fmt.Printf("❌ Pairing notification failed: table=%s participants=%v: %v\n", res.Table.ID, ids, err)
	}
}

// classify passes engine errors through and turns anything else into a
// logged StorageFailure.
func (e *Engine) classify(op, participantID, tableID string, err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	return e.fail(op, participantID, tableID, err)
}

func (e *Engine) fail(op, participantID, tableID string, err error) error {
	fmt.Printf("❌ Booking storage failure: op=%s participant=%s table=%s: %v\n", op, participantID, tableID, err)
	return storageFailure(fmt.Errorf("%s: %w", op, err))
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt*attempt) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
