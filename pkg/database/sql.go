package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"singles-table-backend/pkg/models"

	"github.com/google/uuid"
)

//go:embed schema.sql
var schemaSQL string

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name              string
	numberedParams    bool
	isUniqueViolation func(error) bool
}

// SQLDatabase SQL数据库实现（SQLite / PostgreSQL 共用）
type SQLDatabase struct {
	db      *sql.DB
	dialect dialect
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (db *SQLDatabase) rebind(query string) string {
	if !db.dialect.numberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// applySchema 执行内嵌的建表脚本（幂等）
func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Migrate applies the embedded schema. Open already does this; the CLI
// exposes it separately for operators.
func (db *SQLDatabase) Migrate(ctx context.Context) error {
	return applySchema(ctx, db.db)
}

const participantColumns = `id, name, email, password_hash, gender, phone, active_reservation_id, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var p models.Participant
	var active sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Gender, &p.Phone, &active, &p.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if active.Valid {
		id := active.String
		p.ActiveReservationID = &id
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// CreateParticipant 创建用户
func (db *SQLDatabase) CreateParticipant(ctx context.Context, p *models.Participant) error {
	email := normalizeEmail(p.Email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.Email = email
	p.ActiveReservationID = nil
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.db.ExecContext(ctx, db.rebind(`
		INSERT INTO participants (`+participantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
	`), p.ID, p.Name, p.Email, p.PasswordHash, string(p.Gender), p.Phone, p.Version, toMillis(now), toMillis(now))
	if err != nil {
		if db.dialect.isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

// GetParticipantByID 根据ID获取用户
func (db *SQLDatabase) GetParticipantByID(ctx context.Context, id string) (*models.Participant, error) {
	row := db.db.QueryRowContext(ctx, db.rebind(`SELECT `+participantColumns+` FROM participants WHERE id = ?`), id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// GetParticipantByEmail 根据邮箱获取用户
func (db *SQLDatabase) GetParticipantByEmail(ctx context.Context, email string) (*models.Participant, error) {
	row := db.db.QueryRowContext(ctx, db.rebind(`SELECT `+participantColumns+` FROM participants WHERE email = ?`), normalizeEmail(email))
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant by email: %w", err)
	}
	return p, nil
}

// UpdateParticipantProfile 更新用户资料（仅 name / phone）
func (db *SQLDatabase) UpdateParticipantProfile(ctx context.Context, id, name, phone string) (*models.Participant, error) {
	res, err := db.db.ExecContext(ctx, db.rebind(`
		UPDATE participants SET name = ?, phone = ?, updated_at = ? WHERE id = ?
	`), name, phone, toMillis(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update participant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return db.GetParticipantByID(ctx, id)
}

// CreateTable 创建桌位
func (db *SQLDatabase) CreateTable(ctx context.Context, t *models.Table) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.Status = models.TableFree
	t.Occupants = []string{}
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := db.db.ExecContext(ctx, db.rebind(`
		INSERT INTO dining_tables (id, number, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), t.ID, t.Number, string(t.Status), t.Version, toMillis(now), toMillis(now))
	if err != nil {
		if db.dialect.isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// 桌位和占用预订用一条 LEFT JOIN 读出：单条语句只看到一个快照，
// 并发提交的配对要么整体可见，要么整体不可见
const tableWithOccupantsQuery = `
	SELECT t.id, t.number, t.status, t.version, t.created_at, t.updated_at,
	       o.id, o.participant_id, o.gender, o.status, o.created_at, o.updated_at
	FROM dining_tables t
	LEFT JOIN reservations o ON o.table_id = t.id AND o.status <> 'cancelled'
`

func (db *SQLDatabase) queryTables(ctx context.Context, where string, args ...any) ([]models.TableWithBookings, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(tableWithOccupantsQuery+where+`
		ORDER BY t.number, o.created_at, o.id
	`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TableWithBookings
	for rows.Next() {
		var t models.Table
		var createdAt, updatedAt int64
		var oID, oParticipant, oGender, oStatus sql.NullString
		var oCreated, oUpdated sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Number, &t.Status, &t.Version, &createdAt, &updatedAt,
			&oID, &oParticipant, &oGender, &oStatus, &oCreated, &oUpdated); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != t.ID {
			t.CreatedAt = fromMillis(createdAt)
			t.UpdatedAt = fromMillis(updatedAt)
			t.Occupants = []string{}
			out = append(out, models.TableWithBookings{Table: t, CurrentBookings: []models.Reservation{}})
		}
		if !oID.Valid {
			continue
		}
		cur := &out[len(out)-1]
		cur.Occupants = append(cur.Occupants, oID.String)
		cur.CurrentBookings = append(cur.CurrentBookings, models.Reservation{
			ID:            oID.String,
			TableID:       t.ID,
			ParticipantID: oParticipant.String,
			Gender:        models.Gender(oGender.String),
			Status:        models.ReservationStatus(oStatus.String),
			CreatedAt:     fromMillis(oCreated.Int64),
			UpdatedAt:     fromMillis(oUpdated.Int64),
		})
	}
	return out, rows.Err()
}

// GetTable 获取桌位及其占用者
func (db *SQLDatabase) GetTable(ctx context.Context, id string) (*models.Table, error) {
	tables, err := db.queryTables(ctx, `WHERE t.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	if len(tables) == 0 {
		return nil, ErrNotFound
	}
	return &tables[0].Table, nil
}

// ListTables 按桌号排序列出所有桌位
func (db *SQLDatabase) ListTables(ctx context.Context) ([]models.Table, error) {
	withBookings, err := db.queryTables(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := make([]models.Table, 0, len(withBookings))
	for _, t := range withBookings {
		tables = append(tables, t.Table)
	}
	return tables, nil
}

// ListTablesWithBookings 桌位及其占用预订（单一快照）
func (db *SQLDatabase) ListTablesWithBookings(ctx context.Context) ([]models.TableWithBookings, error) {
	tables, err := db.queryTables(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	if tables == nil {
		tables = []models.TableWithBookings{}
	}
	return tables, nil
}

// CountTables 桌位数量
func (db *SQLDatabase) CountTables(ctx context.Context) (int, error) {
	var n int
	if err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dining_tables`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}
	return n, nil
}

const reservationColumns = `id, table_id, participant_id, gender, status, created_at, updated_at`

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var createdAt, updatedAt int64
	if err := row.Scan(&r.ID, &r.TableID, &r.ParticipantID, &r.Gender, &r.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func (db *SQLDatabase) queryReservations(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetReservation 获取预订
func (db *SQLDatabase) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	row := db.db.QueryRowContext(ctx, db.rebind(`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`), id)
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// GetReservations returns the reservations that exist among ids, in id order.
func (db *SQLDatabase) GetReservations(ctx context.Context, ids []string) ([]models.Reservation, error) {
	if len(ids) == 0 {
		return []models.Reservation{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := db.queryReservations(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}
	byID := make(map[string]models.Reservation, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	out := make([]models.Reservation, 0, len(found))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListReservationsByParticipant 列出用户的预订（最新在前）
func (db *SQLDatabase) ListReservationsByParticipant(ctx context.Context, participantID string) ([]models.Reservation, error) {
	out, err := db.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations WHERE participant_id = ? ORDER BY created_at DESC, id DESC
	`, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return out, nil
}

// ListReservationsWithTables 用户的预订及所在桌位（最新在前，单一快照）
func (db *SQLDatabase) ListReservationsWithTables(ctx context.Context, participantID string) ([]models.ReservationWithTable, error) {
	rows, err := db.db.QueryContext(ctx, db.rebind(`
		SELECT r.id, r.table_id, r.participant_id, r.gender, r.status, r.created_at, r.updated_at,
		       t.id, t.number, t.status, t.version, t.created_at, t.updated_at,
		       o.id
		FROM reservations r
		LEFT JOIN dining_tables t ON t.id = r.table_id
		LEFT JOIN reservations o ON o.table_id = t.id AND o.status <> 'cancelled'
		WHERE r.participant_id = ?
		ORDER BY r.created_at DESC, r.id DESC, o.created_at, o.id
	`), participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	out := []models.ReservationWithTable{}
	for rows.Next() {
		var r models.Reservation
		var rCreated, rUpdated int64
		var tID, tStatus, oID sql.NullString
		var tNumber, tVersion, tCreated, tUpdated sql.NullInt64
		if err := rows.Scan(&r.ID, &r.TableID, &r.ParticipantID, &r.Gender, &r.Status, &rCreated, &rUpdated,
			&tID, &tNumber, &tStatus, &tVersion, &tCreated, &tUpdated, &oID); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != r.ID {
			r.CreatedAt = fromMillis(rCreated)
			r.UpdatedAt = fromMillis(rUpdated)
			item := models.ReservationWithTable{Reservation: r}
			if tID.Valid {
				item.Table = &models.Table{
					ID:        tID.String,
					Number:    int(tNumber.Int64),
					Status:    models.TableStatus(tStatus.String),
					Occupants: []string{},
					Version:   tVersion.Int64,
					CreatedAt: fromMillis(tCreated.Int64),
					UpdatedAt: fromMillis(tUpdated.Int64),
				}
			}
			out = append(out, item)
		}
		if cur := &out[len(out)-1]; oID.Valid && cur.Table != nil {
			cur.Table.Occupants = append(cur.Table.Occupants, oID.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return out, nil
}

// ApplyBooking 在单个事务中按版本条件提交一次预订/取消
func (db *SQLDatabase) ApplyBooking(ctx context.Context, c BookingCommit) (err error) {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := toMillis(time.Now())

	res, err := tx.ExecContext(ctx, db.rebind(`
		UPDATE dining_tables SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`), string(c.Table.Status), now, c.Table.ID, c.Table.Version)
	if err != nil {
		return fmt.Errorf("update table: %w", err)
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	var active any
	if c.Participant.ActiveReservationID != nil {
		active = *c.Participant.ActiveReservationID
	}

	if c.Create != nil {
		r := c.Create
		createdAt := now
		if !r.CreatedAt.IsZero() {
			createdAt = toMillis(r.CreatedAt)
		}
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		`), r.ID, r.TableID, r.ParticipantID, string(r.Gender), string(r.Status), createdAt, now)
		if err != nil {
			if db.dialect.isUniqueViolation(err) {
				err = ErrVersionConflict
				return err
			}
			return fmt.Errorf("insert reservation: %w", err)
		}
	}

	res, err = tx.ExecContext(ctx, db.rebind(`
		UPDATE participants SET active_reservation_id = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`), active, now, c.Participant.ID, c.Participant.Version)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	for _, tr := range c.Transitions {
		res, err = tx.ExecContext(ctx, db.rebind(`
			UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`), string(tr.To), now, tr.ReservationID, string(tr.From))
		if err != nil {
			return fmt.Errorf("update reservation %s: %w", tr.ReservationID, err)
		}
		if err = expectOneRow(res); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return ErrVersionConflict
	}
	return nil
}

// HealthCheck 健康检查
func (db *SQLDatabase) HealthCheck(ctx context.Context) error {
	if err := db.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", db.dialect.name, err)
	}
	return nil
}

// Close 关闭连接
func (db *SQLDatabase) Close() error {
	if db == nil || db.db == nil {
		return nil
	}
	return db.db.Close()
}

var _ DatabaseInterface = (*SQLDatabase)(nil)
