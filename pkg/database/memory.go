package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"singles-table-backend/pkg/models"

	"github.com/google/uuid"
)

// MemoryDatabase 内存数据库实现（测试与本地开发）
type MemoryDatabase struct {
	mu           sync.RWMutex
	participants map[string]models.Participant
	emails       map[string]string // lowercase email -> participant id
	tables       map[string]models.Table
	numbers      map[int]string
	reservations map[string]models.Reservation
}

// NewMemoryDatabase 创建内存数据库实例
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		participants: make(map[string]models.Participant),
		emails:       make(map[string]string),
		tables:       make(map[string]models.Table),
		numbers:      make(map[int]string),
		reservations: make(map[string]models.Reservation),
	}
}

// CreateParticipant 创建用户
func (db *MemoryDatabase) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := normalizeEmail(p.Email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.emails[email]; exists {
		return ErrAlreadyExists
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if _, exists := db.participants[p.ID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	p.Email = email
	p.ActiveReservationID = nil
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	db.participants[p.ID] = p.Clone()
	db.emails[email] = p.ID
	return nil
}

// GetParticipantByID 根据ID获取用户
func (db *MemoryDatabase) GetParticipantByID(ctx context.Context, id string) (*models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := p.Clone()
	return &out, nil
}

// GetParticipantByEmail 根据邮箱获取用户
func (db *MemoryDatabase) GetParticipantByEmail(ctx context.Context, email string) (*models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	id, ok := db.emails[normalizeEmail(email)]
	db.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return db.GetParticipantByID(ctx, id)
}

// UpdateParticipantProfile 更新用户资料（仅 name / phone）
func (db *MemoryDatabase) UpdateParticipantProfile(ctx context.Context, id, name, phone string) (*models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	p, ok := db.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Name = name
	p.Phone = phone
	p.UpdatedAt = time.Now().UTC()
	db.participants[id] = p

	out := p.Clone()
	return &out, nil
}

// CreateTable 创建桌位
func (db *MemoryDatabase) CreateTable(ctx context.Context, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.numbers[t.Number]; exists {
		return ErrAlreadyExists
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.Status = models.TableFree
	t.Occupants = []string{}
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	db.tables[t.ID] = t.Clone()
	db.numbers[t.Number] = t.ID
	return nil
}

// GetTable 获取桌位
func (db *MemoryDatabase) GetTable(ctx context.Context, id string) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tables[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := t.Clone()
	return &out, nil
}

// ListTables 按桌号排序列出所有桌位
func (db *MemoryDatabase) ListTables(ctx context.Context) ([]models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	tables := make([]models.Table, 0, len(db.tables))
	for _, t := range db.tables {
		tables = append(tables, t.Clone())
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
	return tables, nil
}

// CountTables 桌位数量
func (db *MemoryDatabase) CountTables(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.tables), nil
}

// GetReservation 获取预订
func (db *MemoryDatabase) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// GetReservations returns the reservations that exist among ids, in id order.
func (db *MemoryDatabase) GetReservations(ctx context.Context, ids []string) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.Reservation, 0, len(ids))
	for _, id := range ids {
		if r, ok := db.reservations[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListReservationsByParticipant 列出用户的预订（最新在前）
func (db *MemoryDatabase) ListReservationsByParticipant(ctx context.Context, participantID string) ([]models.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.reservationsOfLocked(participantID), nil
}

// ListTablesWithBookings 桌位及其占用预订，在同一把读锁内读取
func (db *MemoryDatabase) ListTablesWithBookings(ctx context.Context) ([]models.TableWithBookings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.TableWithBookings, 0, len(db.tables))
	for _, t := range db.tables {
		bookings := make([]models.Reservation, 0, len(t.Occupants))
		for _, id := range t.Occupants {
			if r, ok := db.reservations[id]; ok {
				bookings = append(bookings, r)
			}
		}
		out = append(out, models.TableWithBookings{Table: t.Clone(), CurrentBookings: bookings})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// ListReservationsWithTables 用户的预订及所在桌位（最新在前），在同一把读锁内读取
func (db *MemoryDatabase) ListReservationsWithTables(ctx context.Context, participantID string) ([]models.ReservationWithTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	reservations := db.reservationsOfLocked(participantID)
	out := make([]models.ReservationWithTable, 0, len(reservations))
	for _, r := range reservations {
		item := models.ReservationWithTable{Reservation: r}
		if t, ok := db.tables[r.TableID]; ok {
			table := t.Clone()
			item.Table = &table
		}
		out = append(out, item)
	}
	return out, nil
}

// reservationsOfLocked requires db.mu held.
func (db *MemoryDatabase) reservationsOfLocked(participantID string) []models.Reservation {
	var out []models.Reservation
	for _, r := range db.reservations {
		if r.ParticipantID == participantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ApplyBooking 原子地提交一次预订/取消
func (db *MemoryDatabase) ApplyBooking(ctx context.Context, c BookingCommit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// 先检查全部前置条件，任何一项失败都不修改数据
	table, ok := db.tables[c.Table.ID]
	if !ok {
		return ErrNotFound
	}
	if table.Version != c.Table.Version {
		return ErrVersionConflict
	}
	participant, ok := db.participants[c.Participant.ID]
	if !ok {
		return ErrNotFound
	}
	if participant.Version != c.Participant.Version {
		return ErrVersionConflict
	}
	if c.Create != nil {
		if _, exists := db.reservations[c.Create.ID]; exists {
			return ErrAlreadyExists
		}
	}
	for _, tr := range c.Transitions {
		r, ok := db.reservations[tr.ReservationID]
		if !ok {
			if c.Create != nil && c.Create.ID == tr.ReservationID {
				continue
			}
			return ErrNotFound
		}
		if r.Status != tr.From {
			return ErrVersionConflict
		}
	}

	now := time.Now().UTC()

	table.Status = c.Table.Status
	table.Occupants = append([]string{}, c.Table.Occupants...)
	table.Version++
	table.UpdatedAt = now
	db.tables[table.ID] = table

	participant.ActiveReservationID = nil
	if c.Participant.ActiveReservationID != nil {
		id := *c.Participant.ActiveReservationID
		participant.ActiveReservationID = &id
	}
	participant.Version++
	participant.UpdatedAt = now
	db.participants[participant.ID] = participant

	if c.Create != nil {
		r := *c.Create
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		db.reservations[r.ID] = r
	}
	for _, tr := range c.Transitions {
		r := db.reservations[tr.ReservationID]
		r.Status = tr.To
		r.UpdatedAt = now
		db.reservations[r.ID] = r
	}
	return nil
}

// HealthCheck 健康检查
func (db *MemoryDatabase) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close 关闭连接（内存数据库无需关闭）
func (db *MemoryDatabase) Close() error {
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ DatabaseInterface = (*MemoryDatabase)(nil)
