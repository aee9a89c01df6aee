package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"singles-table-backend/pkg/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists 唯一约束冲突（如重复邮箱、重复桌号）
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict 条件写入失败：记录在读取后已被其他请求修改
	ErrVersionConflict = errors.New("version conflict")
)

// DatabaseInterface 定义数据库访问接口
//
// Participant / table / reservation rows are passive storage. The booking
// engine owns Table.Status, Table.Occupants, Participant.ActiveReservationID
// and Reservation.Status and changes them only through ApplyBooking.
type DatabaseInterface interface {
	// 用户管理
	CreateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipantByID(ctx context.Context, id string) (*models.Participant, error)
	GetParticipantByEmail(ctx context.Context, email string) (*models.Participant, error)
	// UpdateParticipantProfile writes name and phone only.
	UpdateParticipantProfile(ctx context.Context, id, name, phone string) (*models.Participant, error)

	// 桌位管理
	CreateTable(ctx context.Context, t *models.Table) error
	GetTable(ctx context.Context, id string) (*models.Table, error)
	ListTables(ctx context.Context) ([]models.Table, error)
	CountTables(ctx context.Context) (int, error)

	// 预订查询
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservations(ctx context.Context, ids []string) ([]models.Reservation, error)
	ListReservationsByParticipant(ctx context.Context, participantID string) ([]models.Reservation, error)

	// 读视图：桌位与预订来自同一快照，不会看到提交了一半的配对
	ListTablesWithBookings(ctx context.Context) ([]models.TableWithBookings, error)
	ListReservationsWithTables(ctx context.Context, participantID string) ([]models.ReservationWithTable, error)

	// ApplyBooking commits a BookingCommit atomically or not at all.
	ApplyBooking(ctx context.Context, c BookingCommit) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// BookingCommit is the full write set of one reserve or cancel.
//
// Table.Version and Participant.Version carry the versions the caller read;
// the commit fails with ErrVersionConflict if either moved. Each status
// transition also requires the reservation to still be in From.
type BookingCommit struct {
	Table       models.Table
	Participant ParticipantPointer
	Create      *models.Reservation
	Transitions []StatusTransition
}

// ParticipantPointer is the new active reservation pointer of one participant.
type ParticipantPointer struct {
	ID                  string
	Version             int64
	ActiveReservationID *string
}

// StatusTransition moves one reservation from From to To.
type StatusTransition struct {
	ReservationID string
	From          models.ReservationStatus
	To            models.ReservationStatus
}

// Validate rejects commits that could never be applied.
func (c BookingCommit) Validate() error {
	if strings.TrimSpace(c.Table.ID) == "" {
		return fmt.Errorf("commit: table id is required")
	}
	if strings.TrimSpace(c.Participant.ID) == "" {
		return fmt.Errorf("commit: participant id is required")
	}
	if len(c.Table.Occupants) > models.TableCapacity {
		return fmt.Errorf("commit: table %s would hold %d occupants", c.Table.ID, len(c.Table.Occupants))
	}
	if c.Create != nil && c.Create.ID == "" {
		return fmt.Errorf("commit: reservation id is required")
	}
	return nil
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver      string // memory | sqlite | postgres
	SQLitePath  string
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	switch strings.ToLower(strings.TrimSpace(config.Driver)) {
	case "memory":
		fmt.Printf("🧰  Using in-memory database\n")
		return NewMemoryDatabase(), nil
	case "", "sqlite":
		fmt.Printf("🗄️  Using SQLite database at %s\n", config.SQLitePath)
		db, err := OpenSQLite(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres", "postgresql":
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres driver")
		}
		fmt.Printf("🌐  Using PostgreSQL database\n")
		db, err := OpenPostgres(config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}
