package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"church-admin-backend/pkg/models"
)

// 存储层哨兵错误，服务层据此映射到业务错误
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateHandle = errors.New("identity handle already in use")
	ErrDuplicatePerson = errors.New("person already has an identity")
	ErrDuplicateName   = errors.New("ministry name already in use")
	ErrStaleWrite      = errors.New("record changed since it was read")
	ErrTooManyLeaders  = errors.New("ministry leader limit exceeded")

	ErrHasScheduledEvents = errors.New("ministry has scheduled events")
	ErrMinistryInactive   = errors.New("ministry is disabled")
)

// DatabaseInterface 定义数据库访问接口
type DatabaseInterface interface {
	// 人员
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	UpdatePerson(ctx context.Context, p *models.Person) error
	ListPeople(ctx context.Context) ([]models.Person, error)

	// 身份
	// CreateIdentity returns ErrDuplicateHandle or ErrDuplicatePerson when a
	// uniqueness constraint rejects the row.
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentityByID(ctx context.Context, id string) (*models.Identity, error)
	GetIdentityByPerson(ctx context.Context, personID string) (*models.Identity, error)
	// FindIdentityForLogin matches the identifier against the handle, the
	// person's email or the person's national id.
	FindIdentityForLogin(ctx context.Context, identifier string) (*models.IdentityWithPerson, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	UpdateIdentityRole(ctx context.Context, identityID string, role models.Role) error
	// ListIdentitiesWithPeople returns the identities with the given ids, or
	// all identities when ids is nil. Unknown ids are skipped.
	ListIdentitiesWithPeople(ctx context.Context, ids []string) ([]models.IdentityWithPerson, error)

	// 事工
	CreateMinistry(ctx context.Context, m *models.Ministry) error
	GetMinistry(ctx context.Context, id string) (*models.Ministry, error)
	GetMinistryByName(ctx context.Context, name string) (*models.Ministry, error)
	// UpdateMinistry writes name, description and logo. The active flag only
	// changes through DisableMinistry and EnableMinistry.
	UpdateMinistry(ctx context.Context, m *models.Ministry) error
	// DisableMinistry clears the active flag, or returns ErrHasScheduledEvents
	// while an event in PENDING, IN_REVIEW or APPROVED starts at or after from.
	// The check and the write are atomic with respect to CreateEvent.
	DisableMinistry(ctx context.Context, ministryID string, from time.Time) error
	EnableMinistry(ctx context.Context, ministryID string) error
	ListMinistries(ctx context.Context) ([]models.Ministry, error)
	// ReplaceMinistryLeaders swaps the whole leader set in one unit of work.
	// On any error the previous set is left untouched.
	ReplaceMinistryLeaders(ctx context.Context, ministryID string, identityIDs []string) error
	ListLeaderships(ctx context.Context) ([]models.MinistryLeader, error)
	IsMinistryLeader(ctx context.Context, ministryID, identityID string) (bool, error)

	// 活动
	// CreateEvent returns ErrNotFound for an unknown ministry and
	// ErrMinistryInactive for a disabled one.
	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEventsByMinistry(ctx context.Context, ministryID string) ([]models.Event, error)
	// UpdateEvent writes every mutable column of e only if the stored row is
	// still in expectedState at expectedVersion, otherwise ErrStaleWrite.
	// On success e.Version is expectedVersion+1.
	UpdateEvent(ctx context.Context, e *models.Event, expectedState models.EventState, expectedVersion int64) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB   bool
	LocalDataDir string
	PostgresDSN  string
	Debug        bool
}

// NewDatabase 根据配置选择数据库实现
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	if config.PostgresDSN != "" && !config.UseLocalDB {
		db, err := NewPostgresDatabase(config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	if config.UseLocalDB {
		db, err := NewLocalDatabase(config.LocalDataDir)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("no valid database configuration found: set POSTGRES_DSN or USE_LOCAL_DB=true")
}

// IsServerlessEnvironment 检查是否运行在 Vercel / Lambda
func IsServerlessEnvironment() bool {
	return os.Getenv("VERCEL_ENV") != "" || os.Getenv("VERCEL_URL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}
