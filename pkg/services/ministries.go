package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/models"

	"github.com/google/uuid"
)

// MinistryInput 创建事工参数
type MinistryInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	LogoURL     string `json:"logo_url" validate:"omitempty,url"`
}

// MinistryPatch 修改事工参数；nil 表示不变
type MinistryPatch struct {
	Name        *string `json:"name" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	LogoURL     *string `json:"logo_url" validate:"omitempty,url"`
}

// MinistryService 事工管理
type MinistryService struct {
	db     database.DatabaseInterface
	authz  *Authorizer
	logger *slog.Logger
	now    func() time.Time
}

// NewMinistryService 创建事工服务
func NewMinistryService(db database.DatabaseInterface, logger *slog.Logger, now func() time.Time) *MinistryService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &MinistryService{db: db, authz: NewAuthorizer(db), logger: logger, now: now}
}

// Create 创建事工（名称唯一）
func (s *MinistryService) Create(ctx context.Context, p *models.Principal, in MinistryInput) (*models.Ministry, error) {
	if err := s.authz.Authorize(ctx, p, ActionManageMinistry, ""); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationf("name", "name is required")
	}
	if err := s.checkNameFree(ctx, name, ""); err != nil {
		return nil, err
	}

	m := &models.Ministry{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		LogoURL:     strings.TrimSpace(in.LogoURL),
		Active:      true,
		CreatedBy:   p.IdentityID,
	}
	if err := s.db.CreateMinistry(ctx, m); err != nil {
		return nil, s.writeError("create ministry", name, err)
	}

	s.logger.Info("ministry created", "ministry_id", m.ID, "name", m.Name, "by", p.IdentityID)
	return m, nil
}

// Update 修改事工资料
func (s *MinistryService) Update(ctx context.Context, p *models.Principal, ministryID string, patch MinistryPatch) (*models.Ministry, error) {
	m, err := loadMinistry(ctx, s.db, ministryID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, p, ActionManageMinistry, m.ID); err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, validationf("name", "name cannot be empty")
		}
		if name != m.Name {
			if err := s.checkNameFree(ctx, name, m.ID); err != nil {
				return nil, err
			}
		}
		m.Name = name
	}
	if patch.Description != nil {
		m.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.LogoURL != nil {
		m.LogoURL = strings.TrimSpace(*patch.LogoURL)
	}

	if err := s.db.UpdateMinistry(ctx, m); err != nil {
		return nil, s.writeError("update ministry", m.Name, err)
	}
	return m, nil
}

// Disable 停用事工；仍有待举行的活动时拒绝
func (s *MinistryService) Disable(ctx context.Context, p *models.Principal, ministryID string) (*models.Ministry, error) {
	m, err := loadMinistry(ctx, s.db, ministryID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, p, ActionManageMinistry, m.ID); err != nil {
		return nil, err
	}
	if !m.Active {
		return m, nil
	}

	// 检查与写入在存储层同一事务内完成，与并发的活动创建串行化
	err = s.db.DisableMinistry(ctx, m.ID, s.now())
	if errors.Is(err, database.ErrHasScheduledEvents) {
		return nil, &InvalidStateError{Action: "disable ministry", State: "HAS_SCHEDULED_EVENTS"}
	}
	if err != nil {
		return nil, s.writeError("disable ministry", m.Name, err)
	}
	return s.statusChanged(ctx, p, m.ID, false)
}

// Enable 重新启用事工
func (s *MinistryService) Enable(ctx context.Context, p *models.Principal, ministryID string) (*models.Ministry, error) {
	m, err := loadMinistry(ctx, s.db, ministryID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, p, ActionManageMinistry, m.ID); err != nil {
		return nil, err
	}
	if m.Active {
		return m, nil
	}
	if err := s.db.EnableMinistry(ctx, m.ID); err != nil {
		return nil, s.writeError("enable ministry", m.Name, err)
	}
	return s.statusChanged(ctx, p, m.ID, true)
}

// Get 获取事工（含领袖）
func (s *MinistryService) Get(ctx context.Context, ministryID string) (*models.Ministry, error) {
	return loadMinistry(ctx, s.db, ministryID)
}

// List 列出所有事工（含领袖）
func (s *MinistryService) List(ctx context.Context) ([]models.Ministry, error) {
	ministries, err := s.db.ListMinistries(ctx)
	if err != nil {
		return nil, internal("list ministries", err)
	}
	return ministries, nil
}

func (s *MinistryService) statusChanged(ctx context.Context, p *models.Principal, ministryID string, active bool) (*models.Ministry, error) {
	s.logger.Info("ministry status changed", "ministry_id", ministryID, "active", active, "by", p.IdentityID)
	return loadMinistry(ctx, s.db, ministryID)
}

func (s *MinistryService) checkNameFree(ctx context.Context, name, exceptID string) error {
	existing, err := s.db.GetMinistryByName(ctx, name)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil
	case err != nil:
		return internal("check ministry name", err)
	case existing.ID != exceptID:
		return &ConflictError{Resource: "ministry", Message: "a ministry named " + name + " already exists"}
	}
	return nil
}

func (s *MinistryService) writeError(op, name string, err error) error {
	switch {
	case errors.Is(err, database.ErrDuplicateName):
		return &ConflictError{Resource: "ministry", Message: "a ministry named " + name + " already exists"}
	case errors.Is(err, database.ErrNotFound):
		return &ConflictError{Resource: "ministry", Message: "the ministry was removed; reload and try again"}
	}
	return internal(op, err)
}
