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

// CreateEventInput 创建活动参数
type CreateEventInput struct {
	MinistryID  string     `json:"ministry_id" validate:"required,uuid"`
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	StartsAt    *time.Time `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at"`
	Location    string     `json:"location" validate:"max=300"`
}

// EventPatch carries the fields an edit changes; nil means unchanged.
// ClearEndsAt removes the end time.
type EventPatch struct {
	Name        *string    `json:"name" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	ClearEndsAt bool       `json:"clear_ends_at"`
	Location    *string    `json:"location" validate:"omitempty,max=300"`
	Active      *bool      `json:"active"`
}

// EventService 活动审批工作流
type EventService struct {
	db     database.DatabaseInterface
	authz  *Authorizer
	logger *slog.Logger
	now    func() time.Time
}

// NewEventService 创建活动服务；now 为空时使用系统时间
func NewEventService(db database.DatabaseInterface, logger *slog.Logger, now func() time.Time) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{db: db, authz: NewAuthorizer(db), logger: logger, now: now}
}

// Create 创建活动（初始状态 PENDING）
func (s *EventService) Create(ctx context.Context, p *models.Principal, in CreateEventInput) (*models.Event, error) {
	ministry, err := s.loadMinistry(ctx, in.MinistryID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, p, ActionCreateEvent, ministry.ID); err != nil {
		return nil, err
	}
	if !ministry.Active {
		return nil, validationf("ministry_id", "ministry %q is disabled", ministry.Name)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationf("name", "name is required")
	}
	if in.StartsAt == nil || in.StartsAt.IsZero() {
		return nil, validationf("starts_at", "start time is required")
	}
	if err := s.checkNotPast(*in.StartsAt); err != nil {
		return nil, err
	}
	if err := checkTimeOrder(*in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:          uuid.New().String(),
		MinistryID:  ministry.ID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      utcPtr(in.EndsAt),
		Location:    strings.TrimSpace(in.Location),
		Active:      true,
		State:       models.EventPending,
		Version:     1,
	}
	err = s.db.CreateEvent(ctx, event)
	switch {
	case errors.Is(err, database.ErrMinistryInactive):
		return nil, validationf("ministry_id", "ministry %q is disabled", ministry.Name)
	case errors.Is(err, database.ErrNotFound):
		return nil, validationf("ministry_id", "ministry %s does not exist", ministry.ID)
	case err != nil:
		return nil, internal("create event", err)
	}

	s.logger.Info("event created", "event_id", event.ID, "ministry_id", event.MinistryID, "by", p.IdentityID)
	return event, nil
}

// Edit 修改尚未审批的活动，状态不变
func (s *EventService) Edit(ctx context.Context, p *models.Principal, eventID string, patch EventPatch) (*models.Event, error) {
	return s.transition(ctx, p, eventID, ActionEditEvent, models.EventState.Editable, func(e *models.Event) error {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return validationf("name", "name cannot be empty")
			}
			e.Name = name
		}
		if patch.Description != nil {
			e.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Location != nil {
			e.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.Active != nil {
			e.Active = *patch.Active
		}
		if patch.StartsAt != nil {
			if patch.StartsAt.IsZero() {
				return validationf("starts_at", "start time is required")
			}
			if !patch.StartsAt.Equal(e.StartsAt) {
				if err := s.checkNotPast(*patch.StartsAt); err != nil {
					return err
				}
			}
			e.StartsAt = patch.StartsAt.UTC()
		}
		switch {
		case patch.ClearEndsAt:
			e.EndsAt = nil
		case patch.EndsAt != nil:
			e.EndsAt = utcPtr(patch.EndsAt)
		}
		return checkTimeOrder(e.StartsAt, e.EndsAt)
	})
}

// RequestReview 事工领袖提交审核：PENDING → IN_REVIEW
func (s *EventService) RequestReview(ctx context.Context, p *models.Principal, eventID string) (*models.Event, error) {
	return s.transition(ctx, p, eventID, ActionRequestReview, only(models.EventPending), func(e *models.Event) error {
		e.State = models.EventInReview
		return nil
	})
}

// Decide 牧师审批：IN_REVIEW → APPROVED / REJECTED（拒绝必须填写原因）
func (s *EventService) Decide(ctx context.Context, p *models.Principal, eventID string, approve bool, reason string) (*models.Event, error) {
	return s.transition(ctx, p, eventID, ActionDecideEvent, only(models.EventInReview), func(e *models.Event) error {
		if approve {
			e.State = models.EventApproved
			e.RejectionReason = nil
			return nil
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return validationf("reason", "a reason is required to reject an event")
		}
		e.State = models.EventRejected
		e.RejectionReason = &reason
		return nil
	})
}

// Cancel 取消活动：PENDING / IN_REVIEW / APPROVED → CANCELLED
func (s *EventService) Cancel(ctx context.Context, p *models.Principal, eventID string) (*models.Event, error) {
	return s.transition(ctx, p, eventID, ActionCancelEvent, models.EventState.Scheduled, func(e *models.Event) error {
		e.State = models.EventCancelled
		return nil
	})
}

// Get 获取单个活动
func (s *EventService) Get(ctx context.Context, eventID string) (*models.Event, error) {
	return s.loadEvent(ctx, eventID)
}

// ListByMinistry 按开始时间升序列出事工的活动
func (s *EventService) ListByMinistry(ctx context.Context, ministryID string) ([]models.Event, error) {
	ministry, err := s.loadMinistry(ctx, ministryID)
	if err != nil {
		return nil, err
	}
	events, err := s.db.ListEventsByMinistry(ctx, ministry.ID)
	if err != nil {
		return nil, internal("list events", err)
	}
	return events, nil
}

// transition loads the event, authorizes the caller, checks the source
// state, applies the change and writes it back conditioned on the state and
// version that were read.
func (s *EventService) transition(
	ctx context.Context,
	p *models.Principal,
	eventID string,
	action Action,
	allowed func(models.EventState) bool,
	apply func(e *models.Event) error,
) (*models.Event, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, p, action, event.MinistryID); err != nil {
		return nil, err
	}
	if !allowed(event.State) {
		return nil, invalidState(string(action), event.State)
	}

	fromState, fromVersion := event.State, event.Version
	if err := apply(event); err != nil {
		return nil, err
	}

	if err := s.db.UpdateEvent(ctx, event, fromState, fromVersion); err != nil {
		if errors.Is(err, database.ErrStaleWrite) {
			s.logger.Warn("event changed concurrently", "event_id", event.ID, "action", action, "expected_state", fromState, "expected_version", fromVersion)
			return nil, &ConflictError{Resource: "event", Message: "the event was modified by someone else; reload it and try again"}
		}
		return nil, internal(string(action), err)
	}

	s.logger.Info("event updated", "event_id", event.ID, "action", action, "from", fromState, "to", event.State, "by", p.IdentityID)
	return event, nil
}

func (s *EventService) loadEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if err := requireID("event_id", eventID); err != nil {
		return nil, err
	}
	event, err := s.db.GetEvent(ctx, eventID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, validationf("event_id", "event %s does not exist", eventID)
	}
	if err != nil {
		return nil, internal("load event", err)
	}
	return event, nil
}

func (s *EventService) loadMinistry(ctx context.Context, ministryID string) (*models.Ministry, error) {
	return loadMinistry(ctx, s.db, ministryID)
}

func (s *EventService) checkNotPast(start time.Time) error {
	if start.Before(s.now()) {
		return validationf("starts_at", "start time cannot be in the past")
	}
	return nil
}

func checkTimeOrder(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return validationf("ends_at", "end time must be after the start time")
	}
	return nil
}

func only(states ...models.EventState) func(models.EventState) bool {
	return func(s models.EventState) bool {
		for _, st := range states {
			if s == st {
				return true
			}
		}
		return false
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// requireID 校验 UUID 格式的标识
func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationf(field, "%s is required", field)
	}
	if _, err := uuid.Parse(id); err != nil {
		return validationf(field, "%s is not a valid id", field)
	}
	return nil
}

func loadMinistry(ctx context.Context, db database.DatabaseInterface, ministryID string) (*models.Ministry, error) {
	if err := requireID("ministry_id", ministryID); err != nil {
		return nil, err
	}
	ministry, err := db.GetMinistry(ctx, ministryID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, validationf("ministry_id", "ministry %s does not exist", ministryID)
	}
	if err != nil {
		return nil, internal("load ministry", err)
	}
	return ministry, nil
}
