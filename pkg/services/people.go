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

// PersonInput 人员资料；按原样保存，只做格式校验
type PersonInput struct {
	Names          string     `json:"names" validate:"required,max=120"`
	Surnames       string     `json:"surnames" validate:"required,max=120"`
	NationalID     string     `json:"national_id" validate:"required,max=30"`
	Email          string     `json:"email" validate:"omitempty,email"`
	Phone          string     `json:"phone" validate:"max=30"`
	Gender         string     `json:"gender" validate:"max=20"`
	BirthDate      *time.Time `json:"birth_date"`
	Address        string     `json:"address" validate:"max=300"`
	EducationLevel string     `json:"education_level" validate:"max=120"`
	Occupation     string     `json:"occupation" validate:"max=120"`
}

// PeopleService 人员资料管理
type PeopleService struct {
	db     database.DatabaseInterface
	authz  *Authorizer
	logger *slog.Logger
}

// NewPeopleService 创建人员服务
func NewPeopleService(db database.DatabaseInterface, logger *slog.Logger) *PeopleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeopleService{db: db, authz: NewAuthorizer(db), logger: logger}
}

// Create 新增人员
func (s *PeopleService) Create(ctx context.Context, p *models.Principal, in PersonInput) (*models.Person, error) {
	if err := s.authz.Authorize(ctx, p, ActionManagePeople, ""); err != nil {
		return nil, err
	}
	person := &models.Person{ID: uuid.New().String()}
	in.apply(person)
	if err := s.db.CreatePerson(ctx, person); err != nil {
		return nil, internal("create person", err)
	}
	s.logger.Info("person created", "person_id", person.ID, "by", p.IdentityID)
	return person, nil
}

// Update 覆盖人员资料
func (s *PeopleService) Update(ctx context.Context, p *models.Principal, personID string, in PersonInput) (*models.Person, error) {
	person, err := s.Get(ctx, personID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, p, ActionManagePeople, ""); err != nil {
		return nil, err
	}
	in.apply(person)
	if err := s.db.UpdatePerson(ctx, person); err != nil {
		return nil, internal("update person", err)
	}
	return person, nil
}

// Get 获取人员
func (s *PeopleService) Get(ctx context.Context, personID string) (*models.Person, error) {
	if err := requireID("person_id", personID); err != nil {
		return nil, err
	}
	person, err := s.db.GetPerson(ctx, personID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, validationf("person_id", "person %s does not exist", personID)
	}
	if err != nil {
		return nil, internal("load person", err)
	}
	return person, nil
}

// List 列出所有人员
func (s *PeopleService) List(ctx context.Context) ([]models.Person, error) {
	people, err := s.db.ListPeople(ctx)
	if err != nil {
		return nil, internal("list people", err)
	}
	return people, nil
}

func (in PersonInput) apply(p *models.Person) {
	p.Names = strings.TrimSpace(in.Names)
	p.Surnames = strings.TrimSpace(in.Surnames)
	p.NationalID = strings.TrimSpace(in.NationalID)
	p.Email = strings.TrimSpace(in.Email)
	p.Phone = strings.TrimSpace(in.Phone)
	p.Gender = strings.TrimSpace(in.Gender)
	p.BirthDate = in.BirthDate
	p.Address = strings.TrimSpace(in.Address)
	p.EducationLevel = strings.TrimSpace(in.EducationLevel)
	p.Occupation = strings.TrimSpace(in.Occupation)
}
