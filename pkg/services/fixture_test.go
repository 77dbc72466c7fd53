package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx        context.Context
	db         *database.LocalDatabase
	now        time.Time
	events     *EventService
	leadership *LeadershipService
	ministries *MinistryService
	people     *PeopleService
	auth       *AuthService
	pastor     *models.Principal
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewLocalDatabase("")
	require.NoError(t, err)

	f := &fixture{ctx: context.Background(), db: db, now: testNow}
	clock := func() time.Time { return f.now }
	logger := quietLogger()

	f.events = NewEventService(db, logger, clock)
	f.leadership = NewLeadershipService(db, logger, bcrypt.MinCost)
	f.ministries = NewMinistryService(db, logger, clock)
	f.people = NewPeopleService(db, logger)
	f.auth = NewAuthService(db, logger, bcrypt.MinCost)
	f.pastor = f.identity(t, f.person(t, "Pedro", "Almeida"), models.RolePastor)
	return f
}

// person 创建资料完整的人员，可通过 mutate 修改字段
func (f *fixture) person(t *testing.T, names, surnames string, mutate ...func(*models.Person)) *models.Person {
	t.Helper()
	birth := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)
	p := &models.Person{
		ID:         uuid.New().String(),
		Names:      names,
		Surnames:   surnames,
		NationalID: uuid.New().String()[:10],
		Email:      uuid.New().String()[:8] + "@example.org",
		Phone:      "+593 99 123 4567",
		Gender:     "F",
		BirthDate:  &birth,
		Address:    "Av. Amazonas 123",
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(t, f.db.CreatePerson(f.ctx, p))
	return p
}

func (f *fixture) identity(t *testing.T, p *models.Person, role models.Role) *models.Principal {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(p.NationalID), bcrypt.MinCost)
	require.NoError(t, err)
	it := &models.Identity{
		ID:           uuid.New().String(),
		PersonID:     p.ID,
		Handle:       HandleBase(p.Names, p.Surnames) + "-" + uuid.New().String()[:4],
		PasswordHash: string(hash),
		Active:       true,
		Role:         role,
	}
	require.NoError(t, f.db.CreateIdentity(f.ctx, it))
	return &models.Principal{IdentityID: it.ID, Handle: it.Handle, Role: role}
}

func (f *fixture) ministry(t *testing.T, name string) *models.Ministry {
	t.Helper()
	m, err := f.ministries.Create(f.ctx, f.pastor, MinistryInput{Name: name})
	require.NoError(t, err)
	return m
}

// leaderOf 创建领袖身份并关联到事工
func (f *fixture) leaderOf(t *testing.T, m *models.Ministry, names, surnames string) *models.Principal {
	t.Helper()
	p := f.identity(t, f.person(t, names, surnames), models.RoleLeader)
	_, err := f.leadership.AssignLeaders(f.ctx, f.pastor, m.ID, []string{p.IdentityID})
	require.NoError(t, err)
	return p
}

func (f *fixture) at(d time.Duration) *time.Time {
	t := f.now.Add(d)
	return &t
}

func (f *fixture) event(t *testing.T, by *models.Principal, m *models.Ministry) *models.Event {
	t.Helper()
	e, err := f.events.Create(f.ctx, by, CreateEventInput{
		MinistryID: m.ID,
		Name:       "Vigilia de oración",
		StartsAt:   f.at(time.Hour),
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) stored(t *testing.T, eventID string) *models.Event {
	t.Helper()
	e, err := f.db.GetEvent(f.ctx, eventID)
	require.NoError(t, err)
	return e
}

func (f *fixture) leaderIDs(t *testing.T, ministryID string) []string {
	t.Helper()
	m, err := f.db.GetMinistry(f.ctx, ministryID)
	require.NoError(t, err)
	ids := []string{}
	for _, l := range m.Leaders {
		ids = append(ids, l.IdentityID)
	}
	return ids
}
