package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMinistry(t *testing.T) {
	f := newFixture(t)

	m, err := f.ministries.Create(f.ctx, f.pastor, MinistryInput{Name: "  Alabanza ", Description: "Música"})
	require.NoError(t, err)
	assert.Equal(t, "Alabanza", m.Name)
	assert.True(t, m.Active)
	assert.Equal(t, f.pastor.IdentityID, m.CreatedBy)
	assert.Empty(t, m.Leaders)

	_, err = f.ministries.Create(f.ctx, f.pastor, MinistryInput{Name: "Alabanza"})
	var cErr *ConflictError
	require.ErrorAs(t, err, &cErr)

	// 名称区分大小写
	_, err = f.ministries.Create(f.ctx, f.pastor, MinistryInput{Name: "alabanza"})
	assert.NoError(t, err)

	_, err = f.ministries.Create(f.ctx, f.pastor, MinistryInput{Name: " "})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)
}

func TestMinistryAdministrationIsPastorOnly(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")
	leader := f.leaderOf(t, m, "Ana", "Torres")
	name := "Juventud"

	var fErr *ForbiddenError
	_, err := f.ministries.Create(f.ctx, leader, MinistryInput{Name: "Otro"})
	require.ErrorAs(t, err, &fErr)
	_, err = f.ministries.Update(f.ctx, leader, m.ID, MinistryPatch{Name: &name})
	require.ErrorAs(t, err, &fErr)
	_, err = f.ministries.Disable(f.ctx, leader, m.ID)
	require.ErrorAs(t, err, &fErr)
}

func TestUpdateMinistryRename(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")
	f.ministry(t, "Niños")

	taken := "Niños"
	_, err := f.ministries.Update(f.ctx, f.pastor, m.ID, MinistryPatch{Name: &taken})
	var cErr *ConflictError
	require.ErrorAs(t, err, &cErr)

	same := "Jóvenes"
	desc := "Grupo de 15 a 25 años"
	updated, err := f.ministries.Update(f.ctx, f.pastor, m.ID, MinistryPatch{Name: &same, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	renamed := "Juventud"
	updated, err = f.ministries.Update(f.ctx, f.pastor, m.ID, MinistryPatch{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Juventud", updated.Name)

	got, err := f.ministries.Get(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Juventud", got.Name)
}

func TestDisableMinistryWithScheduledEvents(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")
	e := f.event(t, f.pastor, m)

	_, err := f.ministries.Disable(f.ctx, f.pastor, m.ID)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	_, err = f.events.Cancel(f.ctx, f.pastor, e.ID)
	require.NoError(t, err)

	disabled, err := f.ministries.Disable(f.ctx, f.pastor, m.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Active)

	_, err = f.events.Create(f.ctx, f.pastor, CreateEventInput{MinistryID: m.ID, Name: "Reunión", StartsAt: f.at(time.Hour)})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	enabled, err := f.ministries.Enable(f.ctx, f.pastor, m.ID)
	require.NoError(t, err)
	assert.True(t, enabled.Active)
}

func TestDisableMinistryIgnoresPastEvents(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")
	f.event(t, f.pastor, m)

	f.now = f.now.Add(48 * time.Hour)
	disabled, err := f.ministries.Disable(f.ctx, f.pastor, m.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Active)
}

func TestListMinistriesIncludesLeaders(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")
	f.ministry(t, "Alabanza")
	leader := f.leaderOf(t, m, "Ana", "Torres")

	list, err := f.ministries.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alabanza", list[0].Name)
	assert.Empty(t, list[0].Leaders)
	require.Len(t, list[1].Leaders, 1)
	assert.Equal(t, leader.IdentityID, list[1].Leaders[0].IdentityID)
}

// interleavingStore runs race once right before the wrapped write, so the
// competing operation commits between the service's checks and its write.
type interleavingStore struct {
	database.DatabaseInterface
	once sync.Once
	race func()
}

func (s *interleavingStore) CreateEvent(ctx context.Context, e *models.Event) error {
	s.once.Do(s.race)
	return s.DatabaseInterface.CreateEvent(ctx, e)
}

func (s *interleavingStore) DisableMinistry(ctx context.Context, ministryID string, from time.Time) error {
	s.once.Do(s.race)
	return s.DatabaseInterface.DisableMinistry(ctx, ministryID, from)
}

func TestCreateEventAfterConcurrentDisable(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")

	store := &interleavingStore{DatabaseInterface: f.db, race: func() {
		_, err := f.ministries.Disable(f.ctx, f.pastor, m.ID)
		require.NoError(t, err)
	}}
	events := NewEventService(store, quietLogger(), func() time.Time { return f.now })

	_, err := events.Create(f.ctx, f.pastor, CreateEventInput{MinistryID: m.ID, Name: "Vigilia", StartsAt: f.at(time.Hour)})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "ministry_id", vErr.Field)

	list, err := f.events.ListByMinistry(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDisableAfterConcurrentEventCreate(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")

	store := &interleavingStore{DatabaseInterface: f.db, race: func() {
		f.event(t, f.pastor, m)
	}}
	ministries := NewMinistryService(store, quietLogger(), func() time.Time { return f.now })

	_, err := ministries.Disable(f.ctx, f.pastor, m.ID)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "HAS_SCHEDULED_EVENTS", stateErr.State)

	got, err := f.ministries.Get(f.ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}
