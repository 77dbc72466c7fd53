package services

import (
	"testing"

	"church-admin-backend/pkg/models"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	m := f.ministry(t, "Jóvenes")
	leader := f.leaderOf(t, m, "Ana", "Torres")
	outsider := f.identity(t, f.person(t, "Luis", "Mora"), models.RoleLeader)
	authz := NewAuthorizer(f.db)

	tests := []struct {
		action   Action
		pastor   bool
		leader   bool
		outsider bool
	}{
		{ActionCreateEvent, true, true, false},
		{ActionEditEvent, true, true, false},
		{ActionRequestReview, false, true, false},
		{ActionDecideEvent, true, false, false},
		{ActionCancelEvent, true, true, false},
		{ActionAssignLeaders, true, false, false},
		{ActionPromoteToRole, true, false, false},
		{ActionManageMinistry, true, false, false},
		{ActionManagePeople, true, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			for caller, want := range map[*models.Principal]bool{f.pastor: tt.pastor, leader: tt.leader, outsider: tt.outsider} {
				err := authz.Authorize(f.ctx, caller, tt.action, m.ID)
				if want {
					assert.NoError(t, err, caller.Handle)
				} else {
					var fErr *ForbiddenError
					assert.ErrorAs(t, err, &fErr, caller.Handle)
				}
			}
		})
	}
}

func TestAuthorizeRejectsMissingOrInvalidPrincipal(t *testing.T) {
	f := newFixture(t)
	authz := NewAuthorizer(f.db)

	for _, p := range []*models.Principal{nil, {}, {IdentityID: "x", Role: models.Role("admin")}} {
		err := authz.Authorize(f.ctx, p, ActionCreateEvent, "")
		var fErr *ForbiddenError
		assert.ErrorAs(t, err, &fErr)
		assert.Equal(t, CodeForbidden, ErrorCode(err))
	}
}
