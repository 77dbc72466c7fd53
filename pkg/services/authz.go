package services

import (
	"context"

	"church-admin-backend/pkg/models"
)

// Action 受角色控制的操作
type Action string

const (
	ActionCreateEvent    Action = "create event"
	ActionEditEvent      Action = "edit event"
	ActionRequestReview  Action = "request review"
	ActionDecideEvent    Action = "decide event"
	ActionCancelEvent    Action = "cancel event"
	ActionAssignLeaders  Action = "assign leaders"
	ActionPromoteToRole  Action = "promote to role"
	ActionManageMinistry Action = "manage ministry"
	ActionManagePeople   Action = "manage people"
)

type audience int

const (
	pastorOnly audience = iota
	ministryLeaderOnly
	ministryLeaderOrPastor
)

var policy = map[Action]audience{
	ActionCreateEvent:    ministryLeaderOrPastor,
	ActionEditEvent:      ministryLeaderOrPastor,
	ActionRequestReview:  ministryLeaderOnly,
	ActionDecideEvent:    pastorOnly,
	ActionCancelEvent:    ministryLeaderOrPastor,
	ActionAssignLeaders:  pastorOnly,
	ActionPromoteToRole:  pastorOnly,
	ActionManageMinistry: pastorOnly,
	ActionManagePeople:   pastorOnly,
}

type leaderChecker interface {
	IsMinistryLeader(ctx context.Context, ministryID, identityID string) (bool, error)
}

// Authorizer is the single authorization predicate every operation goes
// through. "Leader of a ministry" means holding a leadership link to it.
type Authorizer struct {
	leaders leaderChecker
}

// NewAuthorizer 创建授权器
func NewAuthorizer(leaders leaderChecker) *Authorizer {
	return &Authorizer{leaders: leaders}
}

// Authorize returns a *ForbiddenError when p may not perform action on the
// given ministry (ministryID is ignored for pastor-only actions).
func (a *Authorizer) Authorize(ctx context.Context, p *models.Principal, action Action, ministryID string) error {
	if p == nil || p.IdentityID == "" || !p.Role.Valid() {
		return forbidden(string(action), "authentication required")
	}

	aud, ok := policy[action]
	if !ok {
		return forbidden(string(action), "unknown action")
	}

	switch aud {
	case pastorOnly:
		if p.IsPastor() {
			return nil
		}
		return forbidden(string(action), "only a pastor may do this")
	case ministryLeaderOrPastor:
		if p.IsPastor() {
			return nil
		}
	}

	leads, err := a.leaders.IsMinistryLeader(ctx, ministryID, p.IdentityID)
	if err != nil {
		return internal("check ministry leadership", err)
	}
	if !leads {
		if aud == ministryLeaderOnly {
			return forbidden(string(action), "only a leader of this ministry may do this")
		}
		return forbidden(string(action), "only a leader of this ministry or a pastor may do this")
	}
	return nil
}
