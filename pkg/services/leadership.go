package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// maxHandleAttempts bounds the handle suffix search during promotion.
const maxHandleAttempts = 1000

// PromoteResult 角色分配结果；Credential 仅在新建身份时返回一次
type PromoteResult struct {
	IdentityID   string      `json:"identity_id"`
	PersonID     string      `json:"person_id"`
	Handle       string      `json:"handle"`
	Credential   string      `json:"credential,omitempty"`
	Created      bool        `json:"created"`
	PreviousRole models.Role `json:"previous_role,omitempty"`
	NewRole      models.Role `json:"new_role"`
}

// LeaderSummary 领袖及其负责的事工
type LeaderSummary struct {
	models.IdentityWithPerson
	FullName   string            `json:"full_name"`
	Ministries []models.Ministry `json:"ministries"`
}

// LeadershipService 事工领袖完整性引擎
type LeadershipService struct {
	db       database.DatabaseInterface
	authz    *Authorizer
	logger   *slog.Logger
	hashCost int
}

// NewLeadershipService 创建领袖服务；hashCost 为 bcrypt 成本
func NewLeadershipService(db database.DatabaseInterface, logger *slog.Logger, hashCost int) *LeadershipService {
	if logger == nil {
		logger = slog.Default()
	}
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &LeadershipService{db: db, authz: NewAuthorizer(db), logger: logger, hashCost: hashCost}
}

// AssignLeaders replaces the ministry's leader set with identityIDs. Every
// check runs before the store is touched; the store swaps the set atomically.
func (s *LeadershipService) AssignLeaders(ctx context.Context, p *models.Principal, ministryID string, identityIDs []string) (*models.Ministry, error) {
	if err := s.authz.Authorize(ctx, p, ActionAssignLeaders, ministryID); err != nil {
		return nil, err
	}

	switch {
	case len(identityIDs) == 0:
		return nil, validationf("identity_ids", "select at least one leader")
	case len(identityIDs) > models.MaxMinistryLeaders:
		return nil, validationf("identity_ids", "%d leaders exceeds cardinality: a ministry can have at most %d", len(identityIDs), models.MaxMinistryLeaders)
	}
	seen := make(map[string]bool, len(identityIDs))
	for _, id := range identityIDs {
		if err := requireID("identity_ids", id); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, validationf("identity_ids", "identity %s is listed more than once", id)
		}
		seen[id] = true
	}

	ministry, err := loadMinistry(ctx, s.db, ministryID)
	if err != nil {
		return nil, err
	}

	found, err := s.db.ListIdentitiesWithPeople(ctx, identityIDs)
	if err != nil {
		return nil, internal("load identities", err)
	}
	byID := make(map[string]models.IdentityWithPerson, len(found))
	for _, it := range found {
		byID[it.ID] = it
	}

	var incomplete []MissingDetail
	for _, id := range identityIDs {
		it, ok := byID[id]
		if !ok {
			return nil, validationf("identity_ids", "identity %s does not exist", id)
		}
		if !it.Role.Valid() {
			return nil, validationf("identity_ids", "identity %s has no leadership role", id)
		}
		if missing := MissingLeaderFields(&it.Person); len(missing) > 0 {
			incomplete = append(incomplete, MissingDetail{
				IdentityID:    it.ID,
				PersonID:      it.PersonID,
				FullName:      displayName(&it.Person, it.Handle),
				MissingFields: missing,
			})
		}
	}
	if len(incomplete) > 0 {
		return nil, &IncompleteDataError{
			Message: "some selected leaders have incomplete personal data",
			Details: incomplete,
		}
	}

	if err := s.db.ReplaceMinistryLeaders(ctx, ministry.ID, identityIDs); err != nil {
		switch {
		case errors.Is(err, database.ErrTooManyLeaders):
			return nil, validationf("identity_ids", "exceeds cardinality: a ministry can have at most %d leaders", models.MaxMinistryLeaders)
		case errors.Is(err, database.ErrNotFound):
			return nil, &ConflictError{Resource: "ministry", Message: "the ministry or one of the identities was removed; reload and try again"}
		default:
			return nil, internal("replace ministry leaders", err)
		}
	}

	s.logger.Info("ministry leaders replaced", "ministry_id", ministry.ID, "leaders", identityIDs, "by", p.IdentityID)

	updated, err := s.db.GetMinistry(ctx, ministry.ID)
	if err != nil {
		return nil, internal("reload ministry", err)
	}
	return updated, nil
}

// PromoteToRole grants role to the person, creating the login identity on
// first promotion.
func (s *LeadershipService) PromoteToRole(ctx context.Context, p *models.Principal, personID string, role models.Role) (*PromoteResult, error) {
	if err := s.authz.Authorize(ctx, p, ActionPromoteToRole, ""); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, validationf("role", "role must be %q or %q", models.RolePastor, models.RoleLeader)
	}
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

	if missing := MissingLeaderFields(person); len(missing) > 0 {
		return nil, &IncompleteDataError{
			Message: "the person's data is incomplete",
			Details: []MissingDetail{{
				PersonID:      person.ID,
				FullName:      displayName(person, ""),
				MissingFields: missing,
			}},
		}
	}

	existing, err := s.db.GetIdentityByPerson(ctx, person.ID)
	switch {
	case err == nil:
		return s.updateRole(ctx, p, existing, role)
	case !errors.Is(err, database.ErrNotFound):
		return nil, internal("load identity", err)
	}

	return s.createIdentity(ctx, p, person, role)
}

func (s *LeadershipService) updateRole(ctx context.Context, p *models.Principal, identity *models.Identity, role models.Role) (*PromoteResult, error) {
	previous := identity.Role
	if previous != role {
		if err := s.db.UpdateIdentityRole(ctx, identity.ID, role); err != nil {
			return nil, internal("update identity role", err)
		}
		s.logger.Info("identity role updated", "identity_id", identity.ID, "from", previous, "to", role, "by", p.IdentityID)
	}
	return &PromoteResult{
		IdentityID:   identity.ID,
		PersonID:     identity.PersonID,
		Handle:       identity.Handle,
		PreviousRole: previous,
		NewRole:      role,
	}, nil
}

func (s *LeadershipService) createIdentity(ctx context.Context, p *models.Principal, person *models.Person, role models.Role) (*PromoteResult, error) {
	base := HandleBase(person.Names, person.Surnames)
	if base == "" {
		return nil, validationf("names", "cannot derive a login handle from the person's name")
	}

	credential := strings.TrimSpace(person.NationalID)
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.hashCost)
	if err != nil {
		return nil, internal("hash credential", err)
	}

	for suffix := 0; suffix < maxHandleAttempts; suffix++ {
		handle := HandleCandidate(base, suffix)

		taken, err := s.db.HandleExists(ctx, handle)
		if err != nil {
			return nil, internal("check handle", err)
		}
		if taken {
			continue
		}

		identity := &models.Identity{
			ID:           uuid.New().String(),
			PersonID:     person.ID,
			Handle:       handle,
			PasswordHash: string(hash),
			Active:       true,
			Role:         role,
		}
		err = s.db.CreateIdentity(ctx, identity)
		switch {
		case err == nil:
			s.logger.Info("identity created", "identity_id", identity.ID, "person_id", person.ID, "handle", handle, "role", role, "by", p.IdentityID)
			return &PromoteResult{
				IdentityID: identity.ID,
				PersonID:   person.ID,
				Handle:     handle,
				Credential: credential,
				Created:    true,
				NewRole:    role,
			}, nil
		case errors.Is(err, database.ErrDuplicateHandle):
			// 探测与插入之间被并发占用，尝试下一个后缀
			s.logger.Warn("handle taken during insert, trying next suffix", "handle", handle)
			continue
		case errors.Is(err, database.ErrDuplicatePerson):
			return nil, &ConflictError{Resource: "identity", Message: "this person was promoted concurrently; reload and try again"}
		default:
			return nil, internal("create identity", err)
		}
	}

	return nil, &ConflictError{Resource: "identity", Message: fmt.Sprintf("no free login handle found for %q", base)}
}

// ListLeaders 列出所有身份及其负责的事工
func (s *LeadershipService) ListLeaders(ctx context.Context) ([]LeaderSummary, error) {
	identities, err := s.db.ListIdentitiesWithPeople(ctx, nil)
	if err != nil {
		return nil, internal("list identities", err)
	}
	ministries, err := s.db.ListMinistries(ctx)
	if err != nil {
		return nil, internal("list ministries", err)
	}

	led := map[string][]models.Ministry{}
	for _, m := range ministries {
		for _, l := range m.Leaders {
			summary := m
			summary.Leaders = nil
			led[l.IdentityID] = append(led[l.IdentityID], summary)
		}
	}

	out := make([]LeaderSummary, 0, len(identities))
	for _, it := range identities {
		ms := led[it.ID]
		if ms == nil {
			ms = []models.Ministry{}
		}
		out = append(out, LeaderSummary{
			IdentityWithPerson: it,
			FullName:           displayName(&it.Person, it.Handle),
			Ministries:         ms,
		})
	}
	return out, nil
}

// HandleBase 由第一个名字和第一个姓氏生成用户名前缀（小写，以点连接）
func HandleBase(names, surnames string) string {
	first := strings.Fields(strings.ToLower(names))
	last := strings.Fields(strings.ToLower(surnames))
	switch {
	case len(first) == 0 && len(last) == 0:
		return ""
	case len(last) == 0:
		return first[0]
	case len(first) == 0:
		return last[0]
	}
	return first[0] + "." + last[0]
}

// HandleCandidate returns base for suffix 0 and base followed by the number
// otherwise.
func HandleCandidate(base string, suffix int) string {
	if suffix == 0 {
		return base
	}
	return fmt.Sprintf("%s%d", base, suffix)
}
