package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"church-admin-backend/pkg/models"

	"github.com/google/uuid"
)

// LocalDatabase 本地数据库实现：内存状态 + 可选的 JSON 文件持久化。
// 每次写操作先作用在状态副本上，持久化成功后才替换当前状态，
// 因此任一步失败都不会留下部分写入。
type LocalDatabase struct {
	dataDir string
	mu      sync.RWMutex
	state   *localState
}

type storedIdentity struct {
	models.Identity
	Hash string `json:"password_hash"`
}

type storedLeader struct {
	MinistryID string    `json:"ministry_id"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type localState struct {
	People     map[string]models.Person   `json:"people"`
	Identities map[string]storedIdentity  `json:"identities"`
	Ministries map[string]models.Ministry `json:"ministries"`
	Leaders    []storedLeader             `json:"ministry_leaders"`
	Events     map[string]models.Event    `json:"events"`
}

func newLocalState() *localState {
	return &localState{
		People:     map[string]models.Person{},
		Identities: map[string]storedIdentity{},
		Ministries: map[string]models.Ministry{},
		Leaders:    []storedLeader{},
		Events:     map[string]models.Event{},
	}
}

func (s *localState) clone() *localState {
	c := &localState{
		People:     make(map[string]models.Person, len(s.People)),
		Identities: make(map[string]storedIdentity, len(s.Identities)),
		Ministries: make(map[string]models.Ministry, len(s.Ministries)),
		Leaders:    append([]storedLeader(nil), s.Leaders...),
		Events:     make(map[string]models.Event, len(s.Events)),
	}
	for k, v := range s.People {
		c.People[k] = v
	}
	for k, v := range s.Identities {
		c.Identities[k] = v
	}
	for k, v := range s.Ministries {
		c.Ministries[k] = v
	}
	for k, v := range s.Events {
		c.Events[k] = v
	}
	return c
}

// NewLocalDatabase 创建本地数据库实例；dataDir 为空时仅保存在内存中
func NewLocalDatabase(dataDir string) (*LocalDatabase, error) {
	db := &LocalDatabase{dataDir: dataDir, state: newLocalState()}
	if dataDir == "" {
		return db, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := os.ReadFile(db.stateFilePath())
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local database: %w", err)
	}

	state := newLocalState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to decode local database: %w", err)
	}
	db.state = state
	return db, nil
}

func (db *LocalDatabase) stateFilePath() string {
	return filepath.Join(db.dataDir, "church.json")
}

// read 在读锁下访问当前状态
func (db *LocalDatabase) read(fn func(s *localState) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return fn(db.state)
}

// mutate 在写锁下对状态副本执行 fn，成功并持久化后再替换
func (db *LocalDatabase) mutate(fn func(s *localState) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	next := db.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := db.persist(next); err != nil {
		return err
	}
	db.state = next
	return nil
}

func (db *LocalDatabase) persist(s *localState) error {
	if db.dataDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local database: %w", err)
	}
	tmp := db.stateFilePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write local database: %w", err)
	}
	if err := os.Rename(tmp, db.stateFilePath()); err != nil {
		return fmt.Errorf("failed to replace local database: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func copyEvent(e models.Event) *models.Event {
	if e.EndsAt != nil {
		t := *e.EndsAt
		e.EndsAt = &t
	}
	if e.RejectionReason != nil {
		r := *e.RejectionReason
		e.RejectionReason = &r
	}
	return &e
}

func copyPerson(p models.Person) *models.Person {
	if p.BirthDate != nil {
		b := *p.BirthDate
		p.BirthDate = &b
	}
	return &p
}

func (si storedIdentity) identity() models.Identity {
	it := si.Identity
	it.PasswordHash = si.Hash
	return it
}

// ==== people ====

// CreatePerson 创建人员
func (db *LocalDatabase) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	return db.mutate(func(s *localState) error {
		s.People[p.ID] = *copyPerson(*p)
		return nil
	})
}

// GetPerson 根据ID获取人员
func (db *LocalDatabase) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	var out *models.Person
	err := db.read(func(s *localState) error {
		p, ok := s.People[id]
		if !ok {
			return ErrNotFound
		}
		out = copyPerson(p)
		return nil
	})
	return out, err
}

// UpdatePerson 更新人员资料
func (db *LocalDatabase) UpdatePerson(ctx context.Context, p *models.Person) error {
	return db.mutate(func(s *localState) error {
		existing, ok := s.People[p.ID]
		if !ok {
			return ErrNotFound
		}
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = now()
		s.People[p.ID] = *copyPerson(*p)
		return nil
	})
}

// ListPeople 列出所有人员
func (db *LocalDatabase) ListPeople(ctx context.Context) ([]models.Person, error) {
	people := []models.Person{}
	err := db.read(func(s *localState) error {
		for _, p := range s.People {
			people = append(people, *copyPerson(p))
		}
		return nil
	})
	sort.Slice(people, func(i, j int) bool {
		if people[i].Surnames != people[j].Surnames {
			return people[i].Surnames < people[j].Surnames
		}
		return people[i].Names < people[j].Names
	})
	return people, err
}

// ==== identities ====

// CreateIdentity 创建登录身份（用户名与人员均唯一）
func (db *LocalDatabase) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	return db.mutate(func(s *localState) error {
		if _, ok := s.People[identity.PersonID]; !ok {
			return fmt.Errorf("failed to create identity: person %s: %w", identity.PersonID, ErrNotFound)
		}
		for _, existing := range s.Identities {
			if existing.Handle == identity.Handle {
				return fmt.Errorf("failed to create identity: %w", ErrDuplicateHandle)
			}
			if existing.PersonID == identity.PersonID {
				return fmt.Errorf("failed to create identity: %w", ErrDuplicatePerson)
			}
		}
		identity.CreatedAt = now()
		identity.UpdatedAt = identity.CreatedAt
		s.Identities[identity.ID] = storedIdentity{Identity: *identity, Hash: identity.PasswordHash}
		return nil
	})
}

// GetIdentityByID 根据ID获取身份
func (db *LocalDatabase) GetIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	var out *models.Identity
	err := db.read(func(s *localState) error {
		si, ok := s.Identities[id]
		if !ok {
			return ErrNotFound
		}
		it := si.identity()
		out = &it
		return nil
	})
	return out, err
}

// GetIdentityByPerson 根据人员ID获取身份
func (db *LocalDatabase) GetIdentityByPerson(ctx context.Context, personID string) (*models.Identity, error) {
	var out *models.Identity
	err := db.read(func(s *localState) error {
		for _, si := range s.Identities {
			if si.PersonID == personID {
				it := si.identity()
				out = &it
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

// FindIdentityForLogin 按用户名、邮箱或证件号查找身份（用户名优先）
func (db *LocalDatabase) FindIdentityForLogin(ctx context.Context, identifier string) (*models.IdentityWithPerson, error) {
	var out *models.IdentityWithPerson
	err := db.read(func(s *localState) error {
		var fallback *models.IdentityWithPerson
		for _, si := range s.Identities {
			p := s.People[si.PersonID]
			match := &models.IdentityWithPerson{Identity: si.identity(), Person: *copyPerson(p)}
			if si.Handle == identifier {
				out = match
				return nil
			}
			if fallback == nil && ((p.Email != "" && p.Email == identifier) || (p.NationalID != "" && p.NationalID == identifier)) {
				fallback = match
			}
		}
		if fallback == nil {
			return ErrNotFound
		}
		out = fallback
		return nil
	})
	return out, err
}

// HandleExists 检查用户名是否已被占用
func (db *LocalDatabase) HandleExists(ctx context.Context, handle string) (bool, error) {
	exists := false
	err := db.read(func(s *localState) error {
		for _, si := range s.Identities {
			if si.Handle == handle {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

// UpdateIdentityRole 更新身份角色
func (db *LocalDatabase) UpdateIdentityRole(ctx context.Context, identityID string, role models.Role) error {
	return db.mutate(func(s *localState) error {
		si, ok := s.Identities[identityID]
		if !ok {
			return ErrNotFound
		}
		si.Role = role
		si.UpdatedAt = now()
		s.Identities[identityID] = si
		return nil
	})
}

// ListIdentitiesWithPeople 列出身份及人员资料
func (db *LocalDatabase) ListIdentitiesWithPeople(ctx context.Context, ids []string) ([]models.IdentityWithPerson, error) {
	out := []models.IdentityWithPerson{}
	err := db.read(func(s *localState) error {
		add := func(si storedIdentity) {
			out = append(out, models.IdentityWithPerson{Identity: si.identity(), Person: *copyPerson(s.People[si.PersonID])})
		}
		if ids == nil {
			for _, si := range s.Identities {
				add(si)
			}
			return nil
		}
		seen := map[string]bool{}
		for _, id := range ids {
			if si, ok := s.Identities[id]; ok && !seen[id] {
				seen[id] = true
				add(si)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Person.Surnames != out[j].Person.Surnames {
			return out[i].Person.Surnames < out[j].Person.Surnames
		}
		return out[i].Person.Names < out[j].Person.Names
	})
	return out, err
}

// ==== ministries ====

func (s *localState) leadersOf(ministryID string) []models.MinistryLeader {
	leaders := []models.MinistryLeader{}
	for _, l := range s.Leaders {
		if ministryID != "" && l.MinistryID != ministryID {
			continue
		}
		si := s.Identities[l.IdentityID]
		p := s.People[si.PersonID]
		name := p.FullName()
		if name == "" {
			name = si.Handle
		}
		leaders = append(leaders, models.MinistryLeader{
			MinistryID: l.MinistryID,
			IdentityID: l.IdentityID,
			Handle:     si.Handle,
			FullName:   name,
			CreatedAt:  l.CreatedAt,
		})
	}
	return leaders
}

func (s *localState) nameTaken(name, exceptID string) bool {
	for id, m := range s.Ministries {
		if id != exceptID && m.Name == name {
			return true
		}
	}
	return false
}

// CreateMinistry 创建事工（名称唯一）
func (db *LocalDatabase) CreateMinistry(ctx context.Context, m *models.Ministry) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return db.mutate(func(s *localState) error {
		if s.nameTaken(m.Name, "") {
			return fmt.Errorf("failed to create ministry: %w", ErrDuplicateName)
		}
		m.CreatedAt = now()
		m.UpdatedAt = m.CreatedAt
		m.Leaders = []models.MinistryLeader{}
		stored := *m
		stored.Leaders = nil
		s.Ministries[m.ID] = stored
		return nil
	})
}

func (db *LocalDatabase) findMinistry(match func(models.Ministry) bool) (*models.Ministry, error) {
	var out *models.Ministry
	err := db.read(func(s *localState) error {
		for _, m := range s.Ministries {
			if match(m) {
				m.Leaders = s.leadersOf(m.ID)
				out = &m
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

// GetMinistry 根据ID获取事工（含领袖）
func (db *LocalDatabase) GetMinistry(ctx context.Context, id string) (*models.Ministry, error) {
	return db.findMinistry(func(m models.Ministry) bool { return m.ID == id })
}

// GetMinistryByName 根据名称获取事工
func (db *LocalDatabase) GetMinistryByName(ctx context.Context, name string) (*models.Ministry, error) {
	return db.findMinistry(func(m models.Ministry) bool { return m.Name == name })
}

// UpdateMinistry 更新事工
func (db *LocalDatabase) UpdateMinistry(ctx context.Context, m *models.Ministry) error {
	return db.mutate(func(s *localState) error {
		existing, ok := s.Ministries[m.ID]
		if !ok {
			return ErrNotFound
		}
		if s.nameTaken(m.Name, m.ID) {
			return fmt.Errorf("failed to update ministry: %w", ErrDuplicateName)
		}
		existing.Name = m.Name
		existing.Description = m.Description
		existing.LogoURL = m.LogoURL
		existing.UpdatedAt = now()
		s.Ministries[m.ID] = existing
		m.Active = existing.Active
		m.UpdatedAt = existing.UpdatedAt
		return nil
	})
}

// ListMinistries 列出所有事工（含领袖）
func (db *LocalDatabase) ListMinistries(ctx context.Context) ([]models.Ministry, error) {
	ministries := []models.Ministry{}
	err := db.read(func(s *localState) error {
		for _, m := range s.Ministries {
			m.Leaders = s.leadersOf(m.ID)
			ministries = append(ministries, m)
		}
		return nil
	})
	sort.Slice(ministries, func(i, j int) bool { return ministries[i].Name < ministries[j].Name })
	return ministries, err
}

// ReplaceMinistryLeaders 在写锁下整体替换事工领袖
func (db *LocalDatabase) ReplaceMinistryLeaders(ctx context.Context, ministryID string, identityIDs []string) error {
	if len(identityIDs) > models.MaxMinistryLeaders {
		return ErrTooManyLeaders
	}
	return db.mutate(func(s *localState) error {
		if _, ok := s.Ministries[ministryID]; !ok {
			return ErrNotFound
		}
		kept := s.Leaders[:0]
		for _, l := range s.Leaders {
			if l.MinistryID != ministryID {
				kept = append(kept, l)
			}
		}
		ts := now()
		for _, id := range identityIDs {
			if _, ok := s.Identities[id]; !ok {
				return fmt.Errorf("failed to insert ministry leaders: identity %s: %w", id, ErrNotFound)
			}
			kept = append(kept, storedLeader{MinistryID: ministryID, IdentityID: id, CreatedAt: ts})
		}
		s.Leaders = kept
		return nil
	})
}

// ListLeaderships 列出全部事工领袖关系
func (db *LocalDatabase) ListLeaderships(ctx context.Context) ([]models.MinistryLeader, error) {
	var out []models.MinistryLeader
	err := db.read(func(s *localState) error {
		out = s.leadersOf("")
		return nil
	})
	return out, err
}

// IsMinistryLeader 检查身份是否为事工领袖
func (db *LocalDatabase) IsMinistryLeader(ctx context.Context, ministryID, identityID string) (bool, error) {
	found := false
	err := db.read(func(s *localState) error {
		for _, l := range s.Leaders {
			if l.MinistryID == ministryID && l.IdentityID == identityID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// ==== events ====

// CreateEvent 创建活动
func (db *LocalDatabase) CreateEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Version == 0 {
		e.Version = 1
	}
	return db.mutate(func(s *localState) error {
		m, ok := s.Ministries[e.MinistryID]
		if !ok {
			return fmt.Errorf("failed to create event: ministry %s: %w", e.MinistryID, ErrNotFound)
		}
		if !m.Active {
			return fmt.Errorf("failed to create event: %w", ErrMinistryInactive)
		}
		e.CreatedAt = now()
		e.UpdatedAt = e.CreatedAt
		s.Events[e.ID] = *copyEvent(*e)
		return nil
	})
}

// GetEvent 根据ID获取活动
func (db *LocalDatabase) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var out *models.Event
	err := db.read(func(s *localState) error {
		e, ok := s.Events[id]
		if !ok {
			return ErrNotFound
		}
		out = copyEvent(e)
		return nil
	})
	return out, err
}

// ListEventsByMinistry 列出事工的活动（按开始时间升序）
func (db *LocalDatabase) ListEventsByMinistry(ctx context.Context, ministryID string) ([]models.Event, error) {
	events := []models.Event{}
	err := db.read(func(s *localState) error {
		for _, e := range s.Events {
			if e.MinistryID == ministryID {
				events = append(events, *copyEvent(e))
			}
		}
		return nil
	})
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, err
}

// UpdateEvent 比较并交换式更新活动
func (db *LocalDatabase) UpdateEvent(ctx context.Context, e *models.Event, expectedState models.EventState, expectedVersion int64) error {
	return db.mutate(func(s *localState) error {
		stored, ok := s.Events[e.ID]
		if !ok || stored.State != expectedState || stored.Version != expectedVersion {
			return ErrStaleWrite
		}
		e.MinistryID = stored.MinistryID
		e.CreatedAt = stored.CreatedAt
		e.Version = expectedVersion + 1
		e.UpdatedAt = now()
		s.Events[e.ID] = *copyEvent(*e)
		return nil
	})
}

// DisableMinistry 在写锁下检查待举行活动并停用事工
func (db *LocalDatabase) DisableMinistry(ctx context.Context, ministryID string, from time.Time) error {
	return db.mutate(func(s *localState) error {
		m, ok := s.Ministries[ministryID]
		if !ok {
			return ErrNotFound
		}
		for _, e := range s.Events {
			if e.MinistryID == ministryID && e.State.Scheduled() && !e.StartsAt.Before(from) {
				return ErrHasScheduledEvents
			}
		}
		m.Active = false
		m.UpdatedAt = now()
		s.Ministries[ministryID] = m
		return nil
	})
}

// EnableMinistry 重新启用事工
func (db *LocalDatabase) EnableMinistry(ctx context.Context, ministryID string) error {
	return db.mutate(func(s *localState) error {
		m, ok := s.Ministries[ministryID]
		if !ok {
			return ErrNotFound
		}
		m.Active = true
		m.UpdatedAt = now()
		s.Ministries[ministryID] = m
		return nil
	})
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck(ctx context.Context) error {
	if db.dataDir == "" {
		return nil
	}
	// 检查数据目录是否可访问
	if _, err := os.Stat(db.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", db.dataDir)
	}
	return nil
}

// Close 关闭连接（本地数据库无需关闭）
func (db *LocalDatabase) Close() error {
	return nil
}
