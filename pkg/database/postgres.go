package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"church-admin-backend/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgreSQL 唯一约束名称，用于区分冲突来源
const (
	constraintIdentityHandle = "identities_handle_key"
	constraintIdentityPerson = "identities_person_id_key"
	constraintMinistryName   = "ministries_name_key"
	uniqueViolationCode      = "23505"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sql.DB
}

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) (*PostgresDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			slog.Warn("postgres open failed", "strategy", i+1, "error", err)
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			slog.Warn("postgres ping failed", "strategy", i+1, "error", err)
			db.Close()
			lastErr = err
			continue
		}

		slog.Info("postgres connection established", "strategy", i+1)
		return &PostgresDatabase{db: db}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// NewPostgresDatabaseFromDB 包装已打开的连接（测试与脚本使用）
func NewPostgresDatabaseFromDB(db *sql.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db}
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// mapConstraintError 将唯一约束冲突转换为哨兵错误
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
		switch pqErr.Constraint {
		case constraintIdentityHandle:
			return ErrDuplicateHandle
		case constraintIdentityPerson:
			return ErrDuplicatePerson
		case constraintMinistryName:
			return ErrDuplicateName
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ==== people ====

const personColumns = `id, names, surnames, national_id, email, phone, gender, birth_date,
        address, education_level, occupation, created_at, updated_at`

func scanPerson(row rowScanner) (*models.Person, error) {
	var p models.Person
	var birth sql.NullTime
	err := row.Scan(&p.ID, &p.Names, &p.Surnames, &p.NationalID, &p.Email, &p.Phone, &p.Gender, &birth,
		&p.Address, &p.EducationLevel, &p.Occupation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if birth.Valid {
		b := birth.Time
		p.BirthDate = &b
	}
	return &p, nil
}

// CreatePerson 创建人员
func (db *PostgresDatabase) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
        INSERT INTO people (id, names, surnames, national_id, email, phone, gender, birth_date,
                            address, education_level, occupation, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err := db.db.QueryRowContext(ctx, query, p.ID, p.Names, p.Surnames, p.NationalID, p.Email, p.Phone,
		p.Gender, nullTime(p.BirthDate), p.Address, p.EducationLevel, p.Occupation).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

// GetPerson 根据ID获取人员
func (db *PostgresDatabase) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// UpdatePerson 更新人员资料
func (db *PostgresDatabase) UpdatePerson(ctx context.Context, p *models.Person) error {
	query := `
        UPDATE people
        SET names = $1, surnames = $2, national_id = $3, email = $4, phone = $5, gender = $6,
            birth_date = $7, address = $8, education_level = $9, occupation = $10, updated_at = NOW()
        WHERE id = $11
        RETURNING updated_at
    `
	err := db.db.QueryRowContext(ctx, query, p.Names, p.Surnames, p.NationalID, p.Email, p.Phone, p.Gender,
		nullTime(p.BirthDate), p.Address, p.EducationLevel, p.Occupation, p.ID).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update person: %w", err)
	}
	return nil
}

// ListPeople 列出所有人员
func (db *PostgresDatabase) ListPeople(ctx context.Context) ([]models.Person, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+personColumns+` FROM people ORDER BY surnames, names`)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	people := []models.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating people: %w", err)
	}
	return people, nil
}

// ==== identities ====

const identityColumns = `i.id, i.person_id, i.handle, i.password_hash, i.active, i.role, i.created_at, i.updated_at`

func scanIdentity(row rowScanner, extra ...interface{}) (*models.Identity, error) {
	var it models.Identity
	var roleCode int
	dest := append([]interface{}{&it.ID, &it.PersonID, &it.Handle, &it.PasswordHash, &it.Active, &roleCode,
		&it.CreatedAt, &it.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	role, err := models.RoleFromCode(roleCode)
	if err != nil {
		return nil, err
	}
	it.Role = role
	return &it, nil
}

// CreateIdentity 创建登录身份
func (db *PostgresDatabase) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	query := `
        INSERT INTO identities (id, person_id, handle, password_hash, active, role, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err := db.db.QueryRowContext(ctx, query, identity.ID, identity.PersonID, identity.Handle,
		identity.PasswordHash, identity.Active, identity.Role.Code()).
		Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", mapConstraintError(err))
	}
	return nil
}

func (db *PostgresDatabase) getIdentity(ctx context.Context, where string, arg interface{}) (*models.Identity, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities i WHERE `+where, arg)
	it, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return it, nil
}

// GetIdentityByID 根据ID获取身份
func (db *PostgresDatabase) GetIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	return db.getIdentity(ctx, "i.id = $1", id)
}

// GetIdentityByPerson 根据人员ID获取身份
func (db *PostgresDatabase) GetIdentityByPerson(ctx context.Context, personID string) (*models.Identity, error) {
	return db.getIdentity(ctx, "i.person_id = $1", personID)
}

func scanIdentityWithPerson(row rowScanner) (*models.IdentityWithPerson, error) {
	var p models.Person
	var birth sql.NullTime
	it, err := scanIdentity(row, &p.ID, &p.Names, &p.Surnames, &p.NationalID, &p.Email, &p.Phone, &p.Gender,
		&birth, &p.Address, &p.EducationLevel, &p.Occupation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if birth.Valid {
		b := birth.Time
		p.BirthDate = &b
	}
	return &models.IdentityWithPerson{Identity: *it, Person: p}, nil
}

const identityWithPersonSelect = `
        SELECT ` + identityColumns + `,
               p.id, p.names, p.surnames, p.national_id, p.email, p.phone, p.gender, p.birth_date,
               p.address, p.education_level, p.occupation, p.created_at, p.updated_at
        FROM identities i
        JOIN people p ON p.id = i.person_id
`

// FindIdentityForLogin 按用户名、邮箱或证件号查找身份（用户名优先）
func (db *PostgresDatabase) FindIdentityForLogin(ctx context.Context, identifier string) (*models.IdentityWithPerson, error) {
	query := identityWithPersonSelect + `
        WHERE i.handle = $1 OR p.email = $1 OR p.national_id = $1
        ORDER BY (i.handle = $1) DESC
        LIMIT 1
    `
	res, err := scanIdentityWithPerson(db.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return res, nil
}

// HandleExists 检查用户名是否已被占用
func (db *PostgresDatabase) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := db.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE handle = $1)`, handle).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check handle: %w", err)
	}
	return exists, nil
}

// UpdateIdentityRole 更新身份角色
func (db *PostgresDatabase) UpdateIdentityRole(ctx context.Context, identityID string, role models.Role) error {
	result, err := db.db.ExecContext(ctx, `UPDATE identities SET role = $1, updated_at = NOW() WHERE id = $2`,
		role.Code(), identityID)
	if err != nil {
		return fmt.Errorf("failed to update identity role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIdentitiesWithPeople 列出身份及人员资料
func (db *PostgresDatabase) ListIdentitiesWithPeople(ctx context.Context, ids []string) ([]models.IdentityWithPerson, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ids == nil {
		rows, err = db.db.QueryContext(ctx, identityWithPersonSelect+` ORDER BY p.surnames, p.names`)
	} else {
		rows, err = db.db.QueryContext(ctx, identityWithPersonSelect+` WHERE i.id = ANY($1::uuid[]) ORDER BY p.surnames, p.names`,
			pq.Array(ids))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	out := []models.IdentityWithPerson{}
	for rows.Next() {
		it, err := scanIdentityWithPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, *it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identities: %w", err)
	}
	return out, nil
}

// ==== ministries ====

const ministryColumns = `id, name, description, logo_url, active, created_by, created_at, updated_at`

func scanMinistry(row rowScanner) (*models.Ministry, error) {
	var m models.Ministry
	var createdBy sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &m.LogoURL, &m.Active, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.CreatedBy = createdBy.String
	m.Leaders = []models.MinistryLeader{}
	return &m, nil
}

// CreateMinistry 创建事工
func (db *PostgresDatabase) CreateMinistry(ctx context.Context, m *models.Ministry) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `
        INSERT INTO ministries (id, name, description, logo_url, active, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err := db.db.QueryRowContext(ctx, query, m.ID, m.Name, m.Description, m.LogoURL, m.Active, nullString(m.CreatedBy)).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ministry: %w", mapConstraintError(err))
	}
	if m.Leaders == nil {
		m.Leaders = []models.MinistryLeader{}
	}
	return nil
}

func (db *PostgresDatabase) getMinistry(ctx context.Context, where string, arg interface{}) (*models.Ministry, error) {
	m, err := scanMinistry(db.db.QueryRowContext(ctx, `SELECT `+ministryColumns+` FROM ministries WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ministry: %w", err)
	}
	leaders, err := db.listLeaders(ctx, "ml.ministry_id = $1", m.ID)
	if err != nil {
		return nil, err
	}
	m.Leaders = leaders
	return m, nil
}

// GetMinistry 根据ID获取事工（含领袖）
func (db *PostgresDatabase) GetMinistry(ctx context.Context, id string) (*models.Ministry, error) {
	return db.getMinistry(ctx, "id = $1", id)
}

// GetMinistryByName 根据名称获取事工
func (db *PostgresDatabase) GetMinistryByName(ctx context.Context, name string) (*models.Ministry, error) {
	return db.getMinistry(ctx, "name = $1", name)
}

// UpdateMinistry 更新事工
func (db *PostgresDatabase) UpdateMinistry(ctx context.Context, m *models.Ministry) error {
	query := `
        UPDATE ministries
        SET name = $1, description = $2, logo_url = $3, updated_at = NOW()
        WHERE id = $4
        RETURNING active, updated_at
    `
	err := db.db.QueryRowContext(ctx, query, m.Name, m.Description, m.LogoURL, m.ID).Scan(&m.Active, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update ministry: %w", mapConstraintError(err))
	}
	return nil
}

// ListMinistries 列出所有事工（含领袖）
func (db *PostgresDatabase) ListMinistries(ctx context.Context) ([]models.Ministry, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+ministryColumns+` FROM ministries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ministries: %w", err)
	}
	defer rows.Close()

	ministries := []models.Ministry{}
	index := map[string]int{}
	for rows.Next() {
		m, err := scanMinistry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ministry: %w", err)
		}
		index[m.ID] = len(ministries)
		ministries = append(ministries, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ministries: %w", err)
	}

	leaders, err := db.ListLeaderships(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range leaders {
		if i, ok := index[l.MinistryID]; ok {
			ministries[i].Leaders = append(ministries[i].Leaders, l)
		}
	}
	return ministries, nil
}

// ReplaceMinistryLeaders 在单个事务内替换事工的全部领袖
func (db *PostgresDatabase) ReplaceMinistryLeaders(ctx context.Context, ministryID string, identityIDs []string) (err error) {
	if len(identityIDs) > models.MaxMinistryLeaders {
		return ErrTooManyLeaders
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 锁定事工行，串行化并发的替换操作
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM ministries WHERE id = $1 FOR UPDATE`, ministryID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock ministry: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM ministry_leaders WHERE ministry_id = $1`, ministryID); err != nil {
		return fmt.Errorf("failed to remove ministry leaders: %w", err)
	}

	if len(identityIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO ministry_leaders (ministry_id, identity_id, created_at)
            SELECT $1, unnest($2::uuid[]), NOW()
        `, ministryID, pq.Array(identityIDs))
		if err != nil {
			return fmt.Errorf("failed to insert ministry leaders: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leader replacement: %w", err)
	}
	return nil
}

func (db *PostgresDatabase) listLeaders(ctx context.Context, where string, args ...interface{}) ([]models.MinistryLeader, error) {
	query := `
        SELECT ml.ministry_id, ml.identity_id, i.handle, p.names, p.surnames, ml.created_at
        FROM ministry_leaders ml
        JOIN identities i ON i.id = ml.identity_id
        JOIN people p ON p.id = i.person_id
    `
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY ml.created_at, p.surnames"

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ministry leaders: %w", err)
	}
	defer rows.Close()

	leaders := []models.MinistryLeader{}
	for rows.Next() {
		var l models.MinistryLeader
		var person models.Person
		if err := rows.Scan(&l.MinistryID, &l.IdentityID, &l.Handle, &person.Names, &person.Surnames, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ministry leader: %w", err)
		}
		l.FullName = person.FullName()
		if l.FullName == "" {
			l.FullName = l.Handle
		}
		leaders = append(leaders, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ministry leaders: %w", err)
	}
	return leaders, nil
}

// ListLeaderships 列出全部事工领袖关系
func (db *PostgresDatabase) ListLeaderships(ctx context.Context) ([]models.MinistryLeader, error) {
	return db.listLeaders(ctx, "")
}

// IsMinistryLeader 检查身份是否为事工领袖
func (db *PostgresDatabase) IsMinistryLeader(ctx context.Context, ministryID, identityID string) (bool, error) {
	var exists bool
	err := db.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ministry_leaders WHERE ministry_id = $1 AND identity_id = $2)`,
		ministryID, identityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ministry leader: %w", err)
	}
	return exists, nil
}

// ==== events ====

const eventColumns = `id, ministry_id, name, description, starts_at, ends_at, location, active, state,
        rejection_reason, version, created_at, updated_at`

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var ends sql.NullTime
	var reason sql.NullString
	var state string
	err := row.Scan(&e.ID, &e.MinistryID, &e.Name, &e.Description, &e.StartsAt, &ends, &e.Location, &e.Active,
		&state, &reason, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.State = models.EventState(state)
	if ends.Valid {
		t := ends.Time
		e.EndsAt = &t
	}
	if reason.Valid {
		r := reason.String
		e.RejectionReason = &r
	}
	return &e, nil
}

// CreateEvent 创建活动；事务内以共享锁读取事工状态，与停用操作串行化
func (db *PostgresDatabase) CreateEvent(ctx context.Context, e *models.Event) (err error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Version == 0 {
		e.Version = 1
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT active FROM ministries WHERE id = $1 FOR SHARE`, e.MinistryID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock ministry: %w", err)
	}
	if !active {
		return ErrMinistryInactive
	}

	query := `
        INSERT INTO events (id, ministry_id, name, description, starts_at, ends_at, location, active, state,
                            rejection_reason, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err = tx.QueryRowContext(ctx, query, e.ID, e.MinistryID, e.Name, e.Description, e.StartsAt, nullTime(e.EndsAt),
		e.Location, e.Active, string(e.State), nullStringPtr(e.RejectionReason), e.Version).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// GetEvent 根据ID获取活动
func (db *PostgresDatabase) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	e, err := scanEvent(db.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListEventsByMinistry 列出事工的活动（按开始时间升序）
func (db *PostgresDatabase) ListEventsByMinistry(ctx context.Context, ministryID string) ([]models.Event, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE ministry_id = $1 ORDER BY starts_at ASC`, ministryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// UpdateEvent 比较并交换式更新活动：仅当状态与版本均未变化时写入
func (db *PostgresDatabase) UpdateEvent(ctx context.Context, e *models.Event, expectedState models.EventState, expectedVersion int64) error {
	query := `
        UPDATE events
        SET name = $1, description = $2, starts_at = $3, ends_at = $4, location = $5, active = $6,
            state = $7, rejection_reason = $8, version = version + 1, updated_at = NOW()
        WHERE id = $9 AND state = $10 AND version = $11
        RETURNING version, updated_at
    `
	err := db.db.QueryRowContext(ctx, query, e.Name, e.Description, e.StartsAt, nullTime(e.EndsAt), e.Location, e.Active,
		string(e.State), nullStringPtr(e.RejectionReason), e.ID, string(expectedState), expectedVersion).
		Scan(&e.Version, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleWrite
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DisableMinistry 停用事工；锁定事工行后统计待举行活动，有则拒绝
func (db *PostgresDatabase) DisableMinistry(ctx context.Context, ministryID string, from time.Time) (err error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT active FROM ministries WHERE id = $1 FOR UPDATE`, ministryID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock ministry: %w", err)
	}

	var scheduled int
	err = tx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM events
        WHERE ministry_id = $1 AND starts_at >= $2 AND state IN ('PENDING', 'IN_REVIEW', 'APPROVED')
    `, ministryID, from).Scan(&scheduled)
	if err != nil {
		return fmt.Errorf("failed to count scheduled events: %w", err)
	}
	if scheduled > 0 {
		return ErrHasScheduledEvents
	}

	if _, err = tx.ExecContext(ctx, `UPDATE ministries SET active = FALSE, updated_at = NOW() WHERE id = $1`, ministryID); err != nil {
		return fmt.Errorf("failed to disable ministry: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ministry disable: %w", err)
	}
	return nil
}

// EnableMinistry 重新启用事工
func (db *PostgresDatabase) EnableMinistry(ctx context.Context, ministryID string) error {
	res, err := db.db.ExecContext(ctx, `UPDATE ministries SET active = TRUE, updated_at = NOW() WHERE id = $1`, ministryID)
	if err != nil {
		return fmt.Errorf("failed to enable ministry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to enable ministry: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}

// ApplySchema 执行建表脚本
func (db *PostgresDatabase) ApplySchema(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
