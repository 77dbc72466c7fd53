package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"church-admin-backend/pkg/database"
	"church-admin-backend/pkg/models"

	"golang.org/x/crypto/bcrypt"
)

var errBadCredentials = &UnauthorizedError{Message: "invalid identifier or password"}

// AuthService 登录与身份解析
type AuthService struct {
	db       database.DatabaseInterface
	logger   *slog.Logger
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService 创建认证服务；hashCost 与存储的凭据哈希一致
func NewAuthService(db database.DatabaseInterface, logger *slog.Logger, hashCost int) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &AuthService{db: db, logger: logger, hashCost: hashCost}
}

// dummy 返回用于未知标识的占位哈希，使其比较耗时与真实身份相同
func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("no-such-identity"), s.hashCost)
		if err != nil {
			s.logger.Error("failed to build placeholder hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// Login checks the password of the identity matching identifier (handle,
// email or national id). Unknown identifiers and wrong passwords produce the
// same error.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.IdentityWithPerson, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, validationf("identifier", "identifier and password are required")
	}

	found, err := s.db.FindIdentityForLogin(ctx, identifier)
	if errors.Is(err, database.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, internal("find identity", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login rejected", "identity_id", found.ID)
		return nil, errBadCredentials
	}
	if !found.Active {
		return nil, &UnauthorizedError{Message: "this account has been deactivated"}
	}

	s.logger.Info("login succeeded", "identity_id", found.ID, "role", found.Role)
	return found, nil
}

// Resolve 根据令牌中的身份ID重新加载调用者（角色与停用状态即时生效）
func (s *AuthService) Resolve(ctx context.Context, identityID string) (*models.Principal, error) {
	identity, err := s.db.GetIdentityByID(ctx, identityID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &UnauthorizedError{Message: "identity no longer exists"}
	}
	if err != nil {
		return nil, internal("load identity", err)
	}
	if !identity.Active {
		return nil, &UnauthorizedError{Message: "this account has been deactivated"}
	}
	return &models.Principal{IdentityID: identity.ID, Handle: identity.Handle, Role: identity.Role}, nil
}

// Session 当前调用者的身份与人员资料
func (s *AuthService) Session(ctx context.Context, p *models.Principal) (*models.IdentityWithPerson, error) {
	if p == nil {
		return nil, &UnauthorizedError{Message: "authentication required"}
	}
	identity, err := s.db.GetIdentityByID(ctx, p.IdentityID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, &UnauthorizedError{Message: "identity no longer exists"}
	}
	if err != nil {
		return nil, internal("load identity", err)
	}
	person, err := s.db.GetPerson(ctx, identity.PersonID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, internal("load person", err)
	}
	out := &models.IdentityWithPerson{Identity: *identity}
	if person != nil {
		out.Person = *person
	}
	return out, nil
}
