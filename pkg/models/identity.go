package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role 身份角色（封闭枚举）
type Role string

const (
	RolePastor Role = "pastor"
	RoleLeader Role = "leader"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePastor || r == RoleLeader
}

// Code 数据库中的角色编号（1 = Pastor, 2 = Leader）
func (r Role) Code() int {
	switch r {
	case RolePastor:
		return 1
	case RoleLeader:
		return 2
	default:
		return 0
	}
}

// RoleFromCode 将数据库角色编号转换为 Role
func RoleFromCode(code int) (Role, error) {
	switch code {
	case 1:
		return RolePastor, nil
	case 2:
		return RoleLeader, nil
	default:
		return "", fmt.Errorf("unknown role code %d", code)
	}
}

// ParseRole accepts "pastor"/"leader" in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity represents the login account bound to a person
type Identity struct {
	ID           string    `json:"id" db:"id"`
	PersonID     string    `json:"person_id" db:"person_id"`
	Handle       string    `json:"handle" db:"handle"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never return password hash in JSON
	Active       bool      `json:"active" db:"active"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IdentityWithPerson 身份及其对应的人员资料
type IdentityWithPerson struct {
	Identity
	Person Person `json:"person"`
}

// Principal 已认证的调用者（由 Identity Provider 解析）
type Principal struct {
	IdentityID string `json:"identity_id"`
	Handle     string `json:"handle"`
	Role       Role   `json:"role"`
}

// IsPastor reports whether the caller holds the Pastor role.
func (p *Principal) IsPastor() bool {
	return p != nil && p.Role == RolePastor
}

// LoginRequest represents the request payload for login.
// Identifier may be the handle, the email or the national id.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// LoginResponse represents the response payload for login
type LoginResponse struct {
	Identity  Identity `json:"identity"`
	Person    Person   `json:"person"`
	Token     string   `json:"token"`
	ExpiresAt int64    `json:"expires_at"`
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	IdentityID string `json:"identity_id"`
	Handle     string `json:"handle"`
	Role       Role   `json:"role"`
	Exp        int64  `json:"exp"`
	Iat        int64  `json:"iat"`
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.IdentityID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
