package services

import (
	"errors"
	"fmt"
	"strings"

	"church-admin-backend/pkg/models"
)

// 错误代码（响应中的 error.code）
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeForbidden      = "FORBIDDEN"
	CodeInvalidState   = "INVALID_STATE"
	CodeIncompleteData = "INCOMPLETE_DATA"
	CodeConflict       = "CONFLICT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
)

// ErrInternal marks storage or infrastructure failures. Its wrapped cause is
// logged, never shown to the caller.
var ErrInternal = errors.New("internal error")

// ValidationError 输入不合法（在任何写入之前检测）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Code() string { return CodeValidation }

// ForbiddenError 调用者的角色或关系不允许此操作
type ForbiddenError struct {
	Action string
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s not allowed: %s", e.Action, e.Reason)
}

func (e *ForbiddenError) Code() string { return CodeForbidden }

// InvalidStateError 当前生命周期状态下不允许此操作
type InvalidStateError struct {
	Action string
	State  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Action, e.State)
}

func (e *InvalidStateError) Code() string { return CodeInvalidState }

// MissingDetail 某个身份缺失的人员资料字段
type MissingDetail struct {
	IdentityID    string   `json:"identity_id,omitempty"`
	PersonID      string   `json:"person_id,omitempty"`
	FullName      string   `json:"full_name"`
	MissingFields []string `json:"missing_fields"`
}

// IncompleteDataError 引用的人员资料不完整
type IncompleteDataError struct {
	Message string
	Details []MissingDetail
}

func (e *IncompleteDataError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s [%s]", d.FullName, strings.Join(d.MissingFields, ", ")))
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

func (e *IncompleteDataError) Code() string { return CodeIncompleteData }

// ConflictError 并发修改导致失败，调用方应使用最新数据重试
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return e.Resource + ": " + e.Message
}

func (e *ConflictError) Code() string { return CodeConflict }

// UnauthorizedError 凭据无效或身份已停用
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

func (e *UnauthorizedError) Code() string { return CodeUnauthorized }

// ErrorCode returns the response discriminator for err.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}

func validationf(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func forbidden(action, reason string) error {
	return &ForbiddenError{Action: action, Reason: reason}
}

func invalidState(action string, state models.EventState) error {
	return &InvalidStateError{Action: action, State: string(state)}
}

func internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
