package services

import (
	"errors"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// 服务层哨兵错误，handlers 据此映射 HTTP 状态码。
var (
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrUnknownSetting  = errors.New("unknown_setting")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrBadCredentials  = errors.New("bad_credentials")
	ErrAccessDenied    = errors.New("access_denied")
	ErrMFARequired     = errors.New("mfa_required")
	ErrInvalidOTP      = errors.New("invalid_code")
	ErrWeakPassword    = errors.New("weak_password")
	ErrTokenRevoked    = errors.New("token_revoked")
	ErrUnsupportedFile = errors.New("unsupported_file")
	ErrFileTooLarge    = errors.New("file_too_large")
)

// ValidationError 汇总字段级校验失败信息。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// validator 逐字段收集错误，最后一次性返回。
type validator struct {
	fields map[string]string
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "required")
	}
}

func (v *validator) fail(field, msg string) {
	if v.fields == nil {
		v.fields = map[string]string{}
	}
	if _, ok := v.fields[field]; !ok {
		v.fields[field] = msg
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// translateDBError 将 gorm/MySQL 错误归一为服务层错误。
func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrConflict, me.Message)
	}
	// SQLite 唯一约束
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	return err
}
