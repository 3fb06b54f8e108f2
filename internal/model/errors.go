package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMisconfigured = errors.New("misconfigured")
	ErrNotFound      = errors.New("not found")
	ErrUpstream      = errors.New("upstream error")
	ErrStorage       = errors.New("storage error")
)

// Invalid returns an ErrInvalidInput with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError carries per-field problems.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// StorageReason classifies blob store failures.
type StorageReason string

const (
	StoragePermissionDenied StorageReason = "permission-denied"
	StorageCanceled         StorageReason = "canceled"
	StorageUnknown          StorageReason = "unknown"
)

// StorageError is a blob upload or delete failure.
type StorageError struct {
	Reason StorageReason
	Err    error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage " + string(e.Reason)
	}
	return fmt.Sprintf("storage %s: %v", e.Reason, e.Err)
}

func (e *StorageError) Unwrap() error        { return e.Err }
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Message is the human-readable guidance shown to staff.
func (e *StorageError) Message() string {
	switch e.Reason {
	case StoragePermissionDenied:
		return "파일 업로드 권한이 없습니다. 관리자에게 문의하세요."
	case StorageCanceled:
		return "파일 업로드가 취소되었습니다."
	default:
		return "파일 업로드 중 알 수 없는 오류가 발생했습니다."
	}
}

// UpstreamError is a failed call to the messaging provider.
type UpstreamError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (%d): %s", e.Status, e.Message)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// IndexMissingError reports that a range query needs an index that has not
// been provisioned. Remediation is a console link or a DDL statement.
type IndexMissingError struct {
	Index       string
	Remediation string
	Err         error
}

func (e *IndexMissingError) Error() string {
	return fmt.Sprintf("index %s missing; create it: %s", e.Index, e.Remediation)
}

func (e *IndexMissingError) Unwrap() error        { return e.Err }
func (e *IndexMissingError) Is(target error) bool { return target == ErrMisconfigured }
