package ledger

import "fmt"

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeBadTransition   = "BAD_TRANSITION"
	ErrCodeInternal        = "INTERNAL"
)

func NewNotFoundError(msg string) error {
	return &DomainError{Code: ErrCodeNotFound, Message: msg}
}

func NewInvalidArgumentError(msg string) error {
	return &DomainError{Code: ErrCodeInvalidArgument, Message: msg}
}

// 現フェーズで意味を持たない打刻要求（副作用なしで却下する）
func NewBadTransitionError(msg string) error {
	return &DomainError{Code: ErrCodeBadTransition, Message: msg}
}

func NewInternalError(msg string) error {
	return &DomainError{Code: ErrCodeInternal, Message: msg}
}
