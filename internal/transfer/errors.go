package transfer

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable machine-readable code returned to callers. The API
// layer maps codes to user-facing messages; this package only guarantees the
// code is precise and does not change between releases.
type ErrorCode string

const (
	CodeDocumentNumberRequired ErrorCode = "DOCUMENT_NUMBER_REQUIRED"
	CodeItemInvalid            ErrorCode = "ITEM_INVALID"
	CodeDocumentClosed         ErrorCode = "DOCUMENT_CLOSED"
	CodeAlreadyClosed          ErrorCode = "ALREADY_CLOSED"
	CodeItemNotFound           ErrorCode = "ITEM_NOT_FOUND"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeInvalidQty             ErrorCode = "INVALID_QTY"
	CodeDuplicateRequest       ErrorCode = "DUPLICATE_REQUEST"
)

// Error is a coded domain error.
type Error struct {
	Code   ErrorCode
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Sentinel instances for the fixed-message cases.
var (
	ErrDocumentNumberRequired = &Error{Code: CodeDocumentNumberRequired, Detail: "document number must not be empty"}
	ErrDocumentClosed         = &Error{Code: CodeDocumentClosed, Detail: "document is closed"}
	ErrAlreadyClosed          = &Error{Code: CodeAlreadyClosed, Detail: "document is already closed"}
	ErrItemNotFound           = &Error{Code: CodeItemNotFound, Detail: "item does not belong to document"}
	ErrNotFound               = &Error{Code: CodeNotFound, Detail: "resource not found"}
	ErrInvalidQty             = &Error{Code: CodeInvalidQty, Detail: "quantity must be positive"}
	ErrDuplicateRequest       = &Error{Code: CodeDuplicateRequest, Detail: "request with this idempotency key was already processed"}
)

// ItemInvalid names the offending line so the caller can point at it.
func ItemInvalid(lineNo int, reason string) *Error {
	return &Error{Code: CodeItemInvalid, Detail: fmt.Sprintf("line %d: %s", lineNo, reason)}
}

// CodeOf extracts the domain code from an error chain, or "" when the error
// did not originate here.
func CodeOf(err error) ErrorCode {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}
