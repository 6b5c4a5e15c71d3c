package domain

import "errors"

var (
	ErrDuplicateRequest         = errors.New("an open approval request already exists for this entity")
	ErrApprovalNotFound         = errors.New("approval request not found")
	ErrApprovalAlreadyProcessed = errors.New("approval request has already been processed")
	ErrInvalidEntityType        = errors.New("invalid entity type")
	ErrInvalidPriority          = errors.New("invalid priority")
	ErrInvalidDecision          = errors.New("invalid decision")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrSideEffectFailed         = errors.New("approval side effect failed")
	ErrEntityNotFound           = errors.New("reviewed entity not found")
	ErrInvalidTransition        = errors.New("approval request is not in a state that allows this action")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrDuplicateRequest, "DUPLICATE_REQUEST"},
	{ErrApprovalNotFound, "APPROVAL_NOT_FOUND"},
	{ErrApprovalAlreadyProcessed, "APPROVAL_ALREADY_PROCESSED"},
	{ErrInvalidEntityType, "INVALID_ENTITY_TYPE"},
	{ErrInvalidPriority, "INVALID_PRIORITY"},
	{ErrInvalidDecision, "INVALID_DECISION"},
	{ErrInvalidRequest, "INVALID_REQUEST"},
	{ErrSideEffectFailed, "SIDE_EFFECT_FAILED"},
	{ErrEntityNotFound, "ENTITY_NOT_FOUND"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
}

// ErrorCode returns the stable code callers surface to end users, or
// INTERNAL_ERROR for anything that is not a known caller error.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "INTERNAL_ERROR"
}
