package errors

import "fmt"

// Error codes for the collaboration and durable-log taxonomy.
const (
	CodeRoomNotFound   = "ROOM_NOT_FOUND"
	CodeLockConflict   = "LOCK_CONFLICT"
	CodeStorageFailure = "STORAGE_FAILURE"
)

// NewRoomNotFoundError reports a lock operation against a nonexistent room.
func NewRoomNotFoundError(roomID string) *AppError {
	return NewNotFoundError(fmt.Sprintf("room %s", roomID)).
		WithCode(CodeRoomNotFound).
		WithDetails(map[string]any{"room_id": roomID})
}

// NewLockConflictError reports an attempt to lock a node already validly
// locked by another user. The message names the current holder for display.
func NewLockConflictError(nodeID, holderName string) *AppError {
	return NewConflictError(fmt.Sprintf("node is being edited by %s", holderName)).
		WithCode(CodeLockConflict).
		WithDetails(map[string]any{"node_id": nodeID, "holder": holderName})
}

// NewStorageError reports a durable-log operation that could not complete.
// Storage failures are never retried internally; callers decide on
// retry/backoff policy.
func NewStorageError(operation string, err error) *AppError {
	return (&AppError{
		Type:    ErrorTypeStorage,
		Message: fmt.Sprintf("storage operation '%s' failed", operation),
	}).WithCode(CodeStorageFailure).WithCause(err)
}

// IsRoomNotFound checks for the room-not-found condition.
func IsRoomNotFound(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == CodeRoomNotFound
}

// IsLockConflict checks for the lock-conflict condition.
func IsLockConflict(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == CodeLockConflict
}

// IsStorageFailure checks for a durable-log storage failure.
func IsStorageFailure(err error) bool {
	return IsType(err, ErrorTypeStorage)
}
