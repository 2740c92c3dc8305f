package errors

import "fmt"

var (
	ErrEmptyContent    = fmt.Errorf("message content is empty")
	ErrSelfMessage     = fmt.Errorf("sender and receiver are the same user")
	ErrUnauthorized    = fmt.Errorf("requester is not the sender of the message")
	ErrMessageNotFound = fmt.Errorf("message does not exist or is deleted")
	ErrUserNotFound    = fmt.Errorf("user is unknown to the directory")
	ErrConflict        = fmt.Errorf("concurrent update on the same messages")
	ErrUnavailable     = fmt.Errorf("store or channel unreachable")
	ErrSessionClosed   = fmt.Errorf("session is closed")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
)
