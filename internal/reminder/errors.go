package reminder

import "errors"

var (
	// ErrUserNotFound is returned by a UserStore when the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrMissingEmail means the user exists but has no address to send to.
	ErrMissingEmail = errors.New("user has no email address")
	// ErrNoActiveTemplate is a configuration gap: no template is active for a milestone.
	ErrNoActiveTemplate = errors.New("no active template for milestone")
	// ErrSendLogWrite means delivery succeeded but the send-log entry was not persisted.
	ErrSendLogWrite = errors.New("send-log write failed after delivery")
	// ErrSenderPanic wraps a panic raised by a Sender.
	ErrSenderPanic = errors.New("sender panicked")
)
