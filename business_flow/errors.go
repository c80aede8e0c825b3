// Package businessflow contains the core business logic and use cases for messaging workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Workspace-related errors
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrWorkspaceInactive = errors.New("workspace is inactive")

	// Contact-related errors
	ErrContactNotFound     = errors.New("contact not found")
	ErrContactUnsubscribed = errors.New("contact has unsubscribed")

	// Message content errors
	ErrEmptyMessageContent  = errors.New("message content is empty")
	ErrInvalidMessageKind   = errors.New("invalid message kind")
	ErrInvalidMessageTag    = errors.New("invalid message tag")
	ErrInvalidBypassMethod  = errors.New("invalid bypass method")
	ErrInvalidPriority      = errors.New("priority must not be negative")
	ErrNoRecipientsResolved = errors.New("no deliverable recipients resolved")

	// Receipt and subscription errors
	ErrMessageNotFound          = errors.New("message not found")
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrInvalidSubscriptionState = errors.New("invalid subscription status")

	// Scheduling errors
	ErrScheduleTimeNotPresent = errors.New("schedule time is not present")
	ErrScheduleTimeInPast     = errors.New("schedule time is in the past")

	// Queue-related errors
	ErrJobNotFound   = errors.New("job not found")
	ErrBatchNotFound = errors.New("batch not found")
	ErrQueueNotFound = errors.New("queue not found")

	// Reporting errors
	ErrInvalidDateRange = errors.New("start date must not be after end date")
)

// BusinessError wraps business logic errors with additional context
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsWorkspaceNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound)
}

func IsWorkspaceInactive(err error) bool {
	return errors.Is(err, ErrWorkspaceInactive)
}

func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}

func IsContactUnsubscribed(err error) bool {
	return errors.Is(err, ErrContactUnsubscribed)
}

func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}

func IsSubscriptionNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound)
}

func IsScheduleTimeInPast(err error) bool {
	return errors.Is(err, ErrScheduleTimeInPast)
}

func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

func IsBatchNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound)
}

func IsQueueNotFound(err error) bool {
	return errors.Is(err, ErrQueueNotFound)
}

func IsNoRecipientsResolved(err error) bool {
	return errors.Is(err, ErrNoRecipientsResolved)
}

func IsInvalidDateRange(err error) bool {
	return errors.Is(err, ErrInvalidDateRange)
}
