package businessflow

import (
	"context"
	"time"

	"github.com/pegahdev/hermes/repository"
)

// RateLimiter counts recent outbound sends to a contact over a trailing
// window. Thresholds are evaluated by the compliance flow, not here.
type RateLimiter struct {
	messageRepo repository.MessageRepository
}

func NewRateLimiter(messageRepo repository.MessageRepository) *RateLimiter {
	return &RateLimiter{messageRepo: messageRepo}
}

// CountSince returns the number of outbound messages sent to the contact
// after the given time
func (l *RateLimiter) CountSince(ctx context.Context, workspaceID, contactID uint, since time.Time) (int64, error) {
	return l.messageRepo.CountOutboundSince(ctx, workspaceID, contactID, since)
}
