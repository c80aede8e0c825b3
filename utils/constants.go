package utils

import (
	"time"
)

// Messaging window policy constants
const (
	// MessagingWindow is the platform free-messaging window after the
	// contact's last inbound message (24 hours)
	MessagingWindow = 24 * time.Hour

	// HumanAgentWindow is how long after an inbound message the HUMAN_AGENT
	// tag exemption remains usable (7 days)
	HumanAgentWindow = 7 * 24 * time.Hour

	// TagUsageWindow is the rolling window for per-tag usage caps (30 days)
	TagUsageWindow = 30 * 24 * time.Hour

	// TagWarningRatio is the fraction of a tag cap at which a
	// TAG_LIMIT_APPROACHING warning is emitted
	TagWarningRatio = 0.8
)

// Rate limit policy constants
const (
	// RateLimitWindow is the trailing window for outbound send counting
	RateLimitWindow = time.Hour

	// RateLimitWarnThreshold is the outbound count at which a HIGH_FREQUENCY
	// warning is emitted
	RateLimitWarnThreshold = 10

	// RateLimitBlockThreshold is the outbound count at which sends are blocked
	RateLimitBlockThreshold = 20
)

// Cooldown policy constants
const (
	// DefaultCooldown applies after a bypass send with no tag or an unlisted tag
	DefaultCooldown = 30 * time.Minute
)

// Delivery queue names
const (
	QueueMessages  = "messages"
	QueueCampaigns = "campaigns"
	QueueScheduled = "scheduled"
)

// Bulk enqueue stagger delays, load shaping against the Send API rate limits
const (
	CampaignStagger  = 50 * time.Millisecond
	BroadcastStagger = 100 * time.Millisecond
)

// HTTP constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
