package models

import (
	"fmt"

	"gorm.io/gorm"
)

// enumTypes maps each postgres enum type to its allowed values. AutoMigrate
// does not create enum types, so they must exist before the tables do.
var enumTypes = map[string][]string{
	"message_direction":      {string(MessageDirectionInbound), string(MessageDirectionOutbound)},
	"message_status":         {string(MessageStatusPending), string(MessageStatusSent), string(MessageStatusDelivered), string(MessageStatusRead), string(MessageStatusFailed)},
	"bypass_method":          {string(BypassWithinWindow), string(BypassOtnToken), string(BypassRecurringNotification), string(BypassMessageTag), string(BypassBlocked)},
	"message_tag":            {string(TagConfirmedEventUpdate), string(TagPostPurchaseUpdate), string(TagAccountUpdate), string(TagHumanAgent)},
	"subscription_status":    {string(SubscriptionStatusActive), string(SubscriptionStatusPaused), string(SubscriptionStatusCancelled)},
	"subscription_frequency": {string(SubscriptionFrequencyDaily), string(SubscriptionFrequencyWeekly), string(SubscriptionFrequencyMonthly)},
	"job_state":              {string(JobStateWaiting), string(JobStateDelayed), string(JobStateActive), string(JobStateCompleted), string(JobStateFailed)},
}

// EnsureEnumTypes creates the postgres enum types if they do not exist yet
func EnsureEnumTypes(db *gorm.DB) error {
	for name, values := range enumTypes {
		ddl := fmt.Sprintf(
			"DO $$ BEGIN CREATE TYPE %s AS ENUM (%s); EXCEPTION WHEN duplicate_object THEN NULL; END $$;",
			name, quoteList(values),
		)
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to create enum type %s: %w", name, err)
		}
	}
	return nil
}

func quoteList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += "'" + v + "'"
	}
	return out
}
