package models_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/pegahdev/hermes/models"
)

// The repositories issue Updates with raw column names; a column that the
// model does not declare is silently dropped from the generated UPDATE, so
// every column written by name must resolve against the model's schema.
func TestRepositoryColumnsExist(t *testing.T) {
	cases := []struct {
		name    string
		model   any
		columns []string
	}{
		{"Contact", &models.Contact{}, []string{"last_message_to_contact_at", "last_message_from_contact_at", "is_subscribed", "updated_at"}},
		{"Message", &models.Message{}, []string{"status", "platform_mid", "updated_at"}},
		{"OtnToken", &models.OtnToken{}, []string{"is_used", "used_at", "updated_at"}},
		{"RecurringSubscription", &models.RecurringSubscription{}, []string{"status", "updated_at"}},
		{"DeliveryJob", &models.DeliveryJob{}, []string{"state", "attempts", "last_error", "updated_at"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := schema.Parse(tc.model, &sync.Map{}, schema.NamingStrategy{})
			require.NoError(t, err)
			for _, col := range tc.columns {
				_, ok := parsed.FieldsByDBName[col]
				require.True(t, ok, "column %q missing from %s", col, tc.name)
			}
		})
	}
}
