package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegahdev/hermes/app/services"
	"github.com/pegahdev/hermes/models"
)

func textSendPayload() *models.MessagePayload {
	return &models.MessagePayload{
		WorkspaceID:   1,
		ContactID:     1,
		PageID:        "page_1",
		RecipientPSID: "psid_1",
		Kind:          models.MessageKindText,
		Text:          "hello",
	}
}

func TestMemoryCooldownStoreSetAndRemaining(t *testing.T) {
	store := services.NewMemoryCooldownStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 1, "page_1", 2*time.Second))

	remaining, active, err := store.Remaining(ctx, 1, "page_1")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 2*time.Second)
}

func TestMemoryCooldownStoreMissingEntry(t *testing.T) {
	store := services.NewMemoryCooldownStore(0)
	defer store.Close()

	remaining, active, err := store.Remaining(context.Background(), 99, "page_1")
	require.NoError(t, err)
	assert.False(t, active)
	assert.Zero(t, remaining)
}

func TestMemoryCooldownStoreKeysAreScoped(t *testing.T) {
	store := services.NewMemoryCooldownStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 1, "page_1", time.Minute))

	// Same contact on a different page has no cooldown
	_, active, err := store.Remaining(ctx, 1, "page_2")
	require.NoError(t, err)
	assert.False(t, active)

	// Different contact on the same page has no cooldown
	_, active, err = store.Remaining(ctx, 2, "page_1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryCooldownStoreExpiry(t *testing.T) {
	store := services.NewMemoryCooldownStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 1, "page_1", 30*time.Millisecond))

	require.Eventually(t, func() bool {
		_, active, err := store.Remaining(ctx, 1, "page_1")
		return err == nil && !active
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCooldownStoreIgnoresNonPositiveTTL(t *testing.T) {
	store := services.NewMemoryCooldownStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, 1, "page_1", 0))
	require.NoError(t, store.Set(ctx, 1, "page_1", -time.Minute))

	_, active, err := store.Remaining(ctx, 1, "page_1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMockMessengerServiceFailures(t *testing.T) {
	t.Run("FailTimesThenRecover", func(t *testing.T) {
		mock := services.NewMockMessengerService()
		mock.FailWith = &services.PermanentSendError{Code: 551, Message: "user unavailable"}
		mock.FailTimes = 2

		ctx := context.Background()
		for i := 0; i < 2; i++ {
			_, err := mock.Send(ctx, "token", "psid_1", textSendPayload())
			require.Error(t, err)
			assert.True(t, services.IsPermanentSendError(err))
		}

		result, err := mock.Send(ctx, "token", "psid_1", textSendPayload())
		require.NoError(t, err)
		assert.NotEmpty(t, result.MessageID)
		// Every attempt is recorded, failed ones included
		assert.Equal(t, 3, mock.SentCount())
	})

	t.Run("PlainErrorIsNotPermanent", func(t *testing.T) {
		mock := services.NewMockMessengerService()
		mock.FailWith = assert.AnError

		_, err := mock.Send(context.Background(), "token", "psid_1", textSendPayload())
		require.Error(t, err)
		assert.False(t, services.IsPermanentSendError(err))
	})
}
