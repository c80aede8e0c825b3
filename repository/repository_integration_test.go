package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
	testingutil "github.com/pegahdev/hermes/testing"
	"github.com/pegahdev/hermes/utils"
)

// setupDB provisions a throwaway postgres database for the test and tears it
// down afterwards. Skipped when no test database is reachable.
func setupDB(t *testing.T) (*testingutil.TestDB, *testingutil.TestFixtures) {
	t.Helper()
	db, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() {
		if err := db.TeardownTestDB(); err != nil {
			t.Logf("teardown: %v", err)
		}
	})
	return db, testingutil.NewTestFixtures(db)
}

func TestMessageRepositoryCounts(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := context.Background()
	repo := repository.NewMessageRepository(db.DB)

	workspace, err := fixtures.CreateTestWorkspace()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(workspace, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := fixtures.CreateTestMessage(contact, models.MessageDirectionOutbound, models.MessageStatusSent)
		require.NoError(t, err)
	}
	_, err = fixtures.CreateTestMessage(contact, models.MessageDirectionInbound, models.MessageStatusSent)
	require.NoError(t, err)

	since := utils.UTCNow().Add(-time.Hour)
	count, err := repo.CountOutboundSince(ctx, workspace.ID, contact.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Inbound traffic never counts toward the outbound frequency limit
	future := utils.UTCNow().Add(time.Minute)
	count, err = repo.CountOutboundSince(ctx, workspace.ID, contact.ID, future)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMessageRepositoryTagUsage(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := context.Background()
	repo := repository.NewMessageRepository(db.DB)

	workspace, err := fixtures.CreateTestWorkspace()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(workspace, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := fixtures.CreateTestTaggedMessage(contact, models.TagConfirmedEventUpdate)
		require.NoError(t, err)
	}
	_, err = fixtures.CreateTestTaggedMessage(contact, models.TagHumanAgent)
	require.NoError(t, err)

	since := utils.UTCNow().Add(-utils.MessagingWindow)
	count, err := repo.CountTagUsageSince(ctx, workspace.ID, contact.ID, models.TagConfirmedEventUpdate, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountTagUsageSince(ctx, workspace.ID, contact.ID, models.TagHumanAgent, since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	byTag, err := repo.CountByTagBetween(ctx, workspace.ID, since, utils.UTCNow().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), byTag[models.TagConfirmedEventUpdate])
	assert.Equal(t, int64(1), byTag[models.TagHumanAgent])
}

func TestOtnTokenConsumeIsSingleWinner(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := context.Background()
	repo := repository.NewOtnTokenRepository(db.DB)

	workspace, err := fixtures.CreateTestWorkspace()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(workspace, nil)
	require.NoError(t, err)
	expires := utils.UTCNow().Add(24 * time.Hour)
	token, err := fixtures.CreateTestOtnToken(contact, &expires)
	require.NoError(t, err)

	now := utils.UTCNow()
	found, err := repo.FirstAvailable(ctx, workspace.ID, contact.ID, now)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, token.ID, found.ID)

	consumed, err := repo.Consume(ctx, token.ID, now)
	require.NoError(t, err)
	assert.True(t, consumed)

	// A second consume of the same token loses the conditional update
	consumed, err = repo.Consume(ctx, token.ID, now)
	require.NoError(t, err)
	assert.False(t, consumed)

	remaining, err := repo.CountAvailable(ctx, workspace.ID, contact.ID, now)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestOtnTokenExpiredNotAvailable(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := context.Background()
	repo := repository.NewOtnTokenRepository(db.DB)

	workspace, err := fixtures.CreateTestWorkspace()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(workspace, nil)
	require.NoError(t, err)
	expired := utils.UTCNow().Add(-time.Hour)
	_, err = fixtures.CreateTestOtnToken(contact, &expired)
	require.NoError(t, err)

	found, err := repo.FirstAvailable(ctx, workspace.ID, contact.ID, utils.UTCNow())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestContactRepositoryTouchTimestamps(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := context.Background()
	repo := repository.NewContactRepository(db.DB)

	workspace, err := fixtures.CreateTestWorkspace()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(workspace, nil)
	require.NoError(t, err)

	at := utils.UTCNow().Truncate(time.Microsecond)
	require.NoError(t, repo.TouchLastOutbound(ctx, contact.ID, at))
	require.NoError(t, repo.TouchLastInbound(ctx, contact.ID, at))

	reloaded, err := repo.ByID(ctx, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	require.NotNil(t, reloaded.LastMessageToContactAt)
	require.NotNil(t, reloaded.LastMessageFromContactAt)
	assert.WithinDuration(t, at, *reloaded.LastMessageToContactAt, time.Second)
	assert.True(t, reloaded.WindowOpen(utils.UTCNow()))
}

func TestWithTransactionRollsBack(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := context.Background()
	contactRepo := repository.NewContactRepository(db.DB)

	workspace, err := fixtures.CreateTestWorkspace()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(workspace, nil)
	require.NoError(t, err)

	failure := errors.New("boom")
	err = repository.WithTransaction(ctx, db.DB, func(txCtx context.Context) error {
		if err := contactRepo.TouchLastInbound(txCtx, contact.ID, utils.UTCNow()); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	reloaded, err := contactRepo.ByID(ctx, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Nil(t, reloaded.LastMessageFromContactAt)
}
