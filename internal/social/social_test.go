package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialpredict/lmsrcore/internal/testsupport"
	"github.com/socialpredict/lmsrcore/models"
)

func TestFollowUpdatesCounters(t *testing.T) {
	db, err := testsupport.NewTestDB()
	require.NoError(t, err)

	alice, err := testsupport.SeedUser(db, 1000)
	require.NoError(t, err)
	bob, err := testsupport.SeedUser(db, 1000)
	require.NoError(t, err)

	require.NoError(t, Follow(db, alice.ID, bob.ID))

	var reloadedAlice, reloadedBob models.UserAccount
	require.NoError(t, db.First(&reloadedAlice, alice.ID).Error)
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)

	assert.Equal(t, int64(1), reloadedAlice.TotalFollowing)
	assert.Equal(t, int64(1), reloadedBob.TotalFollowers)
}

func TestFollowIsIdempotent(t *testing.T) {
	db, err := testsupport.NewTestDB()
	require.NoError(t, err)

	alice, _ := testsupport.SeedUser(db, 1000)
	bob, _ := testsupport.SeedUser(db, 1000)

	require.NoError(t, Follow(db, alice.ID, bob.ID))
	require.NoError(t, Follow(db, alice.ID, bob.ID))

	var reloadedBob models.UserAccount
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)
	assert.Equal(t, int64(1), reloadedBob.TotalFollowers)
}

func TestFollowRejectsSelfFollow(t *testing.T) {
	db, err := testsupport.NewTestDB()
	require.NoError(t, err)

	alice, _ := testsupport.SeedUser(db, 1000)
	assert.Error(t, Follow(db, alice.ID, alice.ID))
}

func TestUnfollowDecrementsCounters(t *testing.T) {
	db, err := testsupport.NewTestDB()
	require.NoError(t, err)

	alice, _ := testsupport.SeedUser(db, 1000)
	bob, _ := testsupport.SeedUser(db, 1000)

	require.NoError(t, Follow(db, alice.ID, bob.ID))
	require.NoError(t, Unfollow(db, alice.ID, bob.ID))

	var reloadedAlice, reloadedBob models.UserAccount
	require.NoError(t, db.First(&reloadedAlice, alice.ID).Error)
	require.NoError(t, db.First(&reloadedBob, bob.ID).Error)

	assert.Equal(t, int64(0), reloadedAlice.TotalFollowing)
	assert.Equal(t, int64(0), reloadedBob.TotalFollowers)
}

func TestLeaderboardRanksByCompositeScore(t *testing.T) {
	db, err := testsupport.NewTestDB()
	require.NoError(t, err)

	low, _ := testsupport.SeedUser(db, 1000)
	high, _ := testsupport.SeedUser(db, 1000)

	require.NoError(t, db.Model(&models.UserAccount{}).Where("id = ?", low.ID).
		Update("composite_score", 10.0).Error)
	require.NoError(t, db.Model(&models.UserAccount{}).Where("id = ?", high.ID).
		Update("composite_score", 90.0).Error)

	page, err := Leaderboard(db, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Leaderboard, 2)

	assert.Equal(t, high.ID, page.Leaderboard[0].UserID)
	assert.Equal(t, int64(1), page.Leaderboard[0].Rank)
	assert.Equal(t, low.ID, page.Leaderboard[1].UserID)
	assert.Equal(t, int64(2), page.Leaderboard[1].Rank)
	assert.Equal(t, int64(2), page.TotalUsers)
}
