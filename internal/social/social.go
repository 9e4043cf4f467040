// Package social implements the follow graph and leaderboard query that
// feed UserAccount's engagement score: following/unfollowing updates the
// follower and following counters on both accounts, and Leaderboard
// projects a page of ranked UserAccount rows through
// models.LeaderboardFromAccounts.
package social

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
	"github.com/socialpredict/lmsrcore/models"
)

// Follow records followerID following followedID, idempotently (a repeat
// follow is a no-op), and updates both accounts' follower/following
// counters inside a single transaction.
func Follow(db *gorm.DB, followerID, followedID int64) error {
	if followerID == followedID {
		return fmt.Errorf("social: follow: %w: cannot follow self", coreerr.ErrInvalidInputs)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followed_id"}},
			DoNothing: true,
		}).Create(&models.AgentFollow{FollowerID: followerID, FollowedID: followedID})
		if res.Error != nil {
			return fmt.Errorf("social: follow: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil // already following
		}
		if err := tx.Model(&models.UserAccount{}).Where("id = ?", followedID).
			UpdateColumn("total_followers", gorm.Expr("total_followers + 1")).Error; err != nil {
			return fmt.Errorf("social: follow: increment followers: %w", err)
		}
		if err := tx.Model(&models.UserAccount{}).Where("id = ?", followerID).
			UpdateColumn("total_following", gorm.Expr("total_following + 1")).Error; err != nil {
			return fmt.Errorf("social: follow: increment following: %w", err)
		}
		return nil
	})
}

// Unfollow removes the follow relationship, if one exists, and decrements
// both accounts' counters. Unfollowing a relationship that does not exist
// is a no-op.
func Unfollow(db *gorm.DB, followerID, followedID int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("follower_id = ? AND followed_id = ?", followerID, followedID).
			Delete(&models.AgentFollow{})
		if res.Error != nil {
			return fmt.Errorf("social: unfollow: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.UserAccount{}).Where("id = ? AND total_followers > 0", followedID).
			UpdateColumn("total_followers", gorm.Expr("total_followers - 1")).Error; err != nil {
			return fmt.Errorf("social: unfollow: decrement followers: %w", err)
		}
		if err := tx.Model(&models.UserAccount{}).Where("id = ? AND total_following > 0", followerID).
			UpdateColumn("total_following", gorm.Expr("total_following - 1")).Error; err != nil {
			return fmt.Errorf("social: unfollow: decrement following: %w", err)
		}
		return nil
	})
}

// Leaderboard returns a composite-score-ranked page of accounts. page is
// 1-indexed; a pageSize below 1 falls back to 20 and one above 100 is
// capped at 100.
func Leaderboard(db *gorm.DB, page, pageSize int) (*models.LeaderboardResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var total int64
	if err := db.Model(&models.UserAccount{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("social: leaderboard: count: %w", err)
	}

	var accounts []models.UserAccount
	if err := db.Order("composite_score DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("social: leaderboard: query: %w", err)
	}

	entries := models.LeaderboardFromAccounts(accounts)
	for i := range entries {
		entries[i].Rank = int64((page-1)*pageSize + i + 1)
	}

	return &models.LeaderboardResponse{
		Leaderboard: entries,
		TotalUsers:  total,
		SortBy:      "composite_score",
		Page:        page,
		PageSize:    pageSize,
	}, nil
}
