package models

import "gorm.io/gorm"

// AgentFollow is a follow relationship between two user accounts. It is
// purely social metadata: the ledger and transaction engine never read
// it, but the engagement score (see UserAccount.RecalculateEngagementScore)
// is derived from follower counts kept in sync by the social package.
type AgentFollow struct {
	gorm.Model
	ID         int64 `json:"id" gorm:"primary_key"`
	FollowerID int64 `json:"followerId" gorm:"not null;index;uniqueIndex:idx_follow"`
	FollowedID int64 `json:"followedId" gorm:"not null;index;uniqueIndex:idx_follow"`
}

func (AgentFollow) TableName() string {
	return "agent_follows"
}

// LeaderboardEntry is a read-only, ranked projection of UserAccount's
// reputation fields. It is never persisted; callers build a slice of
// these from a sorted query over UserAccount and assign Rank themselves.
type LeaderboardEntry struct {
	Rank               int64   `json:"rank"`
	UserID             int64   `json:"userId"`
	Username           string  `json:"username"`
	CompositeScore     float64 `json:"compositeScore"`
	AccuracyScore      float64 `json:"accuracyScore"`
	EngagementScore    float64 `json:"engagementScore"`
	CreatorScore       float64 `json:"creatorScore"`
	ActivityScore      float64 `json:"activityScore"`
	TotalPredictions   int64   `json:"totalPredictions"`
	CorrectPredictions int64   `json:"correctPredictions"`
	CurrentStreak      int64   `json:"currentStreak"`
}

// LeaderboardFromAccounts projects accounts into leaderboard entries,
// assigning Rank 1, 2, ... in slice order. It does not sort: callers pass
// a query result already ordered by composite_score desc.
func LeaderboardFromAccounts(accounts []UserAccount) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(accounts))
	for i, a := range accounts {
		entries = append(entries, LeaderboardEntry{
			Rank:               int64(i + 1),
			UserID:             a.ID,
			Username:           a.Username,
			CompositeScore:     a.CompositeScore,
			AccuracyScore:      a.AccuracyScore,
			EngagementScore:    a.EngagementScore,
			CreatorScore:       a.CreatorScore,
			ActivityScore:      a.ActivityScore,
			TotalPredictions:   a.TotalPredictions,
			CorrectPredictions: a.CorrectPredictions,
			CurrentStreak:      a.CurrentStreak,
		})
	}
	return entries
}

// LeaderboardResponse wraps a page of leaderboard entries, matching the
// teacher's paginated-list convention.
type LeaderboardResponse struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	TotalUsers  int64              `json:"totalUsers"`
	SortBy      string             `json:"sortBy"`
	Page        int                `json:"page"`
	PageSize    int                `json:"pageSize"`
}
