package models

import "testing"

func TestRecalculateAccuracyScoreNoResolutions(t *testing.T) {
	u := &UserAccount{}
	u.RecalculateAccuracyScore()
	if u.AccuracyScore != 0 {
		t.Fatalf("expected 0 accuracy with no resolved predictions, got %v", u.AccuracyScore)
	}
}

func TestRecalculateAccuracyScoreRatio(t *testing.T) {
	u := &UserAccount{ResolvedPredictions: 10, CorrectPredictions: 7}
	u.RecalculateAccuracyScore()
	if u.AccuracyScore != 70 {
		t.Fatalf("expected 70, got %v", u.AccuracyScore)
	}
}

func TestRecalculateAllScoresNeverTouchesLedger(t *testing.T) {
	u := &UserAccount{
		BalanceLedger:       123456,
		StakedLedger:        7890,
		ResolvedPredictions: 4,
		CorrectPredictions:  4,
		TotalFollowers:      50,
		DaysActiveMonth:     40,
		MarketsCreated:      3,
	}
	u.RecalculateAllScores()
	if u.BalanceLedger != 123456 || u.StakedLedger != 7890 {
		t.Fatalf("recalculating scores must not touch ledger fields")
	}
	if u.CompositeScore <= 0 {
		t.Fatalf("expected a positive composite score, got %v", u.CompositeScore)
	}
	if u.ActivityScore != 100 {
		t.Fatalf("days active should clamp at 30/30 = 100, got %v", u.ActivityScore)
	}
}

func TestRecordStreak(t *testing.T) {
	u := &UserAccount{}
	u.RecordStreak(true)
	u.RecordStreak(true)
	u.RecordStreak(true)
	if u.CurrentStreak != 3 || u.LongestStreak != 3 {
		t.Fatalf("expected streak 3/3, got %v/%v", u.CurrentStreak, u.LongestStreak)
	}
	u.RecordStreak(false)
	if u.CurrentStreak != 0 || u.LongestStreak != 3 {
		t.Fatalf("expected streak reset to 0 with longest retained at 3, got %v/%v", u.CurrentStreak, u.LongestStreak)
	}
}

func TestLeaderboardFromAccountsAssignsRank(t *testing.T) {
	accounts := []UserAccount{
		{ID: 1, Username: "a", CompositeScore: 90},
		{ID: 2, Username: "b", CompositeScore: 80},
	}
	entries := LeaderboardFromAccounts(accounts)
	if len(entries) != 2 || entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("unexpected ranking: %+v", entries)
	}
}
