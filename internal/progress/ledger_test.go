package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestXPGain(t *testing.T) {
	tests := []struct {
		name   string
		action ActionKind
		ctx    ActionContext
		want   uint64
	}{
		{"analysis", ActionTransactionAnalyzed, ActionContext{}, 10},
		{"analysis complexity 4", ActionTransactionAnalyzed, ActionContext{Complexity: 4}, 14},
		{"safe", ActionSafeTransaction, ActionContext{}, 24},
		{"complex", ActionComplexInteraction, ActionContext{}, 45},
		{"complex complexity 5", ActionComplexInteraction, ActionContext{Complexity: 5}, 67},
		{"defi", ActionFirstDefi, ActionContext{}, 100},
		{"achievement", ActionAchievementUnlocked, ActionContext{}, 100},
		{"unknown", ActionKind("NOPE"), ActionContext{Complexity: 9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, XPGain(tt.action, tt.ctx))
		})
	}
}

func TestCalculateLevel(t *testing.T) {
	cases := map[uint64]int{0: 1, 99: 1, 100: 2, 149: 2, 150: 3, 224: 3, 225: 4, 337: 5}
	for xp, want := range cases {
		assert.Equal(t, want, CalculateLevel(xp), "xp=%d", xp)
	}
}

func TestXPForLevel_RoundTrip(t *testing.T) {
	for level := 1; level <= MaxLevel; level++ {
		assert.Equal(t, level, CalculateLevel(XPForLevel(level)), "level=%d", level)
	}
	// Below 2^53 thresholds are exact, so one XP short stays a level behind.
	for level := 2; level <= 60; level++ {
		assert.Equal(t, level-1, CalculateLevel(XPForLevel(level)-1), "level=%d", level)
	}
	assert.Equal(t, uint64(0), XPForLevel(0))
	assert.Equal(t, XPForLevel(MaxLevel), XPForLevel(MaxLevel+5))
}

func TestCalculateLevel_CapsAtMax(t *testing.T) {
	assert.Equal(t, MaxLevel, CalculateLevel(^uint64(0)))
}

func TestApplyAction_FirstAnalysis(t *testing.T) {
	p := Default("0xaaa")

	res := ApplyAction(p, ActionTransactionAnalyzed, ActionContext{Complexity: 4}, t0)

	assert.Equal(t, uint64(14), res.Progress.XP)
	assert.Equal(t, 1, res.Progress.Level)
	assert.Equal(t, uint64(1), res.Progress.TransactionsAnalyzed)
	assert.Equal(t, []string{"FIRST_ANALYSIS"}, res.Progress.AchievementIDs())
	assert.Equal(t, t0, res.Progress.Achievements[0].DateUnlocked)
	assert.Equal(t, t0, res.Progress.LastUpdate)
	assert.False(t, res.LeveledUp)
	require.Len(t, res.NewAchievements, 1)

	// input untouched
	assert.Equal(t, uint64(0), p.XP)
	assert.Empty(t, p.Achievements)
}

func TestApplyAction_UnknownActionIsNoop(t *testing.T) {
	p := Default("0xaaa")
	p.XP = 50

	res := ApplyAction(p, ActionKind("BOGUS"), ActionContext{ComplexTransaction: true}, t0)

	assert.Equal(t, uint64(0), res.XPGained)
	assert.Equal(t, uint64(50), res.Progress.XP)
	assert.Empty(t, res.NewAchievements)
	assert.True(t, res.Progress.LastUpdate.IsZero())
}

func TestApplyAction_AchievementUnlockedDoesNotCountTransaction(t *testing.T) {
	res := ApplyAction(Default("0xaaa"), ActionAchievementUnlocked, ActionContext{}, t0)
	assert.Equal(t, uint64(0), res.Progress.TransactionsAnalyzed)
	assert.Equal(t, uint64(100), res.Progress.XP)
	assert.Equal(t, 2, res.Progress.Level)
	assert.True(t, res.LeveledUp)
	assert.Empty(t, res.Progress.Achievements)
}

func TestApplyAction_CatalogOrder(t *testing.T) {
	p := Default("0xbbb")
	p.TransactionsAnalyzed = 9
	p.XP = 40

	res := ApplyAction(p, ActionTransactionAnalyzed, ActionContext{
		ComplexTransaction:   true,
		HighValueTransaction: true,
	}, t0)

	assert.Equal(t, []string{"TRANSACTION_EXPLORER", "COMPLEXITY_MASTER", "WHALE_WATCHER"}, res.Progress.AchievementIDs())
}

func TestApplyAction_AchievementsAreNotReawarded(t *testing.T) {
	earlier := t0.Add(-48 * time.Hour)
	p := Default("0xccc")
	p.Achievements = []Unlocked{{ID: "COMPLEXITY_MASTER", DateUnlocked: earlier}}

	res := ApplyAction(p, ActionComplexInteraction, ActionContext{ComplexTransaction: true}, t0)

	assert.Equal(t, []string{"COMPLEXITY_MASTER", "FIRST_ANALYSIS"}, res.Progress.AchievementIDs())
	assert.Equal(t, earlier, res.Progress.Achievements[0].DateUnlocked)
	require.Len(t, res.NewAchievements, 1)
	assert.Equal(t, "FIRST_ANALYSIS", res.NewAchievements[0].ID)
}

func TestApplyAction_RisingAnalyst(t *testing.T) {
	p := Default("0xddd")
	p.XP = XPForLevel(10) - 1
	p.Level = 9
	p.TransactionsAnalyzed = 20

	res := ApplyAction(p, ActionTransactionAnalyzed, ActionContext{}, t0)

	assert.Equal(t, 10, res.Progress.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 9, res.PreviousLevel)
	assert.Equal(t, []string{"RISING_ANALYST"}, res.Progress.AchievementIDs())
}

func TestApplyAction_RiskDetectorNeedsLevel30(t *testing.T) {
	low := Default("0xeee")
	low.XP = XPForLevel(29)
	low.TransactionsAnalyzed = 5
	res := ApplyAction(low, ActionTransactionAnalyzed, ActionContext{RiskLevel: "danger"}, t0)
	assert.False(t, res.Progress.Has("RISK_DETECTOR"))

	high := Default("0xeee")
	high.XP = XPForLevel(30)
	high.TransactionsAnalyzed = 5
	res = ApplyAction(high, ActionTransactionAnalyzed, ActionContext{RiskLevel: "danger"}, t0)
	assert.True(t, res.Progress.Has("RISK_DETECTOR"))
}

func TestApplyAction_ContextAchievements(t *testing.T) {
	p := Default("0xfff")
	p.TransactionsAnalyzed = 3

	res := ApplyAction(p, ActionFirstDefi, ActionContext{
		ConsecutiveDays: 7,
		UniqueContracts: 10,
		DefiInteraction: true,
	}, t0)

	assert.Equal(t, []string{"DEDICATED_ANALYST", "CONTRACT_CONNOISSEUR", "DEFI_EXPLORER"}, res.Progress.AchievementIDs())
}

func TestLookup(t *testing.T) {
	a, ok := Lookup("WHALE_WATCHER")
	require.True(t, ok)
	assert.Equal(t, "Whale Watcher", a.Name)
	assert.Equal(t, uint64(400), a.XPReward)

	_, ok = Lookup("NOPE")
	assert.False(t, ok)
}
