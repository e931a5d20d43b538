package progress

import (
	"math"
	"time"
)

// Result describes one ApplyAction transition.
type Result struct {
	Progress        *UserProgress `json:"progress"`
	XPGained        uint64        `json:"xpGained"`
	LeveledUp       bool          `json:"leveledUp"`
	PreviousLevel   int           `json:"previousLevel"`
	NewAchievements []Unlocked    `json:"newAchievements"`
}

// XPGain is floor(baseXP * multiplier), where a present complexity scales
// the table multiplier by (1 + complexity/10). Unknown actions earn 0.
func XPGain(action ActionKind, ctx ActionContext) uint64 {
	entry, ok := XPTable[action]
	if !ok {
		return 0
	}
	multiplier := entry.Multiplier
	if ctx.Complexity != 0 {
		multiplier *= 1 + float64(ctx.Complexity)/10
	}
	gain := math.Floor(float64(entry.BaseXP) * multiplier)
	if gain <= 0 {
		return 0
	}
	return uint64(gain)
}

// threshold is the cumulative XP needed to move from level to level+1.
func threshold(level int) float64 {
	return math.Floor(100 * math.Pow(1.5, float64(level-1)))
}

// CalculateLevel derives the level from cumulative XP.
func CalculateLevel(xp uint64) int {
	level := 1
	for level < MaxLevel {
		if float64(xp) < threshold(level) {
			break
		}
		level++
	}
	return level
}

// XPForLevel is the minimum cumulative XP at which CalculateLevel reports
// level. Out-of-range levels are clamped to [1, MaxLevel].
func XPForLevel(level int) uint64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return uint64(threshold(level - 1))
}

// ApplyAction computes the next progress state. It does not modify p.
// Unknown actions return an unchanged copy.
func ApplyAction(p *UserProgress, action ActionKind, ctx ActionContext, now time.Time) Result {
	next := p.Clone()
	if next.Level < 1 {
		next.Level = 1
	}
	res := Result{Progress: next, PreviousLevel: next.Level, NewAchievements: []Unlocked{}}

	entry, ok := XPTable[action]
	if !ok {
		return res
	}

	res.XPGained = XPGain(action, ctx)
	next.XP += res.XPGained
	if entry.CountsTransaction {
		next.TransactionsAnalyzed++
	}
	next.Level = CalculateLevel(next.XP)
	res.LeveledUp = next.Level > res.PreviousLevel

	for _, a := range Catalog {
		if next.Has(a.ID) || !a.Earned(next, ctx) {
			continue
		}
		u := Unlocked{
			ID:           a.ID,
			Name:         a.Name,
			Description:  a.Description,
			XPReward:     a.XPReward,
			DateUnlocked: now,
		}
		next.Achievements = append(next.Achievements, u)
		res.NewAchievements = append(res.NewAchievements, u)
	}

	next.LastUpdate = now
	return res
}
