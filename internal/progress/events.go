package progress

import (
	"context"

	"github.com/mbd888/txbuddy/internal/events"
)

// PublishTo returns an Observer that emits level_up and
// achievement_unlocked events.
func PublishTo(pub events.Publisher) Observer {
	return func(ctx context.Context, address string, res Result) {
		if res.LeveledUp {
			pub.Publish(ctx, events.New(events.TypeLevelUp, address, map[string]any{
				"from": res.PreviousLevel,
				"to":   res.Progress.Level,
				"xp":   res.Progress.XP,
			}))
		}
		for _, a := range res.NewAchievements {
			pub.Publish(ctx, events.New(events.TypeAchievementUnlocked, address, a))
		}
	}
}
