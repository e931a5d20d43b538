//go:build integration

package progress

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txbuddy/internal/testutil"
)

func TestPostgresStore_GetMissing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)

	_, err := store.Get(context.Background(), "0x00000000000000000000000000000000000000aa")
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestPostgresStore_PutGetRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := &UserProgress{
		Address:              "0x00000000000000000000000000000000000000AB",
		XP:                   math.MaxUint64,
		Level:                100,
		TransactionsAnalyzed: 42,
		Achievements: []Unlocked{
			{ID: "first_transaction", Name: "First Steps", XPReward: 50, DateUnlocked: now},
		},
		LastUpdate: now,
	}
	require.NoError(t, store.Put(ctx, p))

	got, err := store.Get(ctx, "0x00000000000000000000000000000000000000ab")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000ab", got.Address)
	assert.Equal(t, uint64(math.MaxUint64), got.XP)
	assert.Equal(t, 100, got.Level)
	assert.Equal(t, uint64(42), got.TransactionsAnalyzed)
	require.Len(t, got.Achievements, 1)
	assert.Equal(t, "first_transaction", got.Achievements[0].ID)
	assert.True(t, now.Equal(got.LastUpdate))
}

func TestPostgresStore_PutOverwrites(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	addr := "0x00000000000000000000000000000000000000ac"
	require.NoError(t, store.Put(ctx, &UserProgress{Address: addr, XP: 10, Level: 1, LastUpdate: time.Now()}))
	require.NoError(t, store.Put(ctx, &UserProgress{Address: addr, XP: 120, Level: 2, LastUpdate: time.Now()}))

	got, err := store.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), got.XP)
	assert.Equal(t, 2, got.Level)
	assert.Empty(t, got.Achievements)
}
