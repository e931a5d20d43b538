//go:build integration

package risk

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txbuddy/internal/idgen"
	"github.com/mbd888/txbuddy/internal/testutil"
)

func TestPostgresStore_RecordAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	store := NewPostgresStore(db)
	ctx := context.Background()

	hash := "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	now := time.Now().UTC().Truncate(time.Microsecond)

	withFacts := &Assessment{
		ID:     idgen.New(),
		TxHash: hash,
		Verdict: Verdict{
			Level:          LevelDanger,
			Reason:         "Transaction failed",
			Recommendation: "Check the contract before retrying",
		},
		Facts: &Facts{
			ValueETH:    decimal.RequireFromString("1.5"),
			GasUsed:     21000,
			GasLimit:    21000,
			GasPriceWei: big.NewInt(1_000_000_000),
			Failed:      true,
		},
		Rule:        "failed",
		EvaluatedAt: now,
	}
	noFacts := &Assessment{
		ID:          idgen.New(),
		TxHash:      hash,
		Verdict:     Verdict{Level: LevelWarning, Reason: "Unable to fully analyze transaction"},
		Rule:        "unavailable",
		EvaluatedAt: now.Add(time.Second),
	}
	require.NoError(t, store.Record(ctx, withFacts))
	require.NoError(t, store.Record(ctx, noFacts))

	got, err := store.ListByTx(ctx, hash, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "unavailable", got[0].Rule)
	assert.Nil(t, got[0].Facts)

	assert.Equal(t, LevelDanger, got[1].Verdict.Level)
	require.NotNil(t, got[1].Facts)
	assert.True(t, got[1].Facts.Failed)
	assert.True(t, got[1].Facts.ValueETH.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 0, got[1].Facts.GasPriceWei.Cmp(big.NewInt(1_000_000_000)))
}
