package risk

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txbuddy/internal/chain"
)

type stubVerifier struct {
	verified map[string]bool
	calls    []string
}

func (s *stubVerifier) IsVerifiedContract(_ context.Context, address string) bool {
	s.calls = append(s.calls, address)
	return s.verified[address]
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func txTo(to string, value *big.Int) *chain.Transaction {
	return &chain.Transaction{
		Hash:     "0x" + strings.Repeat("ab", 32),
		From:     "0xaaa",
		To:       to,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
		Input:    "0x",
	}
}

func okReceipt() *chain.Receipt {
	return &chain.Receipt{Status: chain.StatusSuccess, GasUsed: 21000}
}

func TestAssessor_HighValueToUnverified(t *testing.T) {
	store := NewMemoryStore()
	v := &stubVerifier{verified: map[string]bool{}}
	a := NewAssessor(v, store, nil)

	tx := txTo("0xdead", eth(2))
	got := a.Assess(context.Background(), "0xaaa", tx, okReceipt())

	assert.Equal(t, LevelDanger, got.Level)
	assert.Equal(t, []string{"0xdead"}, v.calls)

	audit, err := store.ListByTx(context.Background(), tx.Hash, 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "high_value_unverified", audit[0].Rule)
	assert.Equal(t, "0xaaa", audit[0].Address)
	require.NotNil(t, audit[0].Facts)
	assert.Equal(t, "2", audit[0].Facts.ValueETH.String())
}

func TestAssessor_VerifiedDestinationIsSafe(t *testing.T) {
	v := &stubVerifier{verified: map[string]bool{"0xbeef": true}}
	got := NewAssessor(v, nil, nil).Assess(context.Background(), "0xaaa", txTo("0xbeef", eth(2)), okReceipt())
	assert.Equal(t, LevelSafe, got.Level)
}

func TestAssessor_ContractCreationCountsAsUnverified(t *testing.T) {
	v := &stubVerifier{verified: map[string]bool{"": true}}
	got := NewAssessor(v, nil, nil).Assess(context.Background(), "0xaaa", txTo("", eth(5)), okReceipt())
	assert.Equal(t, LevelDanger, got.Level)
	assert.Empty(t, v.calls, "no lookup without a destination")
}

func TestAssessor_MissingDataFallsBack(t *testing.T) {
	store := NewMemoryStore()
	a := NewAssessor(&stubVerifier{}, store, nil)

	got := a.Assess(context.Background(), "0xaaa", txTo("0xdead", eth(1)), nil)
	assert.Equal(t, Fallback(), got)

	audit, _ := store.ListByTx(context.Background(), "0x"+strings.Repeat("ab", 32), 0)
	require.Len(t, audit, 1)
	assert.Equal(t, RuleFallback, audit[0].Rule)
	assert.Nil(t, audit[0].Facts)
}

type panickyVerifier struct{}

func (panickyVerifier) IsVerifiedContract(context.Context, string) bool { panic("boom") }

func TestAssessor_PanicFallsBack(t *testing.T) {
	got := NewAssessor(panickyVerifier{}, nil, nil).Assess(context.Background(), "0xaaa", txTo("0xdead", eth(1)), okReceipt())
	assert.Equal(t, Fallback(), got)
}

func TestFactsFrom(t *testing.T) {
	tx := txTo("0xdead", big.NewInt(1_500_000_000_000_000_000))
	tx.Input = "0xa9059cbb" + strings.Repeat("0", 128)
	tx.Gas = 60_000
	r := &chain.Receipt{Status: chain.StatusFailed, GasUsed: 55_000}

	f := FactsFrom(tx, r, true)
	assert.Equal(t, "1.5", f.ValueETH.String())
	assert.Equal(t, 138, f.InputLength)
	assert.Equal(t, "0xa9059cbb", f.MethodID)
	assert.True(t, f.Failed)
	assert.True(t, f.VerifiedContract)
	assert.True(t, f.UnusualGas())
	assert.False(t, f.ComplexData())
}

func TestMemoryStore_ListOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, rule := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, &Assessment{TxHash: "0xAB", Rule: rule}))
	}
	got, err := s.ListByTx(ctx, "0xab", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Rule)
	assert.Equal(t, "b", got[1].Rule)
}

func TestAssessor_DynamicFeeUsesEffectivePrice(t *testing.T) {
	to := "0x52908400098527886e0f7030069857d2e4169ee7"
	tx := txTo(to, big.NewInt(0))
	tx.GasPrice = big.NewInt(150_000_000_000) // fee cap
	r := okReceipt()
	r.EffectiveGasPrice = big.NewInt(5_000_000_000)

	v := &stubVerifier{verified: map[string]bool{to: true}}
	got := NewAssessor(v, nil, nil).Assess(context.Background(), "0xaaa", tx, r)
	assert.Equal(t, LevelSafe, got.Level, got.Reason)

	f := FactsFrom(tx, r, true)
	assert.Equal(t, 0, f.GasPriceWei.Cmp(big.NewInt(5_000_000_000)))
}

func TestAssessor_HighEffectivePriceStillWarns(t *testing.T) {
	to := "0x52908400098527886e0f7030069857d2e4169ee7"
	tx := txTo(to, big.NewInt(0))
	tx.GasPrice = big.NewInt(200_000_000_000)
	r := okReceipt()
	r.EffectiveGasPrice = big.NewInt(150_000_000_000)

	v := &stubVerifier{verified: map[string]bool{to: true}}
	got := NewAssessor(v, nil, nil).Assess(context.Background(), "0xaaa", tx, r)
	assert.Equal(t, LevelWarning, got.Level)
	assert.Equal(t, "Unusually high gas price", got.Reason)
}
