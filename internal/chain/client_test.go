package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEth struct {
	head     uint64
	headErr  error
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func (m *mockEth) BlockNumber(context.Context) (uint64, error) { return m.head, m.headErr }
func (m *mockEth) ChainID(context.Context) (*big.Int, error)    { return big.NewInt(8453), nil }
func (m *mockEth) Close()                                       {}

func (m *mockEth) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	tx, ok := m.txs[h]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (m *mockEth) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := m.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func signedTx(t *testing.T, to *common.Address, data []byte) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainID := big.NewInt(8453)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       to,
		Value:    big.NewInt(2_000_000_000_000_000_000),
		Gas:      21000,
		GasPrice: big.NewInt(3_000_000_000),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)
	return signed, crypto.PubkeyToAddress(key.PublicKey)
}

func TestClient_GetTransaction(t *testing.T) {
	to := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	tx, from := signedTx(t, &to, []byte{0xa9, 0x05, 0x9c, 0xbb})
	eth := &mockEth{txs: map[common.Hash]*types.Transaction{tx.Hash(): tx}}
	c := New(eth, big.NewInt(8453), nil)

	got, err := c.GetTransaction(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(from.Hex()), got.From)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", got.To)
	assert.Equal(t, "0xa9059cbb", got.Input)
	assert.Equal(t, uint64(21000), got.Gas)
	assert.Equal(t, uint64(7), got.Nonce)
	assert.Equal(t, "2000000000000000000", got.Value.String())
	assert.False(t, got.IsContractCreation())
}

func TestClient_GetTransaction_ContractCreation(t *testing.T) {
	tx, _ := signedTx(t, nil, []byte{0x60, 0x80})
	eth := &mockEth{txs: map[common.Hash]*types.Transaction{tx.Hash(): tx}}

	got, err := New(eth, big.NewInt(8453), nil).GetTransaction(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.True(t, got.IsContractCreation())
}

func TestClient_NotFound(t *testing.T) {
	c := New(&mockEth{}, big.NewInt(8453), nil)
	hash := "0x" + strings.Repeat("11", 32)

	_, err := c.GetTransaction(context.Background(), hash)
	assert.ErrorIs(t, err, ErrTxNotFound)

	_, err = c.GetReceipt(context.Background(), hash)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestClient_GetReceipt(t *testing.T) {
	h := common.HexToHash("0x" + strings.Repeat("22", 32))
	eth := &mockEth{receipts: map[common.Hash]*types.Receipt{
		h: {
			TxHash:      h,
			Status:      types.ReceiptStatusFailed,
			GasUsed:     50_000,
			BlockNumber: big.NewInt(1234),
			Logs:        []*types.Log{{}, {}},
		},
	}}

	r, err := New(eth, big.NewInt(8453), nil).GetReceipt(context.Background(), h.Hex())
	require.NoError(t, err)
	assert.False(t, r.Succeeded())
	assert.Equal(t, uint64(50_000), r.GasUsed)
	assert.Equal(t, uint64(1234), r.BlockNumber)
	assert.Equal(t, 2, r.LogCount)
	assert.Empty(t, r.ContractAddress)
}

func TestClient_CurrentBlock(t *testing.T) {
	c := New(&mockEth{head: 99}, big.NewInt(8453), nil)
	n, err := c.CurrentBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), n)
	assert.NoError(t, c.Ping(context.Background()))

	c = New(&mockEth{headErr: errors.New("dial tcp: refused")}, big.NewInt(8453), nil)
	_, err = c.CurrentBlock(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestClient_DynamicFeeGasPrice(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainID := big.NewInt(8453)
	to := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       21000,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(150_000_000_000),
	}), types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)

	eth := &mockEth{
		txs: map[common.Hash]*types.Transaction{tx.Hash(): tx},
		receipts: map[common.Hash]*types.Receipt{tx.Hash(): {
			TxHash:            tx.Hash(),
			Status:            types.ReceiptStatusSuccessful,
			GasUsed:           21000,
			EffectiveGasPrice: big.NewInt(5_000_000_000),
			BlockNumber:       big.NewInt(10),
		}},
	}
	c := New(eth, chainID, nil)

	got, err := c.GetTransaction(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	r, err := c.GetReceipt(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)

	assert.Equal(t, "150000000000", got.GasPrice.String())
	assert.Equal(t, "5000000000", PaidGasPrice(got, r).String())
}

func TestPaidGasPrice_FallsBackToTransaction(t *testing.T) {
	tx := &Transaction{GasPrice: big.NewInt(3)}
	assert.Equal(t, int64(3), PaidGasPrice(tx, &Receipt{}).Int64())
	assert.Nil(t, PaidGasPrice(&Transaction{}, &Receipt{}))
}
