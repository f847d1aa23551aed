package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/statewatch/pkg/monitor"
)

// Hardhat's well-known first dev account.
const (
	testKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testKeyAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// fakeEthClient implements EthClient with per-method hooks.
type fakeEthClient struct {
	balanceAt          func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	callContract       func(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	pendingNonceAt     func(ctx context.Context, account common.Address) (uint64, error)
	suggestGasPrice    func(ctx context.Context) (*big.Int, error)
	estimateGas        func(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	sendTransaction    func(ctx context.Context, tx *types.Transaction) error
	transactionReceipt func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

func (f *fakeEthClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balanceAt(ctx, account, blockNumber)
}

func (f *fakeEthClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callContract(ctx, call, blockNumber)
}

func (f *fakeEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.pendingNonceAt(ctx, account)
}

func (f *fakeEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.suggestGasPrice(ctx)
}

func (f *fakeEthClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return f.estimateGas(ctx, call)
}

func (f *fakeEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return f.sendTransaction(ctx, tx)
}

func (f *fakeEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.transactionReceipt(ctx, txHash)
}

func (f *fakeEthClient) Close() {}

func newTestClient(t *testing.T, fake *fakeEthClient) *Client {
	t.Helper()
	c, err := New(Config{ChainID: 31337}, WithClient(fake))
	require.NoError(t, err)
	return c
}

func TestNewRequiresChainID(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewRequiresRPCURLWithoutClient(t *testing.T) {
	_, err := New(Config{ChainID: 1})
	assert.ErrorIs(t, err, ErrRPCConnection)
}

func TestRegisterKey(t *testing.T) {
	c := newTestClient(t, &fakeEthClient{})

	addr, err := c.RegisterKey(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testKeyAddr), addr)

	// 0x prefix is tolerated.
	addr2, err := c.RegisterKey("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)
}

func TestRegisterKeyInvalid(t *testing.T) {
	c := newTestClient(t, &fakeEthClient{})

	_, err := c.RegisterKey("not-a-key")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestBalanceOf(t *testing.T) {
	fake := &fakeEthClient{
		balanceAt: func(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
			return big.NewInt(12345), nil
		},
	}
	c := newTestClient(t, fake)

	b, err := c.BalanceOf(context.Background(), common.HexToAddress(testKeyAddr))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12345), b)
}

func TestTokenBalanceReader(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	holder := common.HexToAddress(testKeyAddr)

	fake := &fakeEthClient{
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			require.NotNil(t, call.To)
			assert.Equal(t, token, *call.To)
			// balanceOf(address) selector.
			assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, call.Data[:4])

			return common.BigToHash(big.NewInt(500)).Bytes(), nil
		},
	}
	c := newTestClient(t, fake)

	b, err := c.TokenBalanceReader(token).BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), b)
}

func TestFieldAccessor(t *testing.T) {
	const vaultABI = `[
		{"constant":true,"inputs":[],"name":"stats","outputs":[{"name":"total","type":"uint256"},{"name":"open","type":"bool"}],"type":"function"}
	]`
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	require.NoError(t, err)

	contract := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	fake := &fakeEthClient{
		callContract: func(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			require.NotNil(t, call.To)
			assert.Equal(t, contract, *call.To)
			return parsed.Methods["stats"].Outputs.Pack(big.NewInt(900), true)
		},
	}
	c := newTestClient(t, fake)

	v, err := c.FieldAccessor(contract, parsed, "stats")(context.Background())
	require.NoError(t, err)

	rec, ok := v.(monitor.Record)
	require.True(t, ok)
	assert.Equal(t, monitor.Big64(900), rec["total"])
	assert.Equal(t, monitor.Bool(true), rec["open"])
}

func TestFieldAccessorUnknownMethod(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(`[]`))
	require.NoError(t, err)

	c := newTestClient(t, &fakeEthClient{})
	_, err = c.FieldAccessor(common.Address{}, parsed, "nope")(context.Background())
	assert.Error(t, err)
}

func TestExecuteOperationMined(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the confirmation poll interval")
	}

	var sent *types.Transaction
	fake := &fakeEthClient{
		pendingNonceAt:  func(context.Context, common.Address) (uint64, error) { return 7, nil },
		suggestGasPrice: func(context.Context) (*big.Int, error) { return big.NewInt(3), nil },
		sendTransaction: func(_ context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		},
		transactionReceipt: func(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{
				Status:            types.ReceiptStatusSuccessful,
				GasUsed:           21000,
				EffectiveGasPrice: big.NewInt(3),
				TxHash:            txHash,
			}, nil
		},
	}
	c := newTestClient(t, fake)
	from, err := c.RegisterKey(testKeyHex)
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	op := c.TransferOperation(to, big.NewInt(1000))

	res, err := op(context.Background(), monitor.CallOpts{From: from})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, types.ReceiptStatusSuccessful, res.Receipt.Status)

	require.NotNil(t, sent)
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, to, *sent.To())
	assert.Equal(t, big.NewInt(1000), sent.Value())
	assert.Equal(t, NativeTransferGasLimit, sent.Gas())

	assert.Equal(t, big.NewInt(63000), monitor.ReceiptGasCost(res.Receipt))
}

func TestExecuteOperationReverted(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the confirmation poll interval")
	}

	fake := &fakeEthClient{
		pendingNonceAt:  func(context.Context, common.Address) (uint64, error) { return 0, nil },
		suggestGasPrice: func(context.Context) (*big.Int, error) { return big.NewInt(1), nil },
		sendTransaction: func(context.Context, *types.Transaction) error { return nil },
		transactionReceipt: func(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{
				Status:            types.ReceiptStatusFailed,
				GasUsed:           30000,
				EffectiveGasPrice: big.NewInt(1),
				TxHash:            txHash,
			}, nil
		},
	}
	c := newTestClient(t, fake)
	from, err := c.RegisterKey(testKeyHex)
	require.NoError(t, err)

	op := c.TransferOperation(common.Address{}, big.NewInt(1))
	_, err = op(context.Background(), monitor.CallOpts{From: from})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionReverted)

	// The receipt survives the failure so gas can still be accounted.
	var rc monitor.ReceiptCarrier
	require.ErrorAs(t, err, &rc)
	assert.Equal(t, uint64(30000), rc.Receipt().GasUsed)
}

func TestExecuteOperationRequiresKey(t *testing.T) {
	c := newTestClient(t, &fakeEthClient{})

	op := c.TransferOperation(common.Address{}, big.NewInt(1))
	_, err := op(context.Background(), monitor.CallOpts{From: common.HexToAddress(testKeyAddr)})
	assert.ErrorIs(t, err, ErrNoKeyForActor)
}

func TestExecuteOperationEstimatesGas(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the confirmation poll interval")
	}

	estimated := false
	fake := &fakeEthClient{
		pendingNonceAt:  func(context.Context, common.Address) (uint64, error) { return 0, nil },
		suggestGasPrice: func(context.Context) (*big.Int, error) { return big.NewInt(1), nil },
		estimateGas: func(context.Context, ethereum.CallMsg) (uint64, error) {
			estimated = true
			return 50000, nil
		},
		sendTransaction: func(context.Context, *types.Transaction) error { return nil },
		transactionReceipt: func(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
		},
	}
	c := newTestClient(t, fake)
	from, err := c.RegisterKey(testKeyHex)
	require.NoError(t, err)

	op := c.ExecuteOperation(common.Address{}, big.NewInt(0), []byte{0x01}, 0)
	_, err = op(context.Background(), monitor.CallOpts{From: from})
	require.NoError(t, err)
	assert.True(t, estimated)
}

func TestCallErrorMessages(t *testing.T) {
	err := &CallError{Op: "send", TxHash: "0xabc", Err: errors.New("nonce too low")}
	assert.Contains(t, err.Error(), "send")
	assert.Contains(t, err.Error(), "0xabc")

	bare := &CallError{Op: "nonce", Err: errors.New("boom")}
	assert.NotContains(t, bare.Error(), "tx:")
}
