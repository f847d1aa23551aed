// Package chain provides go-ethereum backed value accessors and call
// executors for statewatch monitors: native and ERC-20 balance readers,
// contract view-method accessors, and a signing call executor whose
// receipts feed gas-adjusted expectations.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/statewatch/pkg/monitor"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidPrivateKey = errors.New("chain: invalid private key")
	ErrNoKeyForActor     = errors.New("chain: no signing key registered for actor")
	ErrExecutionReverted = errors.New("chain: transaction reverted")
	ErrTimeout           = errors.New("chain: operation timed out")
	ErrRPCConnection     = errors.New("chain: RPC connection failed")
)

// CallError wraps call failures with context. Calls that were mined but
// reverted carry their receipt, so gas consumed by the failed call can
// still be folded into balance expectations.
type CallError struct {
	Op     string         // Operation that failed
	TxHash string         // Transaction hash if available
	Rcpt   *types.Receipt // Receipt if the transaction was mined
	Err    error          // Underlying error
}

func (e *CallError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Receipt returns the mined receipt, if any. Satisfies
// monitor.ReceiptCarrier.
func (e *CallError) Receipt() *types.Receipt { return e.Rcpt }

// -----------------------------------------------------------------------------
// Interfaces - for testability and flexibility
// -----------------------------------------------------------------------------

// EthClient abstracts go-ethereum client for testing
type EthClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

// ERC20 minimal ABI for balanceOf
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const (
	// NativeTransferGasLimit is the fixed gas limit of a plain value transfer
	NativeTransferGasLimit = uint64(21000)

	// DefaultConfirmationTimeout for waiting on transactions
	DefaultConfirmationTimeout = 90 * time.Second

	// ConfirmationPollInterval between receipt checks
	ConfirmationPollInterval = 2 * time.Second
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Config for creating a new chain client
type Config struct {
	RPCURL  string
	ChainID int64
}

// Option configures the client
type Option func(*Client)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(c *Client) {
		c.client = client
	}
}

// Client bridges monitors to one RPC endpoint. It reads balances and
// contract fields, and signs and executes mutating calls for actors
// whose keys were registered with RegisterKey.
type Client struct {
	client  EthClient
	chainID *big.Int
	erc20   abi.ABI

	mu   sync.Mutex
	keys map[common.Address]*ecdsa.PrivateKey
}

// Compile-time interface check
var _ monitor.BalanceReader = (*Client)(nil)

// New creates a new chain client
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain ID required")
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	c := &Client{
		chainID: big.NewInt(cfg.ChainID),
		erc20:   parsedABI,
		keys:    make(map[common.Address]*ecdsa.PrivateKey),
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	// Connect to RPC if no client provided
	if c.client == nil {
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
		}
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.client = client
	}

	return c, nil
}

// RegisterKey parses a hex-encoded private key, stores it for signing,
// and returns the actor address it controls.
func (c *Client) RegisterKey(hexKey string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}
	addr := crypto.PubkeyToAddress(*publicKey)

	c.mu.Lock()
	c.keys[addr] = privateKey
	c.mu.Unlock()

	return addr, nil
}

func (c *Client) keyFor(addr common.Address) (*ecdsa.PrivateKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoKeyForActor, addr.Hex())
	}
	return key, nil
}

// BalanceOf returns the native balance of any address
func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// TokenBalanceReader returns a balance reader over an ERC-20 contract's
// balanceOf.
func (c *Client) TokenBalanceReader(token common.Address) monitor.BalanceReader {
	return monitor.BalanceReaderFunc(func(ctx context.Context, addr common.Address) (*big.Int, error) {
		data, err := c.erc20.Pack("balanceOf", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
		}

		result, err := c.client.CallContract(ctx, ethereum.CallMsg{
			To:   &token,
			Data: data,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to call balanceOf: %w", err)
		}

		balance := new(big.Int)
		balance.SetBytes(result)
		return balance, nil
	})
}

// FieldAccessor returns a monitor accessor over one view method of a
// contract. The accessor's parameters are packed as the method's
// arguments on every fetch, and the decoded outputs come back as a
// monitor.Value (a record when the method returns more than one thing).
func (c *Client) FieldAccessor(contract common.Address, contractABI abi.ABI, method string) monitor.Accessor {
	return func(ctx context.Context, params ...any) (monitor.Value, error) {
		data, err := contractABI.Pack(method, params...)
		if err != nil {
			return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
		}

		result, err := c.client.CallContract(ctx, ethereum.CallMsg{
			To:   &contract,
			Data: data,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to call %s: %w", method, err)
		}

		vals, err := contractABI.Unpack(method, result)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
		}

		m, ok := contractABI.Methods[method]
		if !ok {
			return nil, fmt.Errorf("method %s not in ABI", method)
		}
		return FromABI(m.Outputs, vals)
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
