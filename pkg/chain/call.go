package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mbd888/statewatch/pkg/monitor"
)

// TransferOperation returns a mutating operation that sends amount of
// native currency from the calling monitor's actor to the recipient.
func (c *Client) TransferOperation(to common.Address, amount *big.Int) monitor.Operation {
	return c.ExecuteOperation(to, amount, nil, NativeTransferGasLimit)
}

// ExecuteOperation returns a mutating operation that sends a signed
// transaction with the given calldata from the calling monitor's actor.
// A gasLimit of zero means estimate. The operation waits for the
// transaction to be mined; a mined-but-reverted transaction fails with
// a *CallError carrying the receipt so its gas cost is not lost.
func (c *Client) ExecuteOperation(to common.Address, value *big.Int, data []byte, gasLimit uint64) monitor.Operation {
	return func(ctx context.Context, opts monitor.CallOpts) (*monitor.CallResult, error) {
		key, err := c.keyFor(opts.From)
		if err != nil {
			return nil, err
		}

		nonce, err := c.client.PendingNonceAt(ctx, opts.From)
		if err != nil {
			return nil, &CallError{Op: "nonce", Err: err}
		}

		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, &CallError{Op: "gas_price", Err: err}
		}

		if gasLimit == 0 {
			gasLimit, err = c.client.EstimateGas(ctx, ethereum.CallMsg{
				From:  opts.From,
				To:    &to,
				Value: value,
				Data:  data,
			})
			if err != nil {
				return nil, &CallError{Op: "estimate_gas", Err: err}
			}
		}

		tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

		signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
		if err != nil {
			return nil, &CallError{Op: "sign", Err: err}
		}

		if err := c.client.SendTransaction(ctx, signedTx); err != nil {
			return nil, &CallError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
		}

		receipt, err := c.waitMined(ctx, signedTx.Hash())
		if err != nil {
			return nil, err
		}

		if receipt.Status == types.ReceiptStatusFailed {
			return nil, &CallError{
				Op:     "execute",
				TxHash: signedTx.Hash().Hex(),
				Rcpt:   receipt,
				Err:    ErrExecutionReverted,
			}
		}

		return &monitor.CallResult{Receipt: receipt}, nil
	}
}

// waitMined polls for the transaction receipt until it lands or the
// confirmation timeout expires.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(ConfirmationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, hash.Hex())
			}
			return nil, ctx.Err()

		case <-ticker.C:
			receipt, err := c.client.TransactionReceipt(ctx, hash)
			if err != nil {
				// Transaction not yet mined, continue waiting
				continue
			}
			return receipt, nil
		}
	}
}
