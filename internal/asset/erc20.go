package asset

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rewardLedger/internal/chain"
	"rewardLedger/internal/model"
)

// Backend is the subset of chain.Client used by ERC20.
type Backend interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// ERC20Config holds settings for an on-chain token collaborator.
type ERC20Config struct {
	Token        common.Address
	PrivateKey   string
	MaxRetries   int
	RetryBackoff time.Duration

	// ReceiptTimeout bounds the wait for a broadcast transaction's receipt.
	// It is independent of the caller's context.
	ReceiptTimeout time.Duration
}

const defaultReceiptTimeout = 2 * time.Minute

// OutcomeUnknownError reports a transaction that may have been broadcast but
// whose receipt could not be obtained.
type OutcomeUnknownError struct {
	Method string
	Tx     common.Hash
	Err    error
}

func (e *OutcomeUnknownError) Error() string {
	return fmt.Sprintf("%s tx %s outcome unknown: %v", e.Method, e.Tx.Hex(), e.Err)
}

func (e *OutcomeUnknownError) Unwrap() error {
	return e.Err
}

// OutcomeUnknown implements ledger.OutcomeUnknown.
func (e *OutcomeUnknownError) OutcomeUnknown() bool {
	return true
}

// ERC20 moves an on-chain ERC20 token. The signing key's address is the pool:
// Transfer pays out of it and TransferFrom spends allowances granted to it.
type ERC20 struct {
	cfg     ERC20Config
	backend Backend
	abi     abi.ABI
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *zap.Logger
}

func NewERC20(ctx context.Context, cfg ERC20Config, backend Backend, logger *zap.Logger) (*ERC20, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	var chainID *big.Int
	err = chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		chainID, err = backend.GetChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	return &ERC20{
		cfg:     cfg,
		backend: backend,
		abi:     parsed,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger,
	}, nil
}

// Address returns the pool address controlled by the signing key.
func (e *ERC20) Address() common.Address {
	return e.from
}

func (e *ERC20) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	return e.send(ctx, "transfer", to, amount.ToBig())
}

func (e *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	return e.send(ctx, "transferFrom", from, to, amount.ToBig())
}

// BalanceOf returns the token balance of account at the latest block.
func (e *ERC20) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	values, err := e.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	out, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, fmt.Errorf("balanceOf exceeds 256 bits: %s", bal)
	}
	return out, nil
}

// Meta loads decimals and symbol of the token.
func (e *ERC20) Meta(ctx context.Context) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: e.cfg.Token.Hex()}
	values, err := e.call(ctx, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	meta.Decimals = decimals

	if values, err := e.call(ctx, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else {
		e.logger.Debug("symbol call failed", zap.String("token", e.cfg.Token.Hex()), zap.Error(err))
	}
	return meta, nil
}

func (e *ERC20) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{From: e.from, To: &e.cfg.Token, Data: data}
	var resp []byte
	err = chain.WithRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		resp, err = e.backend.CallContract(ctx, msg, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := e.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// send simulates the call first so a token that returns false is reported
// without spending gas, then broadcasts and waits for the receipt. Calls that
// change state are never retried.
func (e *ERC20) send(ctx context.Context, method string, args ...interface{}) (bool, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return false, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{From: e.from, To: &e.cfg.Token, Data: data}

	resp, err := e.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return false, fmt.Errorf("simulate %s: %w", method, err)
	}
	// Some tokens return nothing on success.
	if len(resp) > 0 {
		values, err := e.abi.Unpack(method, resp)
		if err != nil {
			return false, fmt.Errorf("unpack %s: %w", method, err)
		}
		if ok, _ := values[0].(bool); !ok {
			e.logger.Warn("token rejected transfer", zap.String("method", method))
			return false, nil
		}
	}

	var (
		nonce    uint64
		gasPrice *big.Int
		gas      uint64
	)
	err = chain.WithRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		if nonce, err = e.backend.PendingNonceAt(ctx, e.from); err != nil {
			return err
		}
		if gasPrice, err = e.backend.SuggestGasPrice(ctx); err != nil {
			return err
		}
		gas, err = e.backend.EstimateGas(ctx, msg)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("prepare %s: %w", method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.cfg.Token,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return false, fmt.Errorf("sign %s: %w", method, err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		// A send cut short by the caller may still have reached the node.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, &OutcomeUnknownError{Method: method, Tx: signed.Hash(), Err: err}
		}
		return false, fmt.Errorf("send %s: %w", method, err)
	}

	receipt, err := e.waitReceipt(ctx, signed)
	if err != nil {
		e.logger.Error("transfer outcome unknown", zap.String("method", method), zap.String("tx", signed.Hash().Hex()), zap.Error(err))
		return false, &OutcomeUnknownError{Method: method, Tx: signed.Hash(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		e.logger.Warn("transfer reverted", zap.String("method", method), zap.String("tx", signed.Hash().Hex()))
		return false, nil
	}

	e.logger.Info("transfer mined",
		zap.String("method", method),
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return true, nil
}

// waitReceipt waits on a context detached from the caller, so a caller that
// goes away after broadcast cannot turn a mined transfer into a failure.
func (e *ERC20) waitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ReceiptTimeout)
	defer cancel()

	var receipt *types.Receipt
	err := chain.WithRetry(waitCtx, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		receipt, err = e.backend.WaitMined(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
