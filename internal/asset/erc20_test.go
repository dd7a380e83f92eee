package asset

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	callResult []byte
	status     uint64
	sent       []*types.Transaction

	sendErr   error
	afterSend func()
	waitErr   error
	waits     int
}

func (f *fakeBackend) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(56), nil }

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return f.callResult, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	if f.afterSend != nil {
		f.afterSend()
	}
	return f.sendErr
}

func (f *fakeBackend) WaitMined(ctx context.Context, _ *types.Transaction) (*types.Receipt, error) {
	f.waits++
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &types.Receipt{Status: f.status, BlockNumber: big.NewInt(100)}, nil
}

func newTestERC20(t *testing.T, backend *fakeBackend) *ERC20 {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	e, err := NewERC20(context.Background(), ERC20Config{
		Token:          common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		PrivateKey:     hex.EncodeToString(crypto.FromECDSA(key)),
		MaxRetries:     1,
		RetryBackoff:   time.Millisecond,
		ReceiptTimeout: time.Second,
	}, backend, zap.NewNop())
	require.NoError(t, err)
	return e
}

func packBool(t *testing.T, method string, value bool) []byte {
	t.Helper()
	parsed, err := ERC20ABI()
	require.NoError(t, err)
	out, err := parsed.Methods[method].Outputs.Pack(value)
	require.NoError(t, err)
	return out
}

func TestERC20TransferSendsSignedTx(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	backend.callResult = packBool(t, "transfer", true)
	e := newTestERC20(t, backend)

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	ok, err := e.Transfer(context.Background(), to, uint256.NewInt(1000))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, e.cfg.Token, *tx.To())
	require.Equal(t, "a9059cbb", hex.EncodeToString(tx.Data()[:4]))

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(56)), tx)
	require.NoError(t, err)
	require.Equal(t, e.Address(), sender)
}

func TestERC20TransferRejectedBySimulation(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	backend.callResult = packBool(t, "transferFrom", false)
	e := newTestERC20(t, backend)

	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	ok, err := e.TransferFrom(context.Background(), from, e.Address(), uint256.NewInt(1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, backend.sent, "rejected transfer must not be broadcast")
}

func TestERC20TransferReverted(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusFailed}
	e := newTestERC20(t, backend)

	ok, err := e.Transfer(context.Background(), common.HexToAddress("0x3333333333333333333333333333333333333333"), uint256.NewInt(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestERC20ReceiptWaitOutlivesCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, afterSend: cancel}
	e := newTestERC20(t, backend)

	ok, err := e.Transfer(ctx, common.HexToAddress("0x3333333333333333333333333333333333333333"), uint256.NewInt(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, backend.sent, 1)
	require.Error(t, ctx.Err())
}

func TestERC20ReceiptFailureAfterBroadcast(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, waitErr: context.Canceled}
	e := newTestERC20(t, backend)
	from := common.HexToAddress("0x2222222222222222222222222222222222222222")

	ok, err := e.TransferFrom(context.Background(), from, e.Address(), uint256.NewInt(5))
	require.False(t, ok)
	require.Error(t, err)
	require.Len(t, backend.sent, 1)
	require.Equal(t, 2, backend.waits)

	var unknown *OutcomeUnknownError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "transferFrom", unknown.Method)
	require.Equal(t, backend.sent[0].Hash(), unknown.Tx)
	require.True(t, unknown.OutcomeUnknown())
	require.ErrorIs(t, err, context.Canceled)
}

func TestERC20SendInterruptedIsUnknown(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, sendErr: context.DeadlineExceeded}
	e := newTestERC20(t, backend)

	ok, err := e.Transfer(context.Background(), common.HexToAddress("0x3333333333333333333333333333333333333333"), uint256.NewInt(1))
	require.False(t, ok)
	var unknown *OutcomeUnknownError
	require.ErrorAs(t, err, &unknown)
	require.Zero(t, backend.waits)
}

func TestERC20SendRejectedIsNotUnknown(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful, sendErr: errors.New("nonce too low")}
	e := newTestERC20(t, backend)

	_, err := e.Transfer(context.Background(), common.HexToAddress("0x3333333333333333333333333333333333333333"), uint256.NewInt(1))
	require.Error(t, err)
	var unknown *OutcomeUnknownError
	require.False(t, errors.As(err, &unknown))
}
