package clients

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/bando/types"
)

const (
	testEVMKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testEVMAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type fakeToken struct {
	balance       *big.Int
	symbol        string
	decimals      uint8
	balanceFails  bool
	symbolFails   bool
	decimalsFails bool
}

// fakeEVM is an in-memory EVMBackend. Multicall3 payloads are decoded and
// answered from tokens.
type fakeEVM struct {
	mu sync.Mutex

	chainID  int64
	head     uint64
	sendErr  error
	sent     []*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt

	tokens        map[common.Address]fakeToken
	balanceCalls  map[common.Address]int
	multicallHits int
}

func newFakeEVM() *fakeEVM {
	return &fakeEVM{
		chainID:      42161,
		head:         100,
		receipts:     map[common.Hash]*ethtypes.Receipt{},
		tokens:       map[common.Address]fakeToken{},
		balanceCalls: map[common.Address]int{},
	}
}

func (f *fakeEVM) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }

func (f *fakeEVM) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeEVM) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(1e9), nil }

func (f *fakeEVM) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{BaseFee: big.NewInt(100)}, nil
}

func (f *fakeEVM) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 21000, nil }

func (f *fakeEVM) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEVM) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeEVM) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeEVM) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeEVM) Close() {}

func (f *fakeEVM) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multicallHits++

	method := multicall3ABI.Methods["aggregate3"]
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(args[0], new([]Multicall3Call)).(*[]Multicall3Call)

	results := make([]Multicall3Result, len(calls))
	for i, call := range calls {
		tok, ok := f.tokens[call.Target]
		if !ok {
			continue
		}
		var (
			out []byte
			err error
		)
		switch string(call.CallData[:4]) {
		case string(erc20ABI.Methods["balanceOf"].ID):
			f.balanceCalls[call.Target]++
			if tok.balanceFails {
				continue
			}
			out, err = erc20ABI.Methods["balanceOf"].Outputs.Pack(tok.balance)
		case string(erc20ABI.Methods["symbol"].ID):
			if tok.symbolFails {
				continue
			}
			out, err = erc20ABI.Methods["symbol"].Outputs.Pack(tok.symbol)
		case string(erc20ABI.Methods["decimals"].ID):
			if tok.decimalsFails {
				continue
			}
			out, err = erc20ABI.Methods["decimals"].Outputs.Pack(tok.decimals)
		}
		if err != nil {
			return nil, err
		}
		results[i] = Multicall3Result{Success: true, ReturnData: out}
	}
	return method.Outputs.Pack(results)
}

func newTestEVMClient(t *testing.T, backend *fakeEVM) *EVMClient {
	t.Helper()
	c, err := NewEVMClientWithBackend(types.NetworkArbitrum, backend, types.ClientConfig{
		PrivateKey:   testEVMKey,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestEVMSendTransaction(t *testing.T) {
	backend := newFakeEVM()
	c := newTestEVMClient(t, backend)
	require.Equal(t, testEVMAddress, c.Address())

	hash, err := c.SendTransaction(context.Background(), &types.TransactionRequest{
		To:    "0x1111111111111111111111111111111111111111",
		Data:  "0xa9059cbb",
		Value: "0x2386f26fc10000",
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, tx.Hash().Hex(), hash)
	require.Equal(t, "10000000000000000", tx.Value().String())
	require.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, tx.Data())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, int64(42161), tx.ChainId().Int64())
	require.Equal(t, uint8(ethtypes.DynamicFeeTxType), tx.Type())

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	require.NoError(t, err)
	require.Equal(t, testEVMAddress, from.Hex())
}

func TestEVMSendTransactionZeroValue(t *testing.T) {
	for _, value := range []string{"0x0", "0x", ""} {
		backend := newFakeEVM()
		c := newTestEVMClient(t, backend)

		_, err := c.SendTransaction(context.Background(), &types.TransactionRequest{
			To: "0x1111111111111111111111111111111111111111", Data: "0x", Value: value,
		})
		require.NoError(t, err, value)
		require.Equal(t, 0, backend.sent[0].Value().Sign(), value)
	}
}

func TestEVMSendTransactionFailures(t *testing.T) {
	t.Run("broadcast rejected", func(t *testing.T) {
		backend := newFakeEVM()
		backend.sendErr = errors.New("insufficient funds for gas * price + value")
		c := newTestEVMClient(t, backend)

		hash, err := c.SendTransaction(context.Background(), &types.TransactionRequest{
			To: "0x1111111111111111111111111111111111111111", Value: "0x1",
		})
		require.Empty(t, hash)
		require.True(t, types.IsCode(err, types.ErrSubmission))
		require.Contains(t, err.Error(), "insufficient funds")
	})

	t.Run("wrong chain", func(t *testing.T) {
		backend := newFakeEVM()
		backend.chainID = 1
		c := newTestEVMClient(t, backend)

		_, err := c.SendTransaction(context.Background(), &types.TransactionRequest{
			To: "0x1111111111111111111111111111111111111111",
		})
		require.True(t, types.IsCode(err, types.ErrSubmission))
		require.Empty(t, backend.sent)
	})

	t.Run("bad destination", func(t *testing.T) {
		c := newTestEVMClient(t, newFakeEVM())
		_, err := c.SendTransaction(context.Background(), &types.TransactionRequest{To: "nope"})
		require.True(t, types.IsCode(err, types.ErrSubmission))
	})
}

func TestEVMWaitForConfirmation(t *testing.T) {
	hash := common.HexToHash("0xabc1")

	t.Run("confirmed", func(t *testing.T) {
		backend := newFakeEVM()
		backend.head = 11
		backend.receipts[hash] = &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}
		c := newTestEVMClient(t, backend)

		out, err := c.WaitForConfirmation(context.Background(), hash.Hex(), 2)
		require.NoError(t, err)
		require.True(t, out.Confirmed)
		require.Equal(t, types.VMTypeEVM, out.VirtualMachineType)
		require.Equal(t, hash.Hex(), out.Hash)
	})

	t.Run("reverted", func(t *testing.T) {
		backend := newFakeEVM()
		backend.receipts[hash] = &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(10)}
		c := newTestEVMClient(t, backend)

		out, err := c.WaitForConfirmation(context.Background(), hash.Hex(), 1)
		require.True(t, types.IsCode(err, types.ErrOnChainRevert))
		require.False(t, out.Confirmed)

		be, _ := types.AsBandoError(err)
		require.Equal(t, hash.Hex(), be.TxHash)
		require.True(t, be.FundsMoved())
	})

	t.Run("timeout", func(t *testing.T) {
		c := newTestEVMClient(t, newFakeEVM())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		out, err := c.WaitForConfirmation(ctx, hash.Hex(), 1)
		require.Nil(t, out)
		require.True(t, types.IsCode(err, types.ErrConfirmationTimeout))
	})

	t.Run("malformed hash", func(t *testing.T) {
		backend := newFakeEVM()
		c := newTestEVMClient(t, backend)

		out, err := c.WaitForConfirmation(context.Background(), "0xabc1", 1)
		require.Nil(t, out)
		require.True(t, types.IsCode(err, types.ErrUntrackable))
		require.False(t, types.IsCode(err, types.ErrConfirmationTimeout))

		be, _ := types.AsBandoError(err)
		require.Equal(t, types.StageConfirmation, be.Stage)
		require.Equal(t, "0xabc1", be.TxHash)
	})
}

func TestNewEVMClientRejectsSolanaNetwork(t *testing.T) {
	_, err := NewEVMClientWithBackend(types.NetworkSolana, newFakeEVM(), types.ClientConfig{PrivateKey: testEVMKey})
	require.Error(t, err)
}
