package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/pda"
	"github.com/coldbell/vault/backend/internal/token"
	"github.com/coldbell/vault/backend/internal/vault"
)

type fakeRPC struct {
	mu       sync.Mutex
	sent     []*solana.Transaction
	sendErr  error
	statuses []*rpc.SignatureStatusesResult
	accounts map[solana.PublicKey]*rpc.Account
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{7}}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{}, nil
	}
	next := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{next}}, nil
}

func (f *fakeRPC) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	acc, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: acc}, nil
}

func newTestClient(t *testing.T, fake *fakeRPC, withFeePayer bool) *Client {
	t.Helper()
	cfg := config.ClientConfig{
		Commitment:       rpc.CommitmentConfirmed,
		TxTimeout:        2 * time.Second,
		ComputeUnitLimit: 1_000_000,
		Mint:             solana.SolMint,
		MarketIndex:      1,
		DriftMarkets:     config.DefaultDriftMarkets(),
		Programs:         testPrograms(),
	}
	var feePayer *solana.PrivateKey
	if withFeePayer {
		key := solana.NewWallet().PrivateKey
		feePayer = &key
	}
	c := NewWithRPC(cfg, fake, solana.NewWallet().PrivateKey, feePayer, nil)
	c.confirmInterval = time.Millisecond
	return c
}

func customFailure(index int, code uint32) map[string]any {
	return map[string]any{
		"InstructionError": []any{float64(index), map[string]any{"Custom": float64(code)}},
	}
}

func TestSubmitSignsAndConfirms(t *testing.T) {
	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{
		nil,
		{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
		{ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
	}}
	c := newTestClient(t, fake, false)

	ixs, err := c.Plan().Init()
	require.NoError(t, err)
	sig, err := c.Submit(context.Background(), vault.InitVaultName, ixs)
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	tx := fake.sent[0]
	assert.Equal(t, sig, tx.Signatures[0])
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, c.Owner(), tx.Message.AccountKeys[0])
	require.NoError(t, tx.VerifySignatures())
}

func TestSubmitWithFeePayerSignsTwice(t *testing.T) {
	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusFinalized}}}
	c := newTestClient(t, fake, true)

	ixs, err := c.Plan().Init()
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), vault.InitVaultName, ixs)
	require.NoError(t, err)

	tx := fake.sent[0]
	require.Len(t, tx.Signatures, 2)
	assert.Equal(t, *c.Plan().FeePayer, tx.Message.AccountKeys[0])
	require.NoError(t, tx.VerifySignatures())
}

func TestSubmitMapsFailedStatus(t *testing.T) {
	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{Err: customFailure(1, 6001)}}}
	c := newTestClient(t, fake, false)

	ixs, err := c.Plan().Withdraw(1, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), vault.WithdrawVaultName, ixs)
	require.ErrorIs(t, err, vault.ErrInsufficientBalance)

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Instruction)
	assert.Equal(t, uint32(6001), txErr.Code)
}

func TestSubmitMapsPreflightFailure(t *testing.T) {
	rpcErr := &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed",
		Data:    map[string]any{"err": customFailure(1, 6003)},
	}
	c := newTestClient(t, &fakeRPC{sendErr: rpcErr}, false)

	ixs, err := c.Plan().DriftWithdraw(1)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), vault.LuloWithdrawDriftName, ixs)
	require.ErrorIs(t, err, vault.ErrMissingAuxiliaryAccount)
	require.ErrorIs(t, err, rpcErr)
}

func TestSubmitKeepsForeignCodes(t *testing.T) {
	fake := &fakeRPC{statuses: []*rpc.SignatureStatusesResult{{Err: customFailure(1, 1)}}}
	c := newTestClient(t, fake, false)

	ixs, err := c.Plan().Init()
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), vault.InitVaultName, ixs)

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Nil(t, txErr.Err)
	_, ok := vault.CodeOf(err)
	assert.False(t, ok)
}

func TestSubmitTimesOut(t *testing.T) {
	c := newTestClient(t, &fakeRPC{}, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ixs, err := c.Plan().Init()
	require.NoError(t, err)
	_, err = c.Submit(ctx, vault.InitVaultName, ixs)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatusErrorWithoutCustomCode(t *testing.T) {
	err := statusError(map[string]any{"InstructionError": []any{float64(0), "InvalidAccountData"}})
	require.Error(t, err)
	var txErr *TransactionError
	assert.False(t, errors.As(err, &txErr))
}

func TestFetchVault(t *testing.T) {
	fake := &fakeRPC{accounts: map[solana.PublicKey]*rpc.Account{}}
	c := newTestClient(t, fake, false)
	addrs, err := c.Plan().Addresses()
	require.NoError(t, err)

	_, err = c.FetchVault(context.Background())
	require.ErrorIs(t, err, ErrAccountNotFound)

	record := vault.Record{Owner: c.Owner(), Mint: solana.SolMint, Salt: addrs.Salt}
	data, err := vault.EncodeRecord(record)
	require.NoError(t, err)
	fake.accounts[addrs.Vault] = &rpc.Account{Owner: vault.ProgramID, Data: rpc.DataBytesOrJSONFromBytes(data)}

	state, err := c.FetchVault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, record, state.Record)
	assert.True(t, state.Verified)
	assert.Zero(t, state.EscrowBalance)

	escrow, err := token.EncodeAccount(token.Account{
		Mint:   solana.SolMint,
		Owner:  addrs.Vault,
		Amount: 42,
		State:  token.StateInitialized,
	})
	require.NoError(t, err)
	fake.accounts[addrs.VaultTokenAccount] = &rpc.Account{Owner: solana.TokenProgramID, Data: rpc.DataBytesOrJSONFromBytes(escrow)}

	state, err = c.FetchVault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), state.EscrowBalance)
	assert.Equal(t, pda.MustDeriveVault(vault.ProgramID, solana.SolMint, c.Owner()), state.Address)
}

func TestFetchVaultRejectsForeignOwner(t *testing.T) {
	fake := &fakeRPC{accounts: map[solana.PublicKey]*rpc.Account{}}
	c := newTestClient(t, fake, false)
	addrs, err := c.Plan().Addresses()
	require.NoError(t, err)
	fake.accounts[addrs.Vault] = &rpc.Account{Owner: solana.SystemProgramID, Data: rpc.DataBytesOrJSONFromBytes(nil)}

	_, err = c.FetchVault(context.Background())
	require.Error(t, err)
}
