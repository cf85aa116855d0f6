package indexer

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/pda"
	"github.com/coldbell/vault/backend/internal/token"
	"github.com/coldbell/vault/backend/internal/vault"
)

type fakeRPC struct {
	slot         uint64
	program      rpc.GetProgramAccountsResult
	accounts     map[solana.PublicKey]*rpc.Account
	programOpts  *rpc.GetProgramAccountsOpts
	multipleKeys [][]solana.PublicKey
}

func (f *fakeRPC) GetSlot(context.Context, rpc.CommitmentType) (uint64, error) {
	return f.slot, nil
}

func (f *fakeRPC) GetProgramAccountsWithOpts(_ context.Context, _ solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	f.programOpts = opts
	return f.program, nil
}

func (f *fakeRPC) GetMultipleAccountsWithOpts(_ context.Context, keys []solana.PublicKey, _ *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error) {
	f.multipleKeys = append(f.multipleKeys, keys)
	out := &rpc.GetMultipleAccountsResult{Value: make([]*rpc.Account, len(keys))}
	for i, key := range keys {
		out.Value[i] = f.accounts[key]
	}
	return out, nil
}

func (f *fakeRPC) addVault(t *testing.T, address solana.PublicKey, record vault.Record) {
	t.Helper()
	data, err := vault.EncodeRecord(record)
	require.NoError(t, err)
	f.program = append(f.program, &rpc.KeyedAccount{
		Pubkey:  address,
		Account: &rpc.Account{Owner: vault.ProgramID, Lamports: 1_447_680, Data: rpc.DataBytesOrJSONFromBytes(data)},
	})
}

func (f *fakeRPC) addTokenAccount(t *testing.T, address solana.PublicKey, acc token.Account) {
	t.Helper()
	data, err := token.EncodeAccount(acc)
	require.NoError(t, err)
	f.accounts[address] = &rpc.Account{Owner: solana.TokenProgramID, Data: rpc.DataBytesOrJSONFromBytes(data)}
}

func (f *fakeRPC) addMint(t *testing.T, address solana.PublicKey, decimals uint8) {
	t.Helper()
	data, err := token.EncodeMint(token.Mint{Decimals: decimals, IsInitialized: true})
	require.NoError(t, err)
	f.accounts[address] = &rpc.Account{Owner: solana.TokenProgramID, Data: rpc.DataBytesOrJSONFromBytes(data)}
}

func newTestService(fake *fakeRPC) *Service {
	return &Service{
		cfg: config.IndexerConfig{
			Commitment:     rpc.CommitmentConfirmed,
			VaultProgramID: vault.ProgramID,
		},
		rpc:    fake,
		logger: slog.New(slog.DiscardHandler),
	}
}

func TestCollectVaults(t *testing.T) {
	fake := &fakeRPC{slot: 99, accounts: map[solana.PublicKey]*rpc.Account{}}
	mint := solana.NewWallet().PublicKey()
	fake.addMint(t, mint, 6)

	owner := solana.NewWallet().PublicKey()
	address, salt, err := pda.DeriveVault(vault.ProgramID, mint, owner)
	require.NoError(t, err)
	fake.addVault(t, address, vault.Record{Owner: owner, Mint: mint, Salt: salt})
	escrow, _, err := pda.DeriveEscrowTokenAccount(address, mint)
	require.NoError(t, err)
	fake.addTokenAccount(t, escrow, token.Account{Mint: mint, Owner: address, Amount: 500, State: token.StateInitialized})

	forged := solana.NewWallet().PublicKey()
	fake.addVault(t, forged, vault.Record{Owner: owner, Mint: mint, Salt: salt})

	fake.program = append(fake.program,
		&rpc.KeyedAccount{Pubkey: solana.NewWallet().PublicKey(), Account: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3})}},
		nil,
	)

	svc := newTestService(fake)
	rows, err := svc.collect(context.Background(), 99)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byAddress := map[solana.PublicKey]VaultRow{}
	for _, row := range rows {
		byAddress[row.Address] = row
	}

	good := byAddress[address]
	assert.True(t, good.Verified)
	assert.True(t, good.EscrowExists)
	assert.Equal(t, uint64(500), good.EscrowBalance)
	assert.Equal(t, escrow, good.EscrowAccount)
	assert.Equal(t, uint8(6), good.MintDecimals)
	assert.Equal(t, uint64(99), good.Slot)
	assert.Equal(t, owner, good.Owner)

	bad := byAddress[forged]
	assert.False(t, bad.Verified)
	assert.False(t, bad.EscrowExists)
	assert.Zero(t, bad.EscrowBalance)

	require.NotNil(t, fake.programOpts)
	require.Len(t, fake.programOpts.Filters, 2)
	assert.Equal(t, uint64(vault.RecordSize), fake.programOpts.Filters[0].DataSize)
	assert.Equal(t, solana.Base58(vault.RecordDiscriminator[:]), fake.programOpts.Filters[1].Memcmp.Bytes)

	// escrows for both vaults, then the single distinct mint
	require.Len(t, fake.multipleKeys, 2)
	assert.Len(t, fake.multipleKeys[0], 2)
	assert.Equal(t, []solana.PublicKey{mint}, fake.multipleKeys[1])
}

func TestCollectIgnoresForeignEscrow(t *testing.T) {
	fake := &fakeRPC{accounts: map[solana.PublicKey]*rpc.Account{}}
	mint := solana.NewWallet().PublicKey()
	fake.addMint(t, mint, 9)

	owner := solana.NewWallet().PublicKey()
	address, salt, err := pda.DeriveVault(vault.ProgramID, mint, owner)
	require.NoError(t, err)
	fake.addVault(t, address, vault.Record{Owner: owner, Mint: mint, Salt: salt})
	escrow, _, err := pda.DeriveEscrowTokenAccount(address, mint)
	require.NoError(t, err)
	fake.addTokenAccount(t, escrow, token.Account{Mint: mint, Owner: owner, Amount: 77, State: token.StateInitialized})

	rows, err := newTestService(fake).collect(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].EscrowExists)
	assert.Zero(t, rows[0].EscrowBalance)
}

func TestCollectSortsByAddress(t *testing.T) {
	fake := &fakeRPC{accounts: map[solana.PublicKey]*rpc.Account{}}
	mint := solana.NewWallet().PublicKey()
	for range 5 {
		owner := solana.NewWallet().PublicKey()
		address, salt, err := pda.DeriveVault(vault.ProgramID, mint, owner)
		require.NoError(t, err)
		fake.addVault(t, address, vault.Record{Owner: owner, Mint: mint, Salt: salt})
	}

	rows, err := newTestService(fake).collect(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i := 1; i < len(rows); i++ {
		assert.Negative(t, bytes.Compare(rows[i-1].Address[:], rows[i].Address[:]))
	}
	// missing mint account reads as zero decimals
	assert.Zero(t, rows[0].MintDecimals)
}

func TestFetchAccountsBatches(t *testing.T) {
	fake := &fakeRPC{accounts: map[solana.PublicKey]*rpc.Account{}}
	keys := make([]solana.PublicKey, multipleAccountsBatch+1)
	for i := range keys {
		keys[i] = solana.NewWallet().PublicKey()
	}
	fake.accounts[keys[multipleAccountsBatch]] = &rpc.Account{Owner: solana.SystemProgramID}

	accounts, err := newTestService(fake).fetchAccounts(context.Background(), keys)
	require.NoError(t, err)
	require.Len(t, accounts, len(keys))
	require.Len(t, fake.multipleKeys, 2)
	assert.Len(t, fake.multipleKeys[1], 1)
	assert.Nil(t, accounts[0])
	assert.NotNil(t, accounts[multipleAccountsBatch])
}
