package vault

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/vault/backend/internal/ledger"
	"github.com/coldbell/vault/backend/internal/lulo"
	"github.com/coldbell/vault/backend/internal/lulo/lulotest"
	"github.com/coldbell/vault/backend/internal/token"
)

const startingLamports = 10_000_000_000

type fixture struct {
	ledger     *ledger.Ledger
	program    *Program
	router     *lulotest.Router
	owner      solana.PublicKey
	mint       solana.PublicKey
	ownerToken solana.PublicKey
	addrs      Addresses
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	l := ledger.New(nil)
	token.Register(l)
	router := lulotest.Register(l)
	program := New(ProgramID, opts, nil)
	l.RegisterProgram(ProgramID, program)

	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	l.Airdrop(owner, startingLamports)
	require.NoError(t, token.CreateMint(l, mint, solana.NewWallet().PublicKey(), 6))
	ownerToken, err := token.CreateAssociatedAccount(l, owner, mint, 1_000)
	require.NoError(t, err)

	addrs, err := ResolveAddresses(ProgramID, lulo.ProgramID, owner, mint)
	require.NoError(t, err)

	return &fixture{
		ledger:     l,
		program:    program,
		router:     router,
		owner:      owner,
		mint:       mint,
		ownerToken: ownerToken,
		addrs:      addrs,
	}
}

func (f *fixture) exec(t *testing.T, build func() (solana.Instruction, error), signers ...solana.PublicKey) (*ledger.Receipt, error) {
	t.Helper()
	ix, err := build()
	require.NoError(t, err)
	if len(signers) == 0 {
		signers = []solana.PublicKey{f.owner}
	}
	return f.ledger.Execute(ledger.Transaction{
		Instructions: []solana.Instruction{ix},
		Signers:      signers,
	})
}

func (f *fixture) escrowAccounts() EscrowAccounts {
	return EscrowAccounts{Owner: f.owner, Mint: f.mint, OwnerTokenAccount: f.ownerToken}
}

func (f *fixture) initVault(t *testing.T) {
	t.Helper()
	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, f.escrowAccounts())
	})
	require.NoError(t, err)
}

func (f *fixture) deposit(t *testing.T, amount uint64) (*ledger.Receipt, error) {
	t.Helper()
	return f.exec(t, func() (solana.Instruction, error) {
		return NewDepositVaultInstruction(ProgramID, amount, f.escrowAccounts())
	})
}

func (f *fixture) withdraw(t *testing.T, amount uint64) error {
	t.Helper()
	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewWithdrawVaultInstruction(ProgramID, amount, f.escrowAccounts())
	})
	return err
}

func (f *fixture) balance(t *testing.T, address solana.PublicKey) uint64 {
	t.Helper()
	amount, err := token.Balance(f.ledger, address)
	require.NoError(t, err)
	return amount
}

func (f *fixture) lamports(address solana.PublicKey) uint64 {
	acc, _ := f.ledger.GetAccount(address)
	return acc.Lamports
}

func TestCreateVault(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)

	acc, ok := f.ledger.GetAccount(f.addrs.Vault)
	require.True(t, ok)
	assert.Equal(t, ProgramID, acc.Owner)
	assert.Equal(t, ledger.MinimumBalance(RecordSize), acc.Lamports)

	record, err := DecodeRecord(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, Record{Owner: f.owner, Mint: f.mint, Salt: f.addrs.Salt}, record)
	require.NoError(t, record.Verify(ProgramID, f.addrs.Vault))

	assert.Equal(t, uint64(startingLamports)-ledger.MinimumBalance(RecordSize), f.lamports(f.owner))
}

func TestCreateVaultTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)
	before, _ := f.ledger.GetAccount(f.addrs.Vault)

	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, f.escrowAccounts())
	})
	require.ErrorIs(t, err, ErrDuplicateInitialization)

	after, _ := f.ledger.GetAccount(f.addrs.Vault)
	assert.Equal(t, before, after)
}

func TestCreateVaultOnFundedAddress(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.ledger.Airdrop(f.addrs.Vault, 1)

	f.initVault(t)

	acc, ok := f.ledger.GetAccount(f.addrs.Vault)
	require.True(t, ok)
	assert.Equal(t, ProgramID, acc.Owner)
	assert.Equal(t, ledger.MinimumBalance(RecordSize), acc.Lamports)
	record, err := DecodeRecord(acc.Data)
	require.NoError(t, err)
	assert.Equal(t, f.owner, record.Owner)
	assert.Equal(t, uint64(startingLamports)-ledger.MinimumBalance(RecordSize)+1, f.lamports(f.owner))

	_, err = f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, f.escrowAccounts())
	})
	require.ErrorIs(t, err, ErrDuplicateInitialization)
}

func TestCreateVaultOnForeignAccountIsDuplicate(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.ledger.SetAccount(f.addrs.Vault, ledger.Account{Lamports: 1, Owner: solana.SystemProgramID, Data: make([]byte, RecordSize)})

	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, f.escrowAccounts())
	})
	require.ErrorIs(t, err, ErrDuplicateInitialization)
}

func TestCreateVaultRequiresMint(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	notAMint := solana.NewWallet().PublicKey()

	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, EscrowAccounts{Owner: f.owner, Mint: notAMint})
	})
	require.ErrorIs(t, err, ErrInvalidMint)
}

func TestDepositMovesExactAmount(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)

	receipt, err := f.deposit(t, 250)
	require.NoError(t, err)
	assert.Len(t, receipt.InvocationsOf(solana.SPLAssociatedTokenAccountProgramID), 1)
	assert.Equal(t, uint64(750), f.balance(t, f.ownerToken))
	assert.Equal(t, uint64(250), f.balance(t, f.addrs.VaultTokenAccount))

	receipt, err = f.deposit(t, 100)
	require.NoError(t, err)
	assert.Empty(t, receipt.InvocationsOf(solana.SPLAssociatedTokenAccountProgramID))
	assert.Equal(t, uint64(650), f.balance(t, f.ownerToken))
	assert.Equal(t, uint64(350), f.balance(t, f.addrs.VaultTokenAccount))
}

func TestDepositOnFundedEscrowAddress(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)
	f.ledger.Airdrop(f.addrs.VaultTokenAccount, 1)

	_, err := f.deposit(t, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.balance(t, f.addrs.VaultTokenAccount))
	assert.Equal(t, uint64(990), f.balance(t, f.ownerToken))
	assert.Equal(t, ledger.MinimumBalance(token.AccountSize), f.lamports(f.addrs.VaultTokenAccount))
}

func TestDepositRejectsEscrowOverflow(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)
	_, err := f.deposit(t, 10)
	require.NoError(t, err)
	require.NoError(t, token.CreateAccount(f.ledger, f.ownerToken, f.mint, f.owner, math.MaxUint64))

	_, err = f.deposit(t, math.MaxUint64)
	require.ErrorIs(t, err, token.ErrOverflow)
	assert.Equal(t, uint64(10), f.balance(t, f.addrs.VaultTokenAccount))
	assert.Equal(t, uint64(math.MaxUint64), f.balance(t, f.ownerToken))
}

func TestDepositChecksOwnerBalanceFirst(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)

	_, err := f.deposit(t, 1_001)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(1_000), f.balance(t, f.ownerToken))

	_, ok := f.ledger.GetAccount(f.addrs.VaultTokenAccount)
	assert.False(t, ok)
}

func TestDepositBeforeInitIsAuthorizationMismatch(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	_, err := f.deposit(t, 10)
	require.ErrorIs(t, err, ErrAuthorizationMismatch)
}

func TestWithdrawScenario(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)
	_, err := f.deposit(t, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(0), f.balance(t, f.ownerToken))

	err = f.withdraw(t, 1_500)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(1_000), f.balance(t, f.addrs.VaultTokenAccount))

	require.NoError(t, f.withdraw(t, 400))
	assert.Equal(t, uint64(600), f.balance(t, f.addrs.VaultTokenAccount))
	assert.Equal(t, uint64(400), f.balance(t, f.ownerToken))
}

func TestWithdrawWithTamperedSalt(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)
	_, err := f.deposit(t, 1_000)
	require.NoError(t, err)

	acc, _ := f.ledger.GetAccount(f.addrs.Vault)
	tampered, err := EncodeRecord(Record{Owner: f.owner, Mint: f.mint, Salt: f.addrs.Salt - 1})
	require.NoError(t, err)
	acc.Data = tampered
	f.ledger.SetAccount(f.addrs.Vault, acc)

	err = f.withdraw(t, 100)
	require.ErrorIs(t, err, ErrAuthorizationMismatch)
	assert.Equal(t, uint64(1_000), f.balance(t, f.addrs.VaultTokenAccount))
}

func TestWithdrawFromForeignVault(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.initVault(t)
	_, err := f.deposit(t, 1_000)
	require.NoError(t, err)

	thief := solana.NewWallet().PublicKey()
	f.ledger.Airdrop(thief, startingLamports)
	thiefToken, err := token.CreateAssociatedAccount(f.ledger, thief, f.mint, 0)
	require.NoError(t, err)

	_, err = f.exec(t, func() (solana.Instruction, error) {
		ix, err := NewWithdrawVaultInstruction(ProgramID, 500, EscrowAccounts{
			Owner:             thief,
			Mint:              f.mint,
			OwnerTokenAccount: thiefToken,
		})
		if err != nil {
			return nil, err
		}
		return swapAccount(ix, 1, f.addrs.Vault), nil
	}, thief)
	require.ErrorIs(t, err, ErrAuthorizationMismatch)
	assert.Equal(t, uint64(1_000), f.balance(t, f.addrs.VaultTokenAccount))
}

func TestSeparateFeePayer(t *testing.T) {
	f := newFixture(t, IntegrationOptions())
	payer := solana.NewWallet().PublicKey()
	f.ledger.Airdrop(payer, startingLamports)
	accounts := f.escrowAccounts()
	accounts.FeePayer = &payer

	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, accounts)
	}, f.owner, payer)
	require.NoError(t, err)

	_, err = f.exec(t, func() (solana.Instruction, error) {
		return NewDepositVaultInstruction(ProgramID, 300, accounts)
	}, f.owner, payer)
	require.NoError(t, err)

	assert.Equal(t, uint64(startingLamports), f.lamports(f.owner))
	assert.Equal(t, uint64(startingLamports)-ledger.MinimumBalance(RecordSize)-ledger.MinimumBalance(token.AccountSize), f.lamports(payer))
	assert.Equal(t, uint64(300), f.balance(t, f.addrs.VaultTokenAccount))

	err = f.withdraw(t, 100)
	require.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestSeparateFeePayerMustSign(t *testing.T) {
	f := newFixture(t, IntegrationOptions())

	_, err := f.exec(t, func() (solana.Instruction, error) {
		return NewInitVaultInstruction(ProgramID, f.escrowAccounts())
	})
	require.Error(t, err)

	_, ok := f.ledger.GetAccount(f.addrs.Vault)
	assert.False(t, ok)
}

// swapAccount replaces the account at index, keeping its privileges.
func swapAccount(ix solana.Instruction, index int, key solana.PublicKey) solana.Instruction {
	metas := make(solana.AccountMetaSlice, 0, len(ix.Accounts()))
	for i, meta := range ix.Accounts() {
		if i == index {
			metas = append(metas, solana.NewAccountMeta(key, meta.IsWritable, meta.IsSigner))
			continue
		}
		metas = append(metas, meta)
	}
	data, _ := ix.Data()
	return solana.NewInstruction(ix.ProgramID(), metas, data)
}
