// Package token hosts the token program and the associated-token program on
// the in-process ledger, plus the instruction builders callers use to reach
// them.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/coldbell/vault/backend/internal/ledger"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient token funds")
	ErrMintMismatch         = errors.New("token account mint mismatch")
	ErrOwnerMismatch        = errors.New("token account owner mismatch")
	ErrUninitializedAccount = errors.New("token account not initialized")
	ErrAlreadyInitialized   = errors.New("token account already initialized")
	ErrAccountFrozen        = errors.New("token account frozen")
	ErrOverflow             = errors.New("token amount overflow")
)

const (
	instructionTransfer           byte = 3
	instructionMintTo             byte = 7
	instructionInitializeAccount3 byte = 18
)

// Register installs the token and associated-token programs on l.
func Register(l *ledger.Ledger) {
	l.RegisterProgram(solana.TokenProgramID, ledger.ProgramFunc(processToken))
	l.RegisterProgram(solana.SPLAssociatedTokenAccountProgramID, ledger.ProgramFunc(processAssociated))
}

// NewTransferInstruction moves amount from source to destination, authorized
// by owner.
func NewTransferInstruction(amount uint64, source, destination, owner solana.PublicKey) (solana.Instruction, error) {
	ix, err := token.NewTransferInstruction(amount, source, destination, owner, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build token transfer: %w", err)
	}
	return ix, nil
}

func NewMintToInstruction(amount uint64, mint, destination, authority solana.PublicKey) (solana.Instruction, error) {
	ix, err := token.NewMintToInstruction(amount, mint, destination, authority, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build token mint_to: %w", err)
	}
	return ix, nil
}

func newInitializeAccount3Instruction(account, mint, owner solana.PublicKey) solana.Instruction {
	data := append([]byte{instructionInitializeAccount3}, owner.Bytes()...)
	return solana.NewInstruction(solana.TokenProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(mint, false, false),
	}, data)
}

func processToken(ctx *ledger.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty token instruction", ledger.ErrInvalidInstruction)
	}
	switch data[0] {
	case instructionTransfer:
		amount, err := amountArg(data)
		if err != nil {
			return err
		}
		return transfer(ctx, amount)
	case instructionMintTo:
		amount, err := amountArg(data)
		if err != nil {
			return err
		}
		return mintTo(ctx, amount)
	case instructionInitializeAccount3:
		if len(data) != 1+solana.PublicKeyLength {
			return fmt.Errorf("%w: initialize_account3 wants 33 bytes, got %d", ledger.ErrInvalidInstruction, len(data))
		}
		return initializeAccount(ctx, solana.PublicKeyFromBytes(data[1:]))
	default:
		return fmt.Errorf("%w: unsupported token instruction %d", ledger.ErrInvalidInstruction, data[0])
	}
}

func amountArg(data []byte) (uint64, error) {
	if len(data) != 9 {
		return 0, fmt.Errorf("%w: token amount instruction wants 9 bytes, got %d", ledger.ErrInvalidInstruction, len(data))
	}
	return binary.LittleEndian.Uint64(data[1:]), nil
}

func transfer(ctx *ledger.Context, amount uint64) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	accs := ctx.Accounts()
	srcInfo, dstInfo, authority := accs[0], accs[1], accs[2]

	src, err := loadAccount(srcInfo)
	if err != nil {
		return err
	}
	dst, err := loadAccount(dstInfo)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: %s is %s, %s is %s", ErrMintMismatch, srcInfo.Key, src.Mint, dstInfo.Key, dst.Mint)
	}
	if src.State == StateFrozen || dst.State == StateFrozen {
		return ErrAccountFrozen
	}
	if !src.Owner.Equals(authority.Key) {
		return fmt.Errorf("%w: %s owned by %s, authority %s", ErrOwnerMismatch, srcInfo.Key, src.Owner, authority.Key)
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", ledger.ErrMissingSignature, authority.Key)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, srcInfo.Key, src.Amount, amount)
	}
	if srcInfo.Key.Equals(dstInfo.Key) {
		return nil
	}

	credited, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s holds %d, credit %d", ErrOverflow, dstInfo.Key, dst.Amount, amount)
	}
	src.Amount -= amount
	dst.Amount = credited
	if err := storeAccount(ctx, srcInfo, src); err != nil {
		return err
	}
	if err := storeAccount(ctx, dstInfo, dst); err != nil {
		return err
	}
	ctx.Log("transfer", "from", srcInfo.Key, "to", dstInfo.Key, "amount", amount)
	return nil
}

func mintTo(ctx *ledger.Context, amount uint64) error {
	if err := ctx.RequireAccounts(3); err != nil {
		return err
	}
	accs := ctx.Accounts()
	mintInfo, dstInfo, authority := accs[0], accs[1], accs[2]

	mint, err := loadMint(mintInfo)
	if err != nil {
		return err
	}
	dst, err := loadAccount(dstInfo)
	if err != nil {
		return err
	}
	if !dst.Mint.Equals(mintInfo.Key) {
		return fmt.Errorf("%w: %s is %s", ErrMintMismatch, dstInfo.Key, dst.Mint)
	}
	if mint.MintAuthority == nil || !mint.MintAuthority.Equals(authority.Key) {
		return fmt.Errorf("%w: mint authority of %s", ErrOwnerMismatch, mintInfo.Key)
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: %s", ledger.ErrMissingSignature, authority.Key)
	}

	supply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s supply %d, mint %d", ErrOverflow, mintInfo.Key, mint.Supply, amount)
	}
	credited, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s holds %d, mint %d", ErrOverflow, dstInfo.Key, dst.Amount, amount)
	}
	mint.Supply = supply
	dst.Amount = credited
	encoded, err := EncodeMint(mint)
	if err != nil {
		return err
	}
	if err := ctx.SetData(mintInfo, encoded); err != nil {
		return err
	}
	return storeAccount(ctx, dstInfo, dst)
}

func initializeAccount(ctx *ledger.Context, owner solana.PublicKey) error {
	if err := ctx.RequireAccounts(2); err != nil {
		return err
	}
	accs := ctx.Accounts()
	accInfo, mintInfo := accs[0], accs[1]

	if !accInfo.Owner().Equals(solana.TokenProgramID) || len(accInfo.Data()) != AccountSize {
		return fmt.Errorf("%w: %s not allocated for the token program", ErrInvalidAccountData, accInfo.Key)
	}
	current, err := DecodeAccount(accInfo.Data())
	if err != nil {
		return err
	}
	if current.Initialized() {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, accInfo.Key)
	}
	if _, err := loadMint(mintInfo); err != nil {
		return err
	}
	return storeAccount(ctx, accInfo, Account{
		Mint:  mintInfo.Key,
		Owner: owner,
		State: StateInitialized,
	})
}

func loadAccount(info *ledger.AccountInfo) (Account, error) {
	if !info.Owner().Equals(solana.TokenProgramID) {
		return Account{}, fmt.Errorf("%w: %s owned by %s", ledger.ErrIllegalOwner, info.Key, info.Owner())
	}
	acc, err := DecodeAccount(info.Data())
	if err != nil {
		return Account{}, err
	}
	if !acc.Initialized() {
		return Account{}, fmt.Errorf("%w: %s", ErrUninitializedAccount, info.Key)
	}
	return acc, nil
}

func loadMint(info *ledger.AccountInfo) (Mint, error) {
	if !info.Owner().Equals(solana.TokenProgramID) {
		return Mint{}, fmt.Errorf("%w: mint %s owned by %s", ledger.ErrIllegalOwner, info.Key, info.Owner())
	}
	mint, err := DecodeMint(info.Data())
	if err != nil {
		return Mint{}, err
	}
	if !mint.IsInitialized {
		return Mint{}, fmt.Errorf("%w: mint %s", ErrUninitializedAccount, info.Key)
	}
	return mint, nil
}

func storeAccount(ctx *ledger.Context, info *ledger.AccountInfo, acc Account) error {
	encoded, err := EncodeAccount(acc)
	if err != nil {
		return err
	}
	return ctx.SetData(info, encoded)
}

// ReadAccount decodes an initialized token account from its holder info.
func ReadAccount(info *ledger.AccountInfo) (Account, error) {
	return loadAccount(info)
}

// ReadMint decodes an initialized mint from its holder info.
func ReadMint(info *ledger.AccountInfo) (Mint, error) {
	return loadMint(info)
}
