package ledger

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

const (
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionThreshold     = 2
	rentBurnPercent        = 50
)

// MinimumBalance is the rent-exempt reserve for an account of dataLen bytes.
func MinimumBalance(dataLen uint64) uint64 {
	return (accountStorageOverhead + dataLen) * lamportsPerByteYear * exemptionThreshold
}

func encodeRentSysvar() []byte {
	out := make([]byte, 17)
	binary.LittleEndian.PutUint64(out[0:8], lamportsPerByteYear)
	binary.LittleEndian.PutUint64(out[8:16], math.Float64bits(exemptionThreshold))
	out[16] = rentBurnPercent
	return out
}

func processSystem(ctx *Context, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: system instruction too short", ErrInvalidInstruction)
	}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case system.Instruction_CreateAccount, system.Instruction_Transfer:
		if err := ctx.RequireAccounts(2); err != nil {
			return err
		}
	case system.Instruction_Allocate, system.Instruction_Assign:
		if err := ctx.RequireAccounts(1); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unsupported system instruction %d", ErrInvalidInstruction, binary.LittleEndian.Uint32(data[:4]))
	}

	metas := make([]*solana.AccountMeta, 0, len(ctx.accounts))
	for _, info := range ctx.accounts {
		metas = append(metas, solana.NewAccountMeta(info.Key, info.IsWritable, info.IsSigner))
	}
	inst, err := system.DecodeInstruction(metas, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	switch impl := inst.Impl.(type) {
	case *system.CreateAccount:
		if impl.Lamports == nil || impl.Space == nil || impl.Owner == nil {
			return fmt.Errorf("%w: create_account missing parameters", ErrInvalidInstruction)
		}
		return createAccount(ctx, *impl.Lamports, *impl.Space, *impl.Owner)
	case *system.Transfer:
		if impl.Lamports == nil {
			return fmt.Errorf("%w: transfer missing lamports", ErrInvalidInstruction)
		}
		return transferLamports(ctx, *impl.Lamports)
	case *system.Allocate:
		if impl.Space == nil {
			return fmt.Errorf("%w: allocate missing space", ErrInvalidInstruction)
		}
		return allocate(ctx, *impl.Space)
	case *system.Assign:
		if impl.Owner == nil {
			return fmt.Errorf("%w: assign missing owner", ErrInvalidInstruction)
		}
		return assign(ctx, *impl.Owner)
	default:
		return fmt.Errorf("%w: unsupported system instruction %T", ErrInvalidInstruction, inst.Impl)
	}
}

func createAccount(ctx *Context, lamports, space uint64, owner solana.PublicKey) error {
	funding, created := ctx.accounts[0], ctx.accounts[1]
	for _, info := range []*AccountInfo{funding, created} {
		if !info.IsSigner {
			return fmt.Errorf("%w: %s", ErrMissingSignature, info.Key)
		}
		if !info.IsWritable {
			return fmt.Errorf("%w: %s", ErrReadonlyAccount, info.Key)
		}
	}
	if created.account.exists() || !created.account.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", ErrAccountInUse, created.Key)
	}
	if !funding.account.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: funding account %s", ErrIllegalOwner, funding.Key)
	}
	if funding.account.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientLamports, funding.Key, funding.account.Lamports, lamports)
	}

	funding.account.Lamports -= lamports
	created.account.Lamports += lamports
	created.account.Data = make([]byte, space)
	created.account.Owner = owner
	ctx.Log("create_account", "address", created.Key, "space", space, "owner", owner)
	return nil
}

func transferLamports(ctx *Context, lamports uint64) error {
	from, to := ctx.accounts[0], ctx.accounts[1]
	if !from.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, from.Key)
	}
	if !from.IsWritable || !to.IsWritable {
		return fmt.Errorf("%w: transfer accounts must be writable", ErrReadonlyAccount)
	}
	if !from.account.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, from.Key)
	}
	if from.account.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientLamports, from.Key, from.account.Lamports, lamports)
	}
	if from.account == to.account {
		return nil
	}
	from.account.Lamports -= lamports
	to.account.Lamports += lamports
	return nil
}

func allocate(ctx *Context, space uint64) error {
	target := ctx.accounts[0]
	if !target.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, target.Key)
	}
	if !target.IsWritable {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, target.Key)
	}
	if len(target.account.Data) > 0 || !target.account.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", ErrAccountInUse, target.Key)
	}
	target.account.Data = make([]byte, space)
	ctx.Log("allocate", "address", target.Key, "space", space)
	return nil
}

func assign(ctx *Context, owner solana.PublicKey) error {
	target := ctx.accounts[0]
	if target.account.Owner.Equals(owner) {
		return nil
	}
	if !target.IsSigner {
		return fmt.Errorf("%w: %s", ErrMissingSignature, target.Key)
	}
	if !target.IsWritable {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, target.Key)
	}
	if !target.account.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, target.Key, target.account.Owner)
	}
	target.account.Owner = owner
	ctx.Log("assign", "address", target.Key, "owner", owner)
	return nil
}

// CreateAccountSigned creates address as a space-byte account owned by owner,
// signing for it with seeds and funding it from payer. An address that
// already holds lamports but no data is topped up to the rent-exempt reserve,
// then allocated and assigned.
func (c *Context) CreateAccountSigned(payer, address *AccountInfo, space uint64, owner solana.PublicKey, seeds [][]byte) error {
	required := MinimumBalance(space)
	current := address.Lamports()
	if current == 0 {
		ix, err := system.NewCreateAccountInstruction(required, space, owner, payer.Key, address.Key).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("build create_account: %w", err)
		}
		return c.Invoke(ix, seeds)
	}

	if !address.DataIsEmpty() || !address.Owner().Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", ErrAccountInUse, address.Key)
	}
	if current < required {
		ix, err := system.NewTransferInstruction(required-current, payer.Key, address.Key).ValidateAndBuild()
		if err != nil {
			return fmt.Errorf("build transfer: %w", err)
		}
		if err := c.Invoke(ix); err != nil {
			return err
		}
	}
	allocateIx, err := system.NewAllocateInstruction(space, address.Key).ValidateAndBuild()
	if err != nil {
		return fmt.Errorf("build allocate: %w", err)
	}
	if err := c.Invoke(allocateIx, seeds); err != nil {
		return err
	}
	assignIx, err := system.NewAssignInstruction(owner, address.Key).ValidateAndBuild()
	if err != nil {
		return fmt.Errorf("build assign: %w", err)
	}
	return c.Invoke(assignIx, seeds)
}
