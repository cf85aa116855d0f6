package vault

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/ledger"
	"github.com/coldbell/vault/backend/internal/pda"
	"github.com/coldbell/vault/backend/internal/token"
)

func (p *Program) createVault(ctx *ledger.Context) error {
	accs, err := p.parseInit(ctx)
	if err != nil {
		return err
	}
	if err := requireSigner("owner", accs.owner); err != nil {
		return err
	}
	if err := requireSigner("fee payer", accs.payer); err != nil {
		return err
	}
	if _, err := token.ReadMint(accs.mint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}

	address, salt, err := pda.DeriveVault(p.id, accs.mint.Key, accs.owner.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorizationMismatch, err)
	}
	if !address.Equals(accs.vault.Key) {
		return fmt.Errorf("%w: vault for %s/%s is %s, got %s", ErrAuthorizationMismatch, accs.owner.Key, accs.mint.Key, address, accs.vault.Key)
	}
	if !accs.vault.DataIsEmpty() {
		return fmt.Errorf("%w: %s", ErrDuplicateInitialization, accs.vault.Key)
	}

	record := Record{Owner: accs.owner.Key, Mint: accs.mint.Key, Salt: salt}
	if err := ctx.CreateAccountSigned(accs.payer, accs.vault, RecordSize, p.id, record.SignerSeeds()); err != nil {
		if errors.Is(err, ledger.ErrAccountInUse) {
			return fmt.Errorf("%w: %v", ErrDuplicateInitialization, err)
		}
		return fmt.Errorf("allocate vault: %w", err)
	}

	encoded, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	if err := ctx.SetData(accs.vault, encoded); err != nil {
		return err
	}
	ctx.Log("vault created", "vault", accs.vault.Key, "owner", record.Owner, "mint", record.Mint, "salt", salt)
	return nil
}

func (p *Program) deposit(ctx *ledger.Context, amount uint64) error {
	accs, err := p.parseEscrow(ctx, p.opts.SeparateFeePayer)
	if err != nil {
		return err
	}
	if err := requireSigner("owner", accs.owner); err != nil {
		return err
	}
	if err := requireSigner("fee payer", accs.payer); err != nil {
		return err
	}
	if _, err := p.loadVault(accs.vault, accs.owner.Key, accs.mint); err != nil {
		return err
	}
	source, err := ownerTokenAccount(accs.ownerToken, accs.owner.Key, accs.mint.Key)
	if err != nil {
		return err
	}
	if source.Amount < amount {
		return fmt.Errorf("%w: owner holds %d, deposit %d", ErrInsufficientBalance, source.Amount, amount)
	}
	if err := p.ensureEscrow(ctx, accs); err != nil {
		return err
	}

	ix, err := token.NewTransferInstruction(amount, accs.ownerToken.Key, accs.vaultToken.Key, accs.owner.Key)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(ix); err != nil {
		return fmt.Errorf("transfer into escrow: %w", err)
	}
	ctx.Log("deposited", "vault", accs.vault.Key, "amount", amount)
	return nil
}

func (p *Program) withdraw(ctx *ledger.Context, amount uint64) error {
	accs, err := p.parseEscrow(ctx, false)
	if err != nil {
		return err
	}
	if err := requireSigner("owner", accs.owner); err != nil {
		return err
	}
	record, err := p.loadVault(accs.vault, accs.owner.Key, accs.mint)
	if err != nil {
		return err
	}
	if _, err := ownerTokenAccount(accs.ownerToken, accs.owner.Key, accs.mint.Key); err != nil {
		return err
	}
	held, err := escrowBalance(accs.vaultToken, accs.vault.Key, accs.mint.Key)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: escrow holds %d, withdraw %d", ErrInsufficientBalance, held, amount)
	}

	ix, err := token.NewTransferInstruction(amount, accs.vaultToken.Key, accs.ownerToken.Key, accs.vault.Key)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(ix, record.SignerSeeds()); err != nil {
		return fmt.Errorf("transfer out of escrow: %w", err)
	}
	ctx.Log("withdrew", "vault", accs.vault.Key, "amount", amount)
	return nil
}

// ensureEscrow creates the vault's holding account on first deposit.
func (p *Program) ensureEscrow(ctx *ledger.Context, accs *escrowAccounts) error {
	if err := checkEscrowAddress(accs.vaultToken, accs.vault.Key, accs.mint.Key); err != nil {
		return err
	}
	if !accs.vaultToken.DataIsEmpty() {
		_, err := escrowBalance(accs.vaultToken, accs.vault.Key, accs.mint.Key)
		return err
	}
	ix, err := token.NewCreateIdempotentInstruction(accs.payer.Key, accs.vault.Key, accs.mint.Key)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(ix); err != nil {
		return fmt.Errorf("create escrow account: %w", err)
	}
	return nil
}

// loadVault authenticates the vault account against the caller's owner and
// mint, re-deriving its address from the stored salt.
func (p *Program) loadVault(info *ledger.AccountInfo, owner solana.PublicKey, mint *ledger.AccountInfo) (Record, error) {
	if !info.Owner().Equals(p.id) {
		return Record{}, fmt.Errorf("%w: vault %s owned by %s", ErrAuthorizationMismatch, info.Key, info.Owner())
	}
	record, err := DecodeRecord(info.Data())
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrAuthorizationMismatch, err)
	}
	if !record.Owner.Equals(owner) {
		return Record{}, fmt.Errorf("%w: vault owner is %s, caller %s", ErrAuthorizationMismatch, record.Owner, owner)
	}
	if !record.Mint.Equals(mint.Key) {
		return Record{}, fmt.Errorf("%w: vault mint is %s, got %s", ErrAuthorizationMismatch, record.Mint, mint.Key)
	}
	if err := record.Verify(p.id, info.Key); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrAuthorizationMismatch, err)
	}
	if _, err := token.ReadMint(mint); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	return record, nil
}

func ownerTokenAccount(info *ledger.AccountInfo, owner, mint solana.PublicKey) (token.Account, error) {
	acc, err := token.ReadAccount(info)
	if err != nil {
		return token.Account{}, fmt.Errorf("%w: owner token account: %v", ErrInvalidInstruction, err)
	}
	if !acc.Mint.Equals(mint) {
		return token.Account{}, fmt.Errorf("%w: owner token account holds %s", ErrInvalidMint, acc.Mint)
	}
	if !acc.Owner.Equals(owner) {
		return token.Account{}, fmt.Errorf("%w: owner token account authority is %s", ErrAuthorizationMismatch, acc.Owner)
	}
	return acc, nil
}

func checkEscrowAddress(info *ledger.AccountInfo, vault, mint solana.PublicKey) error {
	want, err := token.AssociatedAddress(vault, mint)
	if err != nil {
		return err
	}
	if !want.Equals(info.Key) {
		return fmt.Errorf("%w: escrow for %s is %s, got %s", ErrAuthorizationMismatch, vault, want, info.Key)
	}
	return nil
}

// escrowBalance reads the vault's holding account; an absent account holds
// nothing.
func escrowBalance(info *ledger.AccountInfo, vault, mint solana.PublicKey) (uint64, error) {
	if err := checkEscrowAddress(info, vault, mint); err != nil {
		return 0, err
	}
	if info.DataIsEmpty() {
		return 0, nil
	}
	acc, err := token.ReadAccount(info)
	if err != nil {
		return 0, fmt.Errorf("%w: escrow account: %v", ErrInvalidInstruction, err)
	}
	if !acc.Owner.Equals(vault) || !acc.Mint.Equals(mint) {
		return 0, fmt.Errorf("%w: escrow %s not held by vault for %s", ErrAuthorizationMismatch, info.Key, mint)
	}
	return acc.Amount, nil
}
