package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/ledger"
	"github.com/coldbell/vault/backend/internal/lulo"
)

// bridgeSession is an authenticated vault ready to call the router as
// itself.
type bridgeSession struct {
	accs   *bridgeAccounts
	record Record
}

func (p *Program) openBridge(ctx *ledger.Context, withRent bool) (*bridgeSession, error) {
	accs, err := p.parseBridge(ctx, withRent)
	if err != nil {
		return nil, err
	}
	if err := requireSigner("owner", accs.owner); err != nil {
		return nil, err
	}
	record, err := p.loadVault(accs.vault, accs.owner.Key, accs.mint)
	if err != nil {
		return nil, err
	}
	if err := checkEscrowAddress(accs.vaultToken, accs.vault.Key, accs.mint.Key); err != nil {
		return nil, err
	}
	return &bridgeSession{accs: accs, record: record}, nil
}

func (s *bridgeSession) requireEscrow(amount uint64) error {
	held, err := escrowBalance(s.accs.vaultToken, s.accs.vault.Key, s.accs.mint.Key)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: escrow holds %d, route %d", ErrInsufficientBalance, held, amount)
	}
	return nil
}

// initiateAccounts names the vault as the router-side owner and the caller
// as fee payer only.
func (s *bridgeSession) initiateAccounts() lulo.InitiateAccounts {
	a := s.accs
	return lulo.InitiateAccounts{
		Owner:                  a.vault.Key,
		FeePayer:               a.owner.Key,
		OwnerTokenAccount:      a.vaultToken.Key,
		UserAccount:            a.userAccount.Key,
		FlexUserTokenAccount:   a.userTokenAccount.Key,
		Mint:                   a.mint.Key,
		PromotionReserve:       a.promotionReserve.Key,
		FlexProgram:            a.luloProgram.Key,
		TokenProgram:           a.tokenProgram.Key,
		SystemProgram:          a.system.Key,
		AssociatedTokenProgram: a.associated.Key,
	}
}

// invoke calls the router signed by the vault. Failures come back as
// DownstreamFailure; nothing is retried.
func (s *bridgeSession) invoke(ctx *ledger.Context, name string, ix solana.Instruction) error {
	if err := ctx.Invoke(ix, s.record.SignerSeeds()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDownstreamFailure, name, err)
	}
	return nil
}

func (p *Program) routeDeposit(ctx *ledger.Context, args RouteDepositArgs) error {
	s, err := p.openBridge(ctx, !p.opts.SeparateFeePayer)
	if err != nil {
		return err
	}
	if err := s.requireEscrow(args.Amount); err != nil {
		return err
	}
	ix, err := lulo.NewInitiateDepositInstruction(p.opts.LuloProgramID, lulo.InitiateDepositArgs{
		Amount:           args.Amount,
		AllowedProtocols: args.AllowedProtocols,
		EndDate:          args.EndDate,
		ReturnType:       args.ReturnType,
	}, s.initiateAccounts())
	if err != nil {
		return err
	}
	if err := s.invoke(ctx, lulo.InitiateDepositName, ix); err != nil {
		return err
	}
	ctx.Log("routed deposit", "vault", s.accs.vault.Key, "amount", args.Amount)
	return nil
}

func (p *Program) routeWithdraw(ctx *ledger.Context, args RouteWithdrawArgs) error {
	s, err := p.openBridge(ctx, false)
	if err != nil {
		return err
	}
	ix, err := lulo.NewInitiateWithdrawInstruction(p.opts.LuloProgramID, lulo.InitiateWithdrawArgs{
		Amount:      args.Amount,
		WithdrawAll: args.WithdrawAll,
		ReturnType:  args.ReturnType,
	}, s.initiateAccounts())
	if err != nil {
		return err
	}
	if err := s.invoke(ctx, lulo.InitiateWithdrawName, ix); err != nil {
		return err
	}
	ctx.Log("routed withdraw", "vault", s.accs.vault.Key, "amount", args.Amount, "withdraw_all", args.WithdrawAll)
	return nil
}
