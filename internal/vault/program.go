// Package vault is the custodial escrow program. A vault is an account
// derived from ("vault", mint, owner); the program signs for it with the same
// seeds to move escrowed tokens and to call the Lulo router as the vault.
package vault

import (
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/anchor"
	"github.com/coldbell/vault/backend/internal/ledger"
	"github.com/coldbell/vault/backend/internal/lulo"
)

// DefaultMarketIndex is the Drift spot market drift-class calls target.
const DefaultMarketIndex uint16 = 1

type Options struct {
	// SeparateFeePayer adds a fee payer signer after the owner in
	// init_vault and deposit_vault; it funds the vault and escrow accounts.
	SeparateFeePayer bool
	EnableWithdraw   bool
	EnableDrift      bool
	MarketIndex      uint16
	LuloProgramID    solana.PublicKey
}

func DefaultOptions() Options {
	return Options{
		EnableWithdraw: true,
		EnableDrift:    true,
		MarketIndex:    DefaultMarketIndex,
		LuloProgramID:  lulo.ProgramID,
	}
}

// IntegrationOptions is the deployment with a separate fee payer and no
// withdraw or drift paths.
func IntegrationOptions() Options {
	opts := DefaultOptions()
	opts.SeparateFeePayer = true
	opts.EnableWithdraw = false
	opts.EnableDrift = false
	return opts
}

type Program struct {
	id     solana.PublicKey
	opts   Options
	logger *slog.Logger
}

func New(id solana.PublicKey, opts Options, logger *slog.Logger) *Program {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.LuloProgramID.IsZero() {
		opts.LuloProgramID = lulo.ProgramID
	}
	return &Program{id: id, opts: opts, logger: logger}
}

func (p *Program) ID() solana.PublicKey {
	return p.id
}

func (p *Program) Options() Options {
	return p.opts
}

// Process dispatches one vault instruction.
func (p *Program) Process(ctx *ledger.Context, data []byte) error {
	disc, payload, err := anchor.SplitDiscriminator(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	switch disc {
	case initVaultDisc:
		if err := anchor.NewReader(payload).Finish(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInstruction, InitVaultName, err)
		}
		p.trace(ctx, InitVaultName)
		return p.createVault(ctx)

	case depositVaultDisc:
		amount, err := decodeAmount(DepositVaultName, payload)
		if err != nil {
			return err
		}
		p.trace(ctx, DepositVaultName, "amount", amount)
		return p.deposit(ctx, amount)

	case withdrawVaultDisc:
		if err := p.require(WithdrawVaultName, p.opts.EnableWithdraw); err != nil {
			return err
		}
		amount, err := decodeAmount(WithdrawVaultName, payload)
		if err != nil {
			return err
		}
		p.trace(ctx, WithdrawVaultName, "amount", amount)
		return p.withdraw(ctx, amount)

	case luloDepositDisc:
		r := anchor.NewReader(payload)
		args := RouteDepositArgs{
			Amount:           r.U64(),
			AllowedProtocols: r.OptionalString(),
			EndDate:          r.OptionalI64(),
			ReturnType:       r.OptionalString(),
		}
		if err := r.Finish(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInstruction, LuloDepositName, err)
		}
		p.trace(ctx, LuloDepositName, "amount", args.Amount)
		return p.routeDeposit(ctx, args)

	case luloWithdrawDisc:
		if err := p.require(LuloWithdrawName, p.opts.EnableWithdraw); err != nil {
			return err
		}
		r := anchor.NewReader(payload)
		args := RouteWithdrawArgs{
			Amount:      r.U64(),
			WithdrawAll: r.Bool(),
			ReturnType:  r.OptionalString(),
		}
		if err := r.Finish(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInstruction, LuloWithdrawName, err)
		}
		p.trace(ctx, LuloWithdrawName, "amount", args.Amount, "withdraw_all", args.WithdrawAll)
		return p.routeWithdraw(ctx, args)

	case luloDepositDriftDisc:
		if err := p.require(LuloDepositDriftName, p.opts.EnableDrift); err != nil {
			return err
		}
		amount, err := decodeAmount(LuloDepositDriftName, payload)
		if err != nil {
			return err
		}
		p.trace(ctx, LuloDepositDriftName, "amount", amount)
		return p.depositDrift(ctx, amount)

	case luloWithdrawDriftDisc:
		if err := p.require(LuloWithdrawDriftName, p.opts.EnableDrift && p.opts.EnableWithdraw); err != nil {
			return err
		}
		amount, err := decodeAmount(LuloWithdrawDriftName, payload)
		if err != nil {
			return err
		}
		p.trace(ctx, LuloWithdrawDriftName, "amount", amount)
		return p.withdrawDrift(ctx, amount)

	default:
		return fmt.Errorf("%w: unknown instruction %x", ErrInvalidInstruction, disc[:])
	}
}

func (p *Program) require(name string, enabled bool) error {
	if !enabled {
		return fmt.Errorf("%w: %s", ErrFeatureDisabled, name)
	}
	return nil
}

func (p *Program) trace(ctx *ledger.Context, name string, args ...any) {
	p.logger.Debug("vault instruction", append([]any{"name", name, "depth", ctx.Depth()}, args...)...)
	ctx.Log("Instruction: "+name, args...)
}

func decodeAmount(name string, payload []byte) (uint64, error) {
	r := anchor.NewReader(payload)
	amount := r.U64()
	if err := r.Finish(); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidInstruction, name, err)
	}
	return amount, nil
}
