package client

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/vault"
)

// Plan builds the instruction list of each vault operation for one owner
// and mint. It does no I/O.
type Plan struct {
	Programs         config.ProgramsConfig
	Owner            solana.PublicKey
	Mint             solana.PublicKey
	FeePayer         *solana.PublicKey
	MarketIndex      uint16
	Markets          map[uint16]config.DriftMarketConfig
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

func NewPlan(cfg config.ClientConfig, owner solana.PublicKey, feePayer *solana.PublicKey) Plan {
	return Plan{
		Programs:         cfg.Programs,
		Owner:            owner,
		Mint:             cfg.Mint,
		FeePayer:         feePayer,
		MarketIndex:      cfg.MarketIndex,
		Markets:          cfg.DriftMarkets,
		ComputeUnitLimit: cfg.ComputeUnitLimit,
		ComputeUnitPrice: cfg.ComputeUnitPriceMicroLamports,
	}
}

func (p Plan) Addresses() (vault.Addresses, error) {
	return vault.ResolveAddresses(p.Programs.VaultProgramID, p.Programs.LuloProgramID, p.Owner, p.Mint)
}

func (p Plan) escrowAccounts(ownerToken solana.PublicKey) vault.EscrowAccounts {
	return vault.EscrowAccounts{
		Owner:             p.Owner,
		FeePayer:          p.FeePayer,
		Mint:              p.Mint,
		OwnerTokenAccount: ownerToken,
	}
}

func (p Plan) bridgeAccounts() vault.BridgeAccounts {
	return vault.BridgeAccounts{
		Owner:            p.Owner,
		Mint:             p.Mint,
		LuloProgram:      p.Programs.LuloProgramID,
		PromotionReserve: p.Programs.PromotionReserveID,
		SeparateFeePayer: p.FeePayer != nil,
	}
}

func (p Plan) Init() ([]solana.Instruction, error) {
	ix, err := vault.NewInitVaultInstruction(p.Programs.VaultProgramID, p.escrowAccounts(solana.PublicKey{}))
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.InitVaultName, err)
	}
	return p.withBudget(ix)
}

func (p Plan) Deposit(amount uint64, ownerToken solana.PublicKey) ([]solana.Instruction, error) {
	ix, err := vault.NewDepositVaultInstruction(p.Programs.VaultProgramID, amount, p.escrowAccounts(ownerToken))
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.DepositVaultName, err)
	}
	return p.withBudget(ix)
}

func (p Plan) Withdraw(amount uint64, ownerToken solana.PublicKey) ([]solana.Instruction, error) {
	ix, err := vault.NewWithdrawVaultInstruction(p.Programs.VaultProgramID, amount, p.escrowAccounts(ownerToken))
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.WithdrawVaultName, err)
	}
	return p.withBudget(ix)
}

func (p Plan) LuloDeposit(args vault.RouteDepositArgs) ([]solana.Instruction, error) {
	ix, err := vault.NewLuloDepositInstruction(p.Programs.VaultProgramID, args, p.bridgeAccounts())
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.LuloDepositName, err)
	}
	return p.withBudget(ix)
}

func (p Plan) LuloWithdraw(args vault.RouteWithdrawArgs) ([]solana.Instruction, error) {
	ix, err := vault.NewLuloWithdrawInstruction(p.Programs.VaultProgramID, args, p.bridgeAccounts())
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.LuloWithdrawName, err)
	}
	return p.withBudget(ix)
}

func (p Plan) DriftDeposit(amount uint64) ([]solana.Instruction, error) {
	addrs, err := p.Addresses()
	if err != nil {
		return nil, err
	}
	market, err := p.market(p.MarketIndex)
	if err != nil {
		return nil, err
	}
	remaining, err := vault.DriftDepositRemaining(market, addrs.LuloUserAccount)
	if err != nil {
		return nil, fmt.Errorf("drift deposit accounts: %w", err)
	}
	ix, err := vault.NewLuloDepositDriftInstruction(p.Programs.VaultProgramID, amount, p.bridgeAccounts(), remaining)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.LuloDepositDriftName, err)
	}
	return p.withBudget(ix)
}

// DriftWithdraw lists the oracle and spot market of every market from 0
// through MarketIndex after the fixed drift accounts.
func (p Plan) DriftWithdraw(amount uint64) ([]solana.Instruction, error) {
	addrs, err := p.Addresses()
	if err != nil {
		return nil, err
	}
	market, err := p.market(p.MarketIndex)
	if err != nil {
		return nil, err
	}
	count := vault.MarketCount(p.MarketIndex)
	oracles := make([]solana.PublicKey, 0, count)
	spotMarkets := make([]solana.PublicKey, 0, count)
	for i := 0; i < count; i++ {
		m, err := p.market(uint16(i))
		if err != nil {
			return nil, err
		}
		oracles = append(oracles, m.Oracle)
		spotMarkets = append(spotMarkets, m.SpotMarket)
	}
	remaining, err := vault.DriftWithdrawRemaining(market, addrs.LuloUserAccount, p.Programs.DriftSignerID, oracles, spotMarkets)
	if err != nil {
		return nil, fmt.Errorf("drift withdraw accounts: %w", err)
	}
	ix, err := vault.NewLuloWithdrawDriftInstruction(p.Programs.VaultProgramID, amount, p.bridgeAccounts(), remaining)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", vault.LuloWithdrawDriftName, err)
	}
	return p.withBudget(ix)
}

func (p Plan) market(index uint16) (vault.DriftMarket, error) {
	m, ok := p.Markets[index]
	if !ok {
		return vault.DriftMarket{}, fmt.Errorf("drift market %d not configured", index)
	}
	return vault.DriftMarket{
		Program:     p.Programs.DriftProgramID,
		MarketIndex: index,
		SpotMarket:  m.SpotMarket,
		Oracle:      m.Oracle,
	}, nil
}

func (p Plan) withBudget(ix solana.Instruction) ([]solana.Instruction, error) {
	instructions := make([]solana.Instruction, 0, 3)
	if p.ComputeUnitLimit > 0 {
		cuLimitIx, err := computebudget.NewSetComputeUnitLimitInstruction(p.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		instructions = append(instructions, cuLimitIx)
	}
	if p.ComputeUnitPrice > 0 {
		cuPriceIx, err := computebudget.NewSetComputeUnitPriceInstruction(p.ComputeUnitPrice).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		instructions = append(instructions, cuPriceIx)
	}
	return append(instructions, ix), nil
}
