package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/anchor"
	"github.com/coldbell/vault/backend/internal/lulo"
	"github.com/coldbell/vault/backend/internal/pda"
	"github.com/coldbell/vault/backend/internal/token"
)

var ProgramID = solana.MustPublicKeyFromBase58("7YMgh7tHNP1mahFrpL4GYT6GeCQ3KmyM2gZCirJF2epV")

const (
	InitVaultName         = "init_vault"
	DepositVaultName      = "deposit_vault"
	WithdrawVaultName     = "withdraw_vault"
	LuloDepositName       = "lulo_deposit"
	LuloWithdrawName      = "lulo_withdraw"
	LuloDepositDriftName  = "lulo_deposit_drift"
	LuloWithdrawDriftName = "lulo_withdraw_drift"
)

var (
	initVaultDisc         = anchor.InstructionDiscriminator(InitVaultName)
	depositVaultDisc      = anchor.InstructionDiscriminator(DepositVaultName)
	withdrawVaultDisc     = anchor.InstructionDiscriminator(WithdrawVaultName)
	luloDepositDisc       = anchor.InstructionDiscriminator(LuloDepositName)
	luloWithdrawDisc      = anchor.InstructionDiscriminator(LuloWithdrawName)
	luloDepositDriftDisc  = anchor.InstructionDiscriminator(LuloDepositDriftName)
	luloWithdrawDriftDisc = anchor.InstructionDiscriminator(LuloWithdrawDriftName)
)

// RouteDepositArgs are forwarded unmodified to the router's initiate_deposit.
type RouteDepositArgs struct {
	Amount           uint64
	AllowedProtocols *string
	EndDate          *int64
	ReturnType       *string
}

type RouteWithdrawArgs struct {
	Amount      uint64
	WithdrawAll bool
	ReturnType  *string
}

// Addresses are the deterministic accounts of one (owner, mint) vault.
type Addresses struct {
	Vault                solana.PublicKey
	Salt                 uint8
	VaultTokenAccount    solana.PublicKey
	LuloUserAccount      solana.PublicKey
	LuloUserTokenAccount solana.PublicKey
}

func ResolveAddresses(programID, luloProgramID, owner, mint solana.PublicKey) (Addresses, error) {
	vault, salt, err := pda.DeriveVault(programID, mint, owner)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive vault: %w", err)
	}
	escrow, err := token.AssociatedAddress(vault, mint)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive vault token account: %w", err)
	}
	userAccount, _, err := pda.DeriveLuloUserAccount(luloProgramID, vault)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive lulo user account: %w", err)
	}
	userTokenAccount, err := token.AssociatedAddress(userAccount, mint)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive lulo user token account: %w", err)
	}
	return Addresses{
		Vault:                vault,
		Salt:                 salt,
		VaultTokenAccount:    escrow,
		LuloUserAccount:      userAccount,
		LuloUserTokenAccount: userTokenAccount,
	}, nil
}

// EscrowAccounts names the caller side of init, deposit and withdraw.
// FeePayer is set only for programs deployed with a separate fee payer.
type EscrowAccounts struct {
	Owner             solana.PublicKey
	FeePayer          *solana.PublicKey
	Mint              solana.PublicKey
	OwnerTokenAccount solana.PublicKey
}

// BridgeAccounts names the caller side of the lulo instructions.
// SeparateFeePayer targets programs deployed with a separate fee payer, whose
// lulo_deposit takes no rent sysvar.
type BridgeAccounts struct {
	Owner            solana.PublicKey
	Mint             solana.PublicKey
	LuloProgram      solana.PublicKey
	PromotionReserve solana.PublicKey
	SeparateFeePayer bool
}

func withFeePayer(metas solana.AccountMetaSlice, feePayer *solana.PublicKey) solana.AccountMetaSlice {
	if feePayer == nil {
		return metas
	}
	return append(metas, solana.NewAccountMeta(*feePayer, true, true))
}

func NewInitVaultInstruction(programID solana.PublicKey, accounts EscrowAccounts) (solana.Instruction, error) {
	vault, _, err := pda.DeriveVault(programID, accounts.Mint, accounts.Owner)
	if err != nil {
		return nil, fmt.Errorf("%s: derive vault: %w", InitVaultName, err)
	}
	metas := withFeePayer(solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Owner, true, true),
	}, accounts.FeePayer)
	metas = append(metas,
		solana.NewAccountMeta(accounts.Mint, true, false),
		solana.NewAccountMeta(vault, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	)
	return newInstruction(programID, metas, anchor.NewPayload(initVaultDisc))
}

func NewDepositVaultInstruction(programID solana.PublicKey, amount uint64, accounts EscrowAccounts) (solana.Instruction, error) {
	metas, err := escrowMetas(programID, accounts, accounts.FeePayer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DepositVaultName, err)
	}
	return newInstruction(programID, metas, anchor.NewPayload(depositVaultDisc).U64(amount))
}

func NewWithdrawVaultInstruction(programID solana.PublicKey, amount uint64, accounts EscrowAccounts) (solana.Instruction, error) {
	metas, err := escrowMetas(programID, accounts, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", WithdrawVaultName, err)
	}
	return newInstruction(programID, metas, anchor.NewPayload(withdrawVaultDisc).U64(amount))
}

func escrowMetas(programID solana.PublicKey, accounts EscrowAccounts, feePayer *solana.PublicKey) (solana.AccountMetaSlice, error) {
	vault, _, err := pda.DeriveVault(programID, accounts.Mint, accounts.Owner)
	if err != nil {
		return nil, fmt.Errorf("derive vault: %w", err)
	}
	escrow, err := token.AssociatedAddress(vault, accounts.Mint)
	if err != nil {
		return nil, err
	}
	metas := withFeePayer(solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Owner, true, true),
	}, feePayer)
	return append(metas,
		solana.NewAccountMeta(vault, false, false),
		solana.NewAccountMeta(accounts.Mint, true, false),
		solana.NewAccountMeta(accounts.OwnerTokenAccount, true, false),
		solana.NewAccountMeta(escrow, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	), nil
}

func NewLuloDepositInstruction(programID solana.PublicKey, args RouteDepositArgs, accounts BridgeAccounts) (solana.Instruction, error) {
	metas, err := bridgeMetas(programID, accounts, !accounts.SeparateFeePayer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LuloDepositName, err)
	}
	payload := anchor.NewPayload(luloDepositDisc).
		U64(args.Amount).
		OptionalString(args.AllowedProtocols).
		OptionalI64(args.EndDate).
		OptionalString(args.ReturnType)
	return newInstruction(programID, metas, payload)
}

func NewLuloWithdrawInstruction(programID solana.PublicKey, args RouteWithdrawArgs, accounts BridgeAccounts) (solana.Instruction, error) {
	metas, err := bridgeMetas(programID, accounts, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LuloWithdrawName, err)
	}
	payload := anchor.NewPayload(luloWithdrawDisc).
		U64(args.Amount).
		Bool(args.WithdrawAll).
		OptionalString(args.ReturnType)
	return newInstruction(programID, metas, payload)
}

// NewLuloDepositDriftInstruction appends remaining in the order
// DriftDepositRemaining produces.
func NewLuloDepositDriftInstruction(programID solana.PublicKey, amount uint64, accounts BridgeAccounts, remaining []*solana.AccountMeta) (solana.Instruction, error) {
	metas, err := bridgeMetas(programID, accounts, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LuloDepositDriftName, err)
	}
	return newInstruction(programID, append(metas, remaining...), anchor.NewPayload(luloDepositDriftDisc).U64(amount))
}

// NewLuloWithdrawDriftInstruction appends remaining in the order
// DriftWithdrawRemaining produces.
func NewLuloWithdrawDriftInstruction(programID solana.PublicKey, amount uint64, accounts BridgeAccounts, remaining []*solana.AccountMeta) (solana.Instruction, error) {
	metas, err := bridgeMetas(programID, accounts, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LuloWithdrawDriftName, err)
	}
	return newInstruction(programID, append(metas, remaining...), anchor.NewPayload(luloWithdrawDriftDisc).U64(amount))
}

func bridgeMetas(programID solana.PublicKey, accounts BridgeAccounts, withRent bool) (solana.AccountMetaSlice, error) {
	addrs, err := ResolveAddresses(programID, accounts.LuloProgram, accounts.Owner, accounts.Mint)
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Owner, true, true),
		solana.NewAccountMeta(addrs.Vault, true, false),
		solana.NewAccountMeta(addrs.VaultTokenAccount, true, false),
		solana.NewAccountMeta(accounts.Mint, false, false),
		solana.NewAccountMeta(addrs.LuloUserAccount, true, false),
		solana.NewAccountMeta(addrs.LuloUserTokenAccount, true, false),
		solana.NewAccountMeta(accounts.PromotionReserve, true, false),
		solana.NewAccountMeta(accounts.LuloProgram, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
	if withRent {
		metas = append(metas, solana.NewAccountMeta(solana.SysVarRentPubkey, false, false))
	}
	return metas, nil
}

func newInstruction(programID solana.PublicKey, metas solana.AccountMetaSlice, payload *anchor.Payload) (solana.Instruction, error) {
	data, err := payload.Bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, metas, data), nil
}

// DriftMarket is the downstream lending market a drift-class call targets.
type DriftMarket struct {
	Program     solana.PublicKey
	MarketIndex uint16
	SpotMarket  solana.PublicKey
	Oracle      solana.PublicKey
}

// DriftDepositRemaining builds the remaining accounts of lulo_deposit_drift
// for the sub-account owned by authority (the vault's lulo user account).
func DriftDepositRemaining(market DriftMarket, authority solana.PublicKey) ([]*solana.AccountMeta, error) {
	fixed, err := driftFixed(market, authority)
	if err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		solana.NewAccountMeta(fixed.user, true, false),
		solana.NewAccountMeta(fixed.userStats, true, false),
		solana.NewAccountMeta(fixed.state, true, false),
		solana.NewAccountMeta(fixed.spotMarketVault, true, false),
		solana.NewAccountMeta(market.SpotMarket, true, false),
		solana.NewAccountMeta(market.Oracle, false, false),
		solana.NewAccountMeta(market.Program, false, false),
	}, nil
}

// DriftWithdrawRemaining builds the remaining accounts of
// lulo_withdraw_drift: the six fixed roles, then one oracle per market, then
// one spot market per market, each group in market order.
func DriftWithdrawRemaining(market DriftMarket, authority, driftSigner solana.PublicKey, oracles, spotMarkets []solana.PublicKey) ([]*solana.AccountMeta, error) {
	if len(oracles) != len(spotMarkets) {
		return nil, fmt.Errorf("%w: %d oracles for %d spot markets", ErrMissingAuxiliaryAccount, len(oracles), len(spotMarkets))
	}
	fixed, err := driftFixed(market, authority)
	if err != nil {
		return nil, err
	}
	out := []*solana.AccountMeta{
		solana.NewAccountMeta(fixed.user, true, false),
		solana.NewAccountMeta(fixed.userStats, true, false),
		solana.NewAccountMeta(fixed.state, true, false),
		solana.NewAccountMeta(driftSigner, false, false),
		solana.NewAccountMeta(fixed.spotMarketVault, true, false),
		solana.NewAccountMeta(market.Program, false, false),
	}
	for _, oracle := range oracles {
		out = append(out, solana.NewAccountMeta(oracle, false, false))
	}
	for _, spotMarket := range spotMarkets {
		out = append(out, solana.NewAccountMeta(spotMarket, true, false))
	}
	return out, nil
}

type driftAddresses struct {
	user            solana.PublicKey
	userStats       solana.PublicKey
	state           solana.PublicKey
	spotMarketVault solana.PublicKey
}

func driftFixed(market DriftMarket, authority solana.PublicKey) (driftAddresses, error) {
	var out driftAddresses
	var err error
	if out.user, _, err = pda.DeriveDriftUser(market.Program, authority, 0); err != nil {
		return out, fmt.Errorf("derive drift user: %w", err)
	}
	if out.userStats, _, err = pda.DeriveDriftUserStats(market.Program, authority); err != nil {
		return out, fmt.Errorf("derive drift user stats: %w", err)
	}
	if out.state, _, err = pda.DeriveDriftState(market.Program); err != nil {
		return out, fmt.Errorf("derive drift state: %w", err)
	}
	if out.spotMarketVault, _, err = pda.DeriveDriftSpotMarketVault(market.Program, market.MarketIndex); err != nil {
		return out, fmt.Errorf("derive spot market vault: %w", err)
	}
	return out, nil
}

// DefaultBridgeAccounts targets the mainnet router deployment.
func DefaultBridgeAccounts(owner, mint solana.PublicKey) BridgeAccounts {
	return BridgeAccounts{
		Owner:            owner,
		Mint:             mint,
		LuloProgram:      lulo.ProgramID,
		PromotionReserve: lulo.PromotionReserveID,
	}
}
