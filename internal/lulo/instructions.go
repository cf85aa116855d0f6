package lulo

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// InitiateAccounts is the account set of initiate_deposit and
// initiate_withdraw. Owner is the position holder and must sign.
type InitiateAccounts struct {
	Owner                  solana.PublicKey
	FeePayer               solana.PublicKey
	OwnerTokenAccount      solana.PublicKey
	UserAccount            solana.PublicKey
	FlexUserTokenAccount   solana.PublicKey
	Mint                   solana.PublicKey
	PromotionReserve       solana.PublicKey
	FlexProgram            solana.PublicKey
	TokenProgram           solana.PublicKey
	SystemProgram          solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
}

func (a InitiateAccounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Owner, true, true),
		solana.NewAccountMeta(a.FeePayer, true, true),
		solana.NewAccountMeta(a.OwnerTokenAccount, true, false),
		solana.NewAccountMeta(a.UserAccount, true, false),
		solana.NewAccountMeta(a.FlexUserTokenAccount, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.PromotionReserve, true, false),
		solana.NewAccountMeta(a.FlexProgram, false, false),
		solana.NewAccountMeta(a.TokenProgram, false, false),
		solana.NewAccountMeta(a.SystemProgram, false, false),
		solana.NewAccountMeta(a.AssociatedTokenProgram, false, false),
	}
}

type InitDriftUserAccounts struct {
	Signer           solana.PublicKey
	Owner            solana.PublicKey
	DriftUser        solana.PublicKey
	DriftUserStats   solana.PublicKey
	DriftState       solana.PublicKey
	UserAccount      solana.PublicKey
	PromotionReserve solana.PublicKey
	FeePayer         solana.PublicKey
	DriftProgram     solana.PublicKey
	Rent             solana.PublicKey
	SystemProgram    solana.PublicKey
}

func (a InitDriftUserAccounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.Owner, false, false),
		solana.NewAccountMeta(a.DriftUser, true, false),
		solana.NewAccountMeta(a.DriftUserStats, true, false),
		solana.NewAccountMeta(a.DriftState, true, false),
		solana.NewAccountMeta(a.UserAccount, true, false),
		solana.NewAccountMeta(a.PromotionReserve, true, false),
		solana.NewAccountMeta(a.FeePayer, true, true),
		solana.NewAccountMeta(a.DriftProgram, false, false),
		solana.NewAccountMeta(a.Rent, false, false),
		solana.NewAccountMeta(a.SystemProgram, false, false),
	}
}

type DepositDriftAccounts struct {
	Signer               solana.PublicKey
	Owner                solana.PublicKey
	DriftUser            solana.PublicKey
	DriftUserStats       solana.PublicKey
	DriftState           solana.PublicKey
	SpotMarketVault      solana.PublicKey
	UserAccount          solana.PublicKey
	FlexUserTokenAccount solana.PublicKey
	Mint                 solana.PublicKey
	SpotMarket           solana.PublicKey
	Oracle               solana.PublicKey
	FeePayer             solana.PublicKey
	DriftProgram         solana.PublicKey
	TokenProgram         solana.PublicKey
	SystemProgram        solana.PublicKey
}

func (a DepositDriftAccounts) metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.Owner, false, false),
		solana.NewAccountMeta(a.DriftUser, true, false),
		solana.NewAccountMeta(a.DriftUserStats, true, false),
		solana.NewAccountMeta(a.DriftState, true, false),
		solana.NewAccountMeta(a.SpotMarketVault, true, false),
		solana.NewAccountMeta(a.UserAccount, true, false),
		solana.NewAccountMeta(a.FlexUserTokenAccount, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.SpotMarket, true, false),
		solana.NewAccountMeta(a.Oracle, false, false),
		solana.NewAccountMeta(a.FeePayer, true, true),
		solana.NewAccountMeta(a.DriftProgram, false, false),
		solana.NewAccountMeta(a.TokenProgram, false, false),
		solana.NewAccountMeta(a.SystemProgram, false, false),
	}
}

// WithdrawDriftAccounts carries the per-market oracle and spot market
// accounts in Remaining, oracles first.
type WithdrawDriftAccounts struct {
	Signer                 solana.PublicKey
	Owner                  solana.PublicKey
	DriftUser              solana.PublicKey
	DriftUserStats         solana.PublicKey
	DriftState             solana.PublicKey
	DriftSigner            solana.PublicKey
	SpotMarketVault        solana.PublicKey
	UserAccount            solana.PublicKey
	FlexUserTokenAccount   solana.PublicKey
	Mint                   solana.PublicKey
	FeePayer               solana.PublicKey
	DriftProgram           solana.PublicKey
	TokenProgram           solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
	SystemProgram          solana.PublicKey
	Remaining              []*solana.AccountMeta
}

func (a WithdrawDriftAccounts) metas() solana.AccountMetaSlice {
	out := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.Owner, false, false),
		solana.NewAccountMeta(a.DriftUser, true, false),
		solana.NewAccountMeta(a.DriftUserStats, true, false),
		solana.NewAccountMeta(a.DriftState, true, false),
		solana.NewAccountMeta(a.DriftSigner, false, false),
		solana.NewAccountMeta(a.SpotMarketVault, true, false),
		solana.NewAccountMeta(a.UserAccount, true, false),
		solana.NewAccountMeta(a.FlexUserTokenAccount, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.FeePayer, true, true),
		solana.NewAccountMeta(a.DriftProgram, false, false),
		solana.NewAccountMeta(a.TokenProgram, false, false),
		solana.NewAccountMeta(a.AssociatedTokenProgram, false, false),
		solana.NewAccountMeta(a.SystemProgram, false, false),
	}
	return append(out, a.Remaining...)
}

// Fixed account counts, excluding remaining accounts.
const (
	InitiateAccountCount      = 11
	InitDriftUserAccountCount = 11
	DepositDriftAccountCount  = 15
	WithdrawDriftAccountCount = 15
)

func NewInitiateDepositInstruction(programID solana.PublicKey, args InitiateDepositArgs, accounts InitiateAccounts) (solana.Instruction, error) {
	data, err := args.encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", InitiateDepositName, err)
	}
	return solana.NewInstruction(programID, accounts.metas(), data), nil
}

func NewInitiateWithdrawInstruction(programID solana.PublicKey, args InitiateWithdrawArgs, accounts InitiateAccounts) (solana.Instruction, error) {
	data, err := args.encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", InitiateWithdrawName, err)
	}
	return solana.NewInstruction(programID, accounts.metas(), data), nil
}

func NewInitDriftUserAccountInstruction(programID solana.PublicKey, accounts InitDriftUserAccounts) solana.Instruction {
	data := make([]byte, len(initDriftUserAccountDisc))
	copy(data, initDriftUserAccountDisc[:])
	return solana.NewInstruction(programID, accounts.metas(), data)
}

func NewDepositDriftInstruction(programID solana.PublicKey, args DepositDriftArgs, accounts DepositDriftAccounts) (solana.Instruction, error) {
	data, err := args.encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DepositDriftName, err)
	}
	return solana.NewInstruction(programID, accounts.metas(), data), nil
}

func NewWithdrawDriftInstruction(programID solana.PublicKey, args WithdrawDriftArgs, accounts WithdrawDriftAccounts) (solana.Instruction, error) {
	data, err := args.encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", WithdrawDriftName, err)
	}
	return solana.NewInstruction(programID, accounts.metas(), data), nil
}
