// Package lulo is the call contract of the Lulo yield router and the Drift
// sub-account instructions it fronts: program addresses, instruction
// discriminators, argument encoding and account ordering.
package lulo

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/anchor"
)

var (
	ProgramID          = solana.MustPublicKeyFromBase58("FL3X2pRsQ9zHENpZSKDRREtccwJuei8yg9fwDu9UN69Q")
	PromotionReserveID = solana.MustPublicKeyFromBase58("4NCKkwUCBRcu7TGxDaEZ6Uw6TvzdDbnvSuYbXLzrLnzv")
	DriftProgramID     = solana.MustPublicKeyFromBase58("dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH")
	DriftSignerID      = solana.MustPublicKeyFromBase58("JCNCMFXo5M5qwUPg2Utu1u6YWp3MbygxqBsBeXXJfrw")
)

const (
	InitiateDepositName      = "initiate_deposit"
	InitiateWithdrawName     = "initiate_withdraw"
	InitDriftUserAccountName = "init_drift_user_account"
	DepositDriftName         = "deposit_drift"
	WithdrawDriftName        = "withdraw_drift"
)

var (
	initiateDepositDisc      = anchor.InstructionDiscriminator(InitiateDepositName)
	initiateWithdrawDisc     = anchor.InstructionDiscriminator(InitiateWithdrawName)
	initDriftUserAccountDisc = anchor.InstructionDiscriminator(InitDriftUserAccountName)
	depositDriftDisc         = anchor.InstructionDiscriminator(DepositDriftName)
	withdrawDriftDisc        = anchor.InstructionDiscriminator(WithdrawDriftName)
)

var namesByDisc = map[anchor.Discriminator]string{
	initiateDepositDisc:      InitiateDepositName,
	initiateWithdrawDisc:     InitiateWithdrawName,
	initDriftUserAccountDisc: InitDriftUserAccountName,
	depositDriftDisc:         DepositDriftName,
	withdrawDriftDisc:        WithdrawDriftName,
}

// Identify names the instruction data addresses and returns its borsh args.
func Identify(data []byte) (string, []byte, error) {
	disc, payload, err := anchor.SplitDiscriminator(data)
	if err != nil {
		return "", nil, err
	}
	name, ok := namesByDisc[disc]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown lulo instruction %x", anchor.ErrDiscriminatorMismatch, disc[:])
	}
	return name, payload, nil
}

// InitiateDepositArgs leaves optional fields nil to take the router's
// defaults: all protocols, no end date, default return type.
type InitiateDepositArgs struct {
	Amount           uint64
	AllowedProtocols *string
	EndDate          *int64
	ReturnType       *string
}

type InitiateWithdrawArgs struct {
	Amount      uint64
	WithdrawAll bool
	ReturnType  *string
}

type DepositDriftArgs struct {
	MarketIndex uint16
	Amount      uint64
	ReduceOnly  bool
	ReturnFlag  bool
}

type WithdrawDriftArgs struct {
	MarketIndex uint16
	Amount      uint64
	WithdrawAll bool
	ReturnFlag  bool
}

func (a InitiateDepositArgs) encode() ([]byte, error) {
	return anchor.NewPayload(initiateDepositDisc).
		U64(a.Amount).
		OptionalString(a.AllowedProtocols).
		OptionalI64(a.EndDate).
		OptionalString(a.ReturnType).
		Bytes()
}

func (a InitiateWithdrawArgs) encode() ([]byte, error) {
	return anchor.NewPayload(initiateWithdrawDisc).
		U64(a.Amount).
		Bool(a.WithdrawAll).
		OptionalString(a.ReturnType).
		Bytes()
}

func (a DepositDriftArgs) encode() ([]byte, error) {
	return anchor.NewPayload(depositDriftDisc).
		U16(a.MarketIndex).
		U64(a.Amount).
		Bool(a.ReduceOnly).
		Bool(a.ReturnFlag).
		Bytes()
}

func (a WithdrawDriftArgs) encode() ([]byte, error) {
	return anchor.NewPayload(withdrawDriftDisc).
		U16(a.MarketIndex).
		U64(a.Amount).
		Bool(a.WithdrawAll).
		Bool(a.ReturnFlag).
		Bytes()
}

func DecodeInitiateDepositArgs(payload []byte) (InitiateDepositArgs, error) {
	r := anchor.NewReader(payload)
	out := InitiateDepositArgs{
		Amount:           r.U64(),
		AllowedProtocols: r.OptionalString(),
		EndDate:          r.OptionalI64(),
		ReturnType:       r.OptionalString(),
	}
	if err := r.Finish(); err != nil {
		return InitiateDepositArgs{}, fmt.Errorf("%s: %w", InitiateDepositName, err)
	}
	return out, nil
}

func DecodeInitiateWithdrawArgs(payload []byte) (InitiateWithdrawArgs, error) {
	r := anchor.NewReader(payload)
	out := InitiateWithdrawArgs{
		Amount:      r.U64(),
		WithdrawAll: r.Bool(),
		ReturnType:  r.OptionalString(),
	}
	if err := r.Finish(); err != nil {
		return InitiateWithdrawArgs{}, fmt.Errorf("%s: %w", InitiateWithdrawName, err)
	}
	return out, nil
}

func DecodeDepositDriftArgs(payload []byte) (DepositDriftArgs, error) {
	r := anchor.NewReader(payload)
	out := DepositDriftArgs{
		MarketIndex: r.U16(),
		Amount:      r.U64(),
		ReduceOnly:  r.Bool(),
		ReturnFlag:  r.Bool(),
	}
	if err := r.Finish(); err != nil {
		return DepositDriftArgs{}, fmt.Errorf("%s: %w", DepositDriftName, err)
	}
	return out, nil
}

func DecodeWithdrawDriftArgs(payload []byte) (WithdrawDriftArgs, error) {
	r := anchor.NewReader(payload)
	out := WithdrawDriftArgs{
		MarketIndex: r.U16(),
		Amount:      r.U64(),
		WithdrawAll: r.Bool(),
		ReturnFlag:  r.Bool(),
	}
	if err := r.Finish(); err != nil {
		return WithdrawDriftArgs{}, fmt.Errorf("%s: %w", WithdrawDriftName, err)
	}
	return out, nil
}
