// Package lulotest runs a minimal Lulo router and Drift program on the
// in-process ledger so vault flows can be exercised end to end.
package lulotest

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/coldbell/vault/backend/internal/ledger"
	"github.com/coldbell/vault/backend/internal/lulo"
	"github.com/coldbell/vault/backend/internal/pda"
	"github.com/coldbell/vault/backend/internal/token"
)

// DriftUserSize is the data size the fake Drift program gives a new user.
const DriftUserSize = 64

const driftInitUser byte = 0

// Call is one router instruction the fake observed.
type Call struct {
	Name     string
	Accounts []solana.PublicKey
	Signers  []solana.PublicKey
	Args     any
}

// Router records every call and moves tokens for initiate_deposit and
// initiate_withdraw. Set FailOn to make a named instruction fail.
type Router struct {
	ProgramID      solana.PublicKey
	DriftProgramID solana.PublicKey
	FailOn         map[string]error
	Calls          []Call
}

// Register installs the fake router at lulo.ProgramID and the fake Drift
// program at lulo.DriftProgramID.
func Register(l *ledger.Ledger) *Router {
	r := &Router{
		ProgramID:      lulo.ProgramID,
		DriftProgramID: lulo.DriftProgramID,
		FailOn:         map[string]error{},
	}
	l.RegisterProgram(r.ProgramID, ledger.ProgramFunc(r.process))
	l.RegisterProgram(r.DriftProgramID, ledger.ProgramFunc(processDrift))
	return r
}

// CallsNamed returns the recorded calls of one instruction, in order.
func (r *Router) CallsNamed(name string) []Call {
	var out []Call
	for _, c := range r.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (r *Router) process(ctx *ledger.Context, data []byte) error {
	name, payload, err := lulo.Identify(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidInstruction, err)
	}
	call := Call{Name: name}
	for _, info := range ctx.Accounts() {
		call.Accounts = append(call.Accounts, info.Key)
		if info.IsSigner {
			call.Signers = append(call.Signers, info.Key)
		}
	}

	switch name {
	case lulo.InitiateDepositName:
		args, err := lulo.DecodeInitiateDepositArgs(payload)
		if err != nil {
			return err
		}
		call.Args = args
	case lulo.InitiateWithdrawName:
		args, err := lulo.DecodeInitiateWithdrawArgs(payload)
		if err != nil {
			return err
		}
		call.Args = args
	case lulo.DepositDriftName:
		args, err := lulo.DecodeDepositDriftArgs(payload)
		if err != nil {
			return err
		}
		call.Args = args
	case lulo.WithdrawDriftName:
		args, err := lulo.DecodeWithdrawDriftArgs(payload)
		if err != nil {
			return err
		}
		call.Args = args
	}
	r.Calls = append(r.Calls, call)

	if err, ok := r.FailOn[name]; ok {
		return err
	}

	switch args := call.Args.(type) {
	case lulo.InitiateDepositArgs:
		return r.initiateDeposit(ctx, args)
	case lulo.InitiateWithdrawArgs:
		return r.initiateWithdraw(ctx, args)
	}
	if name == lulo.InitDriftUserAccountName {
		return r.initDriftUser(ctx)
	}
	return nil
}

// Account positions within lulo.InitiateAccounts.
const (
	initiateOwner = iota
	initiateFeePayer
	initiateOwnerToken
	initiateUser
	initiateFlexToken
	initiateMint
)

func (r *Router) initiateDeposit(ctx *ledger.Context, args lulo.InitiateDepositArgs) error {
	if err := ctx.RequireAccounts(lulo.InitiateAccountCount); err != nil {
		return err
	}
	accs := ctx.Accounts()
	owner := accs[initiateOwner]
	if !owner.IsSigner {
		return fmt.Errorf("%w: %s", ledger.ErrMissingSignature, owner.Key)
	}
	flexToken := accs[initiateFlexToken]
	if flexToken.DataIsEmpty() {
		create, err := token.NewCreateIdempotentInstruction(accs[initiateFeePayer].Key, accs[initiateUser].Key, accs[initiateMint].Key)
		if err != nil {
			return err
		}
		if err := ctx.Invoke(create); err != nil {
			return err
		}
	}
	move, err := token.NewTransferInstruction(args.Amount, accs[initiateOwnerToken].Key, flexToken.Key, owner.Key)
	if err != nil {
		return err
	}
	return ctx.Invoke(move)
}

func (r *Router) initiateWithdraw(ctx *ledger.Context, args lulo.InitiateWithdrawArgs) error {
	if err := ctx.RequireAccounts(lulo.InitiateAccountCount); err != nil {
		return err
	}
	accs := ctx.Accounts()
	owner := accs[initiateOwner]
	if !owner.IsSigner {
		return fmt.Errorf("%w: %s", ledger.ErrMissingSignature, owner.Key)
	}
	userAccount, bump, err := pda.DeriveLuloUserAccount(ctx.ProgramID(), owner.Key)
	if err != nil {
		return err
	}
	if !userAccount.Equals(accs[initiateUser].Key) {
		return fmt.Errorf("%w: user account for %s is %s", ledger.ErrInvalidSeeds, owner.Key, userAccount)
	}
	flexToken := accs[initiateFlexToken]
	position, err := token.ReadAccount(flexToken)
	if err != nil {
		return err
	}
	amount := args.Amount
	if args.WithdrawAll {
		amount = position.Amount
	}
	move, err := token.NewTransferInstruction(amount, flexToken.Key, accs[initiateOwnerToken].Key, userAccount)
	if err != nil {
		return err
	}
	return ctx.Invoke(move, [][]byte{[]byte("flexlend"), owner.Key.Bytes(), {bump}})
}

// Account positions within lulo.InitDriftUserAccounts.
const (
	initDriftSigner = iota
	_
	initDriftUser
	initDriftUserStats
	_
	initDriftUserAccount
	_
	initDriftFeePayer
	_
	_
	initDriftSystem
)

func (r *Router) initDriftUser(ctx *ledger.Context) error {
	if err := ctx.RequireAccounts(lulo.InitDriftUserAccountCount); err != nil {
		return err
	}
	accs := ctx.Accounts()
	if !accs[initDriftSigner].IsSigner {
		return fmt.Errorf("%w: %s", ledger.ErrMissingSignature, accs[initDriftSigner].Key)
	}
	if !accs[initDriftUser].DataIsEmpty() {
		return fmt.Errorf("%w: drift user %s", ledger.ErrAccountInUse, accs[initDriftUser].Key)
	}
	ix := solana.NewInstruction(r.DriftProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(accs[initDriftUser].Key, true, false),
		solana.NewAccountMeta(accs[initDriftUserAccount].Key, false, false),
		solana.NewAccountMeta(accs[initDriftFeePayer].Key, true, true),
		solana.NewAccountMeta(accs[initDriftSystem].Key, false, false),
	}, []byte{driftInitUser})
	return ctx.Invoke(ix)
}

// processDrift allocates the sub-account 0 user of an authority.
func processDrift(ctx *ledger.Context, data []byte) error {
	if len(data) != 1 || data[0] != driftInitUser {
		return fmt.Errorf("%w: unsupported drift instruction", ledger.ErrInvalidInstruction)
	}
	if err := ctx.RequireAccounts(4); err != nil {
		return err
	}
	accs := ctx.Accounts()
	user, authority, payer := accs[0], accs[1], accs[2]

	address, bump, err := pda.DeriveDriftUser(ctx.ProgramID(), authority.Key, 0)
	if err != nil {
		return err
	}
	if !address.Equals(user.Key) {
		return fmt.Errorf("%w: drift user for %s is %s", ledger.ErrInvalidSeeds, authority.Key, address)
	}
	create, err := system.NewCreateAccountInstruction(
		ledger.MinimumBalance(DriftUserSize),
		DriftUserSize,
		ctx.ProgramID(),
		payer.Key,
		user.Key,
	).ValidateAndBuild()
	if err != nil {
		return err
	}
	return ctx.Invoke(create, [][]byte{[]byte("user"), authority.Key.Bytes(), {0, 0}, {bump}})
}
