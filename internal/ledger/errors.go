package ledger

import "errors"

var (
	ErrUnknownProgram       = errors.New("unknown program")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrMissingAccount       = errors.New("account not passed to caller")
	ErrNotEnoughAccounts    = errors.New("not enough account keys")
	ErrPrivilegeEscalation  = errors.New("cross-program invocation privilege escalation")
	ErrReadonlyAccount      = errors.New("write to readonly account")
	ErrIllegalOwner         = errors.New("account not owned by program")
	ErrAccountDataSize      = errors.New("account data size mismatch")
	ErrAccountInUse         = errors.New("account already in use")
	ErrInsufficientLamports = errors.New("insufficient lamports")
	ErrCallDepth            = errors.New("cross-program invocation call depth too deep")
	ErrInvalidSeeds         = errors.New("invalid signer seeds")
	ErrInvalidInstruction   = errors.New("invalid instruction data")
)
