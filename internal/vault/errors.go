package vault

import (
	"errors"
	"fmt"
)

// ErrorCode is the custom program error number a failed vault instruction
// reports to the runtime.
type ErrorCode uint32

const errorCodeOffset = 6000

const (
	CodeAuthorizationMismatch ErrorCode = errorCodeOffset + iota
	CodeInsufficientBalance
	CodeDuplicateInitialization
	CodeMissingAuxiliaryAccount
	CodeDownstreamFailure
	CodeInvalidMint
	CodeMissingSignature
	CodeInvalidInstruction
	CodeFeatureDisabled
)

type ProgramError struct {
	Code ErrorCode
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var (
	ErrAuthorizationMismatch   = &ProgramError{CodeAuthorizationMismatch, "AuthorizationMismatch", "vault address does not match its derivation"}
	ErrInsufficientBalance     = &ProgramError{CodeInsufficientBalance, "InsufficientBalance", "source balance below requested amount"}
	ErrDuplicateInitialization = &ProgramError{CodeDuplicateInitialization, "DuplicateInitialization", "vault already exists for owner and mint"}
	ErrMissingAuxiliaryAccount = &ProgramError{CodeMissingAuxiliaryAccount, "MissingAuxiliaryAccount", "remaining accounts shorter than required"}
	ErrDownstreamFailure       = &ProgramError{CodeDownstreamFailure, "DownstreamFailure", "downstream program call failed"}
	ErrInvalidMint             = &ProgramError{CodeInvalidMint, "InvalidMint", "mint missing or does not match"}
	ErrMissingSignature        = &ProgramError{CodeMissingSignature, "MissingSignature", "required signer did not sign"}
	ErrInvalidInstruction      = &ProgramError{CodeInvalidInstruction, "InvalidInstruction", "instruction data or accounts malformed"}
	ErrFeatureDisabled         = &ProgramError{CodeFeatureDisabled, "FeatureDisabled", "instruction disabled for this deployment"}
)

var errorsByCode = map[ErrorCode]*ProgramError{}

func init() {
	for _, e := range []*ProgramError{
		ErrAuthorizationMismatch,
		ErrInsufficientBalance,
		ErrDuplicateInitialization,
		ErrMissingAuxiliaryAccount,
		ErrDownstreamFailure,
		ErrInvalidMint,
		ErrMissingSignature,
		ErrInvalidInstruction,
		ErrFeatureDisabled,
	} {
		errorsByCode[e.Code] = e
	}
}

// ErrorFromCode maps a custom program error number back to its sentinel.
func ErrorFromCode(code uint32) (*ProgramError, bool) {
	e, ok := errorsByCode[ErrorCode(code)]
	return e, ok
}

// CodeOf finds the vault error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var perr *ProgramError
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	return 0, false
}
