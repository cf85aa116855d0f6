package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/coldbell/vault/backend/internal/vault"
)

// TransactionError is a transaction rejected with a custom program error.
// Err is the vault error the code maps to, nil for codes outside the vault
// range.
type TransactionError struct {
	Instruction int
	Code        uint32
	Err         *vault.ProgramError
	cause       error
}

func (e *TransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instruction %d failed: %s", e.Instruction, e.Err)
	}
	return fmt.Sprintf("instruction %d failed: custom program error %d", e.Instruction, e.Code)
}

func (e *TransactionError) Unwrap() []error {
	var out []error
	if e.Err != nil {
		out = append(out, e.Err)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// statusError converts the err field of a signature status.
func statusError(raw any) error {
	if txErr, ok := parseInstructionError(raw); ok {
		return txErr
	}
	return fmt.Errorf("transaction failed: %v", raw)
}

// mapProgramError recognizes a preflight simulation failure that carries a
// custom program error and keeps any other error as is.
func mapProgramError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	data, ok := rpcErr.Data.(map[string]any)
	if !ok {
		return err
	}
	txErr, ok := parseInstructionError(data["err"])
	if !ok {
		return err
	}
	txErr.cause = err
	return txErr
}

// parseInstructionError reads {"InstructionError": [index, {"Custom": code}]}.
func parseInstructionError(raw any) (*TransactionError, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	pair, ok := m["InstructionError"].([]any)
	if !ok || len(pair) != 2 {
		return nil, false
	}
	index, ok := asUint(pair[0])
	if !ok {
		return nil, false
	}
	detail, ok := pair[1].(map[string]any)
	if !ok {
		return nil, false
	}
	code, ok := asUint(detail["Custom"])
	if !ok || code > uint64(^uint32(0)) {
		return nil, false
	}
	out := &TransactionError{Instruction: int(index), Code: uint32(code)}
	if perr, found := vault.ErrorFromCode(out.Code); found {
		out.Err = perr
	}
	return out, true
}

func asUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, false
		}
		return uint64(n), true
	case json.Number:
		parsed, err := n.Int64()
		if err != nil || parsed < 0 {
			return 0, false
		}
		return uint64(parsed), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	default:
		return 0, false
	}
}
