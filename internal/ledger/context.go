package ledger

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// AccountInfo is an account as passed to one invocation, with the privileges
// that invocation was granted.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	account    *Account
}

func (a *AccountInfo) Owner() solana.PublicKey {
	return a.account.Owner
}

func (a *AccountInfo) Lamports() uint64 {
	return a.account.Lamports
}

// Data is the live account data; callers must not modify it.
func (a *AccountInfo) Data() []byte {
	return a.account.Data
}

func (a *AccountInfo) DataIsEmpty() bool {
	return len(a.account.Data) == 0
}

func (a *AccountInfo) Executable() bool {
	return a.account.Executable
}

// Context is the view one program invocation has of the transaction.
type Context struct {
	txn       *txn
	programID solana.PublicKey
	accounts  []*AccountInfo
	depth     int
}

func (c *Context) ProgramID() solana.PublicKey {
	return c.programID
}

func (c *Context) Accounts() []*AccountInfo {
	return c.accounts
}

// RequireAccounts fails unless at least n accounts were passed.
func (c *Context) RequireAccounts(n int) error {
	if len(c.accounts) < n {
		return fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccounts, n, len(c.accounts))
	}
	return nil
}

func (c *Context) Depth() int {
	return c.depth
}

// Log records a program log line on the receipt and the host logger.
func (c *Context) Log(msg string, args ...any) {
	line := fmt.Sprintf("Program %s %s", c.programID, msg)
	if len(args) > 0 {
		parts := make([]string, 0, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
		}
		line += " " + strings.Join(parts, " ")
	}
	c.txn.receipt.Logs = append(c.txn.receipt.Logs, line)
	c.txn.ledger.logger.Debug(msg, append([]any{"program", c.programID, "depth", c.depth}, args...)...)
}

// SetData replaces the data of an account owned by the running program.
func (c *Context) SetData(info *AccountInfo, data []byte) error {
	if !info.IsWritable {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, info.Key)
	}
	if !info.account.Owner.Equals(c.programID) {
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, info.Key, info.account.Owner)
	}
	if len(data) != len(info.account.Data) {
		return fmt.Errorf("%w: %s has %d bytes allocated, got %d", ErrAccountDataSize, info.Key, len(info.account.Data), len(data))
	}
	copy(info.account.Data, data)
	return nil
}

// Invoke dispatches ix to its program. Every account ix names must have been
// passed to the caller; writable or signer privileges may only be extended
// when the caller holds them, or, for signers, when one of signerSeeds
// derives the account under the caller's program ID.
func (c *Context) Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if c.depth >= MaxInvokeDepth {
		return fmt.Errorf("%w: %d", ErrCallDepth, c.depth+1)
	}
	programID := ix.ProgramID()
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("encode instruction for %s: %w", programID, err)
	}

	derived := make(map[solana.PublicKey]struct{}, len(signerSeeds))
	for _, seeds := range signerSeeds {
		address, err := solana.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
		}
		derived[address] = struct{}{}
	}

	caller := make(map[solana.PublicKey]*AccountInfo, len(c.accounts))
	for _, info := range c.accounts {
		existing, ok := caller[info.Key]
		if !ok {
			caller[info.Key] = &AccountInfo{Key: info.Key, IsSigner: info.IsSigner, IsWritable: info.IsWritable, account: info.account}
			continue
		}
		existing.IsSigner = existing.IsSigner || info.IsSigner
		existing.IsWritable = existing.IsWritable || info.IsWritable
	}
	if _, ok := caller[programID]; !ok {
		return fmt.Errorf("%w: program %s", ErrMissingAccount, programID)
	}

	metas := ix.Accounts()
	infos := make([]*AccountInfo, 0, len(metas))
	for _, meta := range metas {
		held, ok := caller[meta.PublicKey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.PublicKey)
		}
		if meta.IsWritable && !held.IsWritable {
			return fmt.Errorf("%w: %s writable", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsSigner && !held.IsSigner {
			if _, ok := derived[meta.PublicKey]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingSignature, meta.PublicKey)
			}
		}
		infos = append(infos, &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			account:    held.account,
		})
	}

	return c.txn.process(programID, infos, data, c.depth+1)
}
