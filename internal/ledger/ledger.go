// Package ledger is an in-process host for instruction processors. It keeps
// accounts keyed by address, runs each transaction atomically against a
// working copy, and mediates cross-program invocations, including signer
// proofs for program-derived addresses.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

const MaxInvokeDepth = 4

var (
	loaderProgramID = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	sysvarOwnerID   = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")
)

type Account struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Data       []byte
	Executable bool
}

func (a *Account) clone() *Account {
	out := *a
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}

func (a *Account) exists() bool {
	return a.Lamports > 0 || len(a.Data) > 0 || a.Executable
}

// Program processes one instruction addressed to it.
type Program interface {
	Process(ctx *Context, data []byte) error
}

type ProgramFunc func(ctx *Context, data []byte) error

func (f ProgramFunc) Process(ctx *Context, data []byte) error {
	return f(ctx, data)
}

type Transaction struct {
	Instructions []solana.Instruction
	// Signers are the addresses whose signatures accompany the transaction.
	Signers []solana.PublicKey
}

type Invocation struct {
	ProgramID solana.PublicKey
	Depth     int
	Data      []byte
}

type Receipt struct {
	Invocations []Invocation
	Logs        []string
}

// InvocationsOf returns the invocations addressed to programID, in order.
func (r *Receipt) InvocationsOf(programID solana.PublicKey) []Invocation {
	var out []Invocation
	for _, inv := range r.Invocations {
		if inv.ProgramID.Equals(programID) {
			out = append(out, inv)
		}
	}
	return out
}

type Ledger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
	programs map[solana.PublicKey]Program
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Ledger{
		accounts: make(map[solana.PublicKey]*Account),
		programs: make(map[solana.PublicKey]Program),
		logger:   logger,
	}
	l.RegisterProgram(solana.SystemProgramID, ProgramFunc(processSystem))
	l.accounts[solana.SysVarRentPubkey] = &Account{
		Lamports: 1,
		Owner:    sysvarOwnerID,
		Data:     encodeRentSysvar(),
	}
	return l
}

// RegisterProgram installs an executable account at id backed by p.
func (l *Ledger) RegisterProgram(id solana.PublicKey, p Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[id] = p
	l.accounts[id] = &Account{Lamports: 1, Owner: loaderProgramID, Executable: true}
}

// SetAccount overwrites an account outside of any transaction (genesis state).
func (l *Ledger) SetAccount(key solana.PublicKey, account Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[key] = account.clone()
}

func (l *Ledger) Airdrop(key solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[key]
	if !ok {
		acc = &Account{Owner: solana.SystemProgramID}
		l.accounts[key] = acc
	}
	acc.Lamports += lamports
}

// GetAccount returns a copy of the committed state of key.
func (l *Ledger) GetAccount(key solana.PublicKey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[key]
	if !ok {
		return Account{}, false
	}
	return *acc.clone(), true
}

// Execute runs tx atomically: either every instruction succeeds and the
// working set is committed, or nothing changes.
func (l *Ledger) Execute(tx Transaction) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	signers := make(map[solana.PublicKey]struct{}, len(tx.Signers))
	for _, key := range tx.Signers {
		signers[key] = struct{}{}
	}

	t := &txn{
		ledger:  l,
		working: make(map[solana.PublicKey]*Account),
		receipt: &Receipt{},
	}
	for idx, ix := range tx.Instructions {
		if err := t.executeTopLevel(ix, signers); err != nil {
			l.logger.Debug("transaction rolled back", "instruction", idx, "err", err)
			return t.receipt, fmt.Errorf("instruction %d: %w", idx, err)
		}
	}
	t.commit()
	return t.receipt, nil
}

type txn struct {
	ledger  *Ledger
	working map[solana.PublicKey]*Account
	receipt *Receipt
}

func (t *txn) load(key solana.PublicKey) *Account {
	if acc, ok := t.working[key]; ok {
		return acc
	}
	var acc *Account
	if committed, ok := t.ledger.accounts[key]; ok {
		acc = committed.clone()
	} else {
		acc = &Account{Owner: solana.SystemProgramID}
	}
	t.working[key] = acc
	return acc
}

func (t *txn) commit() {
	for key, acc := range t.working {
		if acc.exists() {
			t.ledger.accounts[key] = acc
			continue
		}
		delete(t.ledger.accounts, key)
	}
}

func (t *txn) executeTopLevel(ix solana.Instruction, signers map[solana.PublicKey]struct{}) error {
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("encode instruction for %s: %w", ix.ProgramID(), err)
	}

	metas := ix.Accounts()
	infos := make([]*AccountInfo, 0, len(metas))
	for _, meta := range metas {
		if meta.IsSigner {
			if _, ok := signers[meta.PublicKey]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingSignature, meta.PublicKey)
			}
		}
		infos = append(infos, &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			account:    t.load(meta.PublicKey),
		})
	}
	return t.process(ix.ProgramID(), infos, data, 1)
}

func (t *txn) process(programID solana.PublicKey, infos []*AccountInfo, data []byte, depth int) error {
	program, ok := t.ledger.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}

	t.receipt.Invocations = append(t.receipt.Invocations, Invocation{
		ProgramID: programID,
		Depth:     depth,
		Data:      append([]byte(nil), data...),
	})
	ctx := &Context{
		txn:       t,
		programID: programID,
		accounts:  infos,
		depth:     depth,
	}
	ctx.Log("invoke", "depth", depth)
	if err := program.Process(ctx, data); err != nil {
		ctx.Log("failed", "err", err)
		return err
	}
	ctx.Log("success")
	return nil
}
