package vault

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/ledger"
)

type initAccounts struct {
	owner  *ledger.AccountInfo
	payer  *ledger.AccountInfo
	mint   *ledger.AccountInfo
	vault  *ledger.AccountInfo
	system *ledger.AccountInfo
}

type escrowAccounts struct {
	owner        *ledger.AccountInfo
	payer        *ledger.AccountInfo
	vault        *ledger.AccountInfo
	mint         *ledger.AccountInfo
	ownerToken   *ledger.AccountInfo
	vaultToken   *ledger.AccountInfo
	system       *ledger.AccountInfo
	tokenProgram *ledger.AccountInfo
	associated   *ledger.AccountInfo
}

type bridgeAccounts struct {
	owner            *ledger.AccountInfo
	vault            *ledger.AccountInfo
	vaultToken       *ledger.AccountInfo
	mint             *ledger.AccountInfo
	userAccount      *ledger.AccountInfo
	userTokenAccount *ledger.AccountInfo
	promotionReserve *ledger.AccountInfo
	luloProgram      *ledger.AccountInfo
	tokenProgram     *ledger.AccountInfo
	system           *ledger.AccountInfo
	associated       *ledger.AccountInfo
	rent             *ledger.AccountInfo
	remaining        []*ledger.AccountInfo
}

// accountCursor hands out accounts in instruction order.
type accountCursor struct {
	accounts []*ledger.AccountInfo
	next     int
	err      error
}

func newCursor(ctx *ledger.Context) *accountCursor {
	return &accountCursor{accounts: ctx.Accounts()}
}

func (c *accountCursor) take(role string) *ledger.AccountInfo {
	if c.err != nil {
		return nil
	}
	if c.next >= len(c.accounts) {
		c.err = fmt.Errorf("%w: missing %s account (have %d)", ErrInvalidInstruction, role, len(c.accounts))
		return nil
	}
	info := c.accounts[c.next]
	c.next++
	return info
}

// program takes the next account and requires it to be id.
func (c *accountCursor) program(role string, id solana.PublicKey) *ledger.AccountInfo {
	info := c.take(role)
	if c.err == nil && !info.Key.Equals(id) {
		c.err = fmt.Errorf("%w: %s account is %s, want %s", ErrInvalidInstruction, role, info.Key, id)
	}
	return info
}

func (c *accountCursor) rest() []*ledger.AccountInfo {
	if c.err != nil {
		return nil
	}
	return c.accounts[c.next:]
}

func (p *Program) parseInit(ctx *ledger.Context) (*initAccounts, error) {
	c := newCursor(ctx)
	out := &initAccounts{owner: c.take("owner")}
	out.payer = out.owner
	if p.opts.SeparateFeePayer {
		out.payer = c.take("fee payer")
	}
	out.mint = c.take("mint")
	out.vault = c.take("vault")
	out.system = c.program("system program", solana.SystemProgramID)
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

func (p *Program) parseEscrow(ctx *ledger.Context, withFeePayer bool) (*escrowAccounts, error) {
	c := newCursor(ctx)
	out := &escrowAccounts{owner: c.take("owner")}
	out.payer = out.owner
	if withFeePayer {
		out.payer = c.take("fee payer")
	}
	out.vault = c.take("vault")
	out.mint = c.take("mint")
	out.ownerToken = c.take("owner token")
	out.vaultToken = c.take("vault token")
	out.system = c.program("system program", solana.SystemProgramID)
	out.tokenProgram = c.program("token program", solana.TokenProgramID)
	out.associated = c.program("associated token program", solana.SPLAssociatedTokenAccountProgramID)
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

func (p *Program) parseBridge(ctx *ledger.Context, withRent bool) (*bridgeAccounts, error) {
	c := newCursor(ctx)
	out := &bridgeAccounts{
		owner:            c.take("owner"),
		vault:            c.take("vault"),
		vaultToken:       c.take("vault token"),
		mint:             c.take("mint"),
		userAccount:      c.take("lulo user"),
		userTokenAccount: c.take("lulo user token"),
		promotionReserve: c.take("promotion reserve"),
		luloProgram:      c.program("lulo program", p.opts.LuloProgramID),
		tokenProgram:     c.program("token program", solana.TokenProgramID),
		system:           c.program("system program", solana.SystemProgramID),
		associated:       c.program("associated token program", solana.SPLAssociatedTokenAccountProgramID),
	}
	if withRent {
		out.rent = c.program("rent sysvar", solana.SysVarRentPubkey)
	}
	out.remaining = c.rest()
	if c.err != nil {
		return nil, c.err
	}
	return out, nil
}

func requireSigner(role string, info *ledger.AccountInfo) error {
	if !info.IsSigner {
		return fmt.Errorf("%w: %s %s", ErrMissingSignature, role, info.Key)
	}
	return nil
}

// remainingMetas forwards caller accounts with the privileges the caller
// granted, never as signers.
func remainingMetas(infos []*ledger.AccountInfo) []*solana.AccountMeta {
	out := make([]*solana.AccountMeta, 0, len(infos))
	for _, info := range infos {
		out = append(out, solana.NewAccountMeta(info.Key, info.IsWritable, false))
	}
	return out
}
