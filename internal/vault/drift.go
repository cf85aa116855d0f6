package vault

import (
	"fmt"

	"github.com/coldbell/vault/backend/internal/ledger"
	"github.com/coldbell/vault/backend/internal/lulo"
)

const driftDepositFixedAccounts = 7

type driftDepositAccounts struct {
	user            *ledger.AccountInfo
	userStats       *ledger.AccountInfo
	state           *ledger.AccountInfo
	spotMarketVault *ledger.AccountInfo
	spotMarket      *ledger.AccountInfo
	oracle          *ledger.AccountInfo
	program         *ledger.AccountInfo
}

func (p *Program) depositDrift(ctx *ledger.Context, amount uint64) error {
	s, err := p.openBridge(ctx, true)
	if err != nil {
		return err
	}
	rem := s.accs.remaining
	if len(rem) < driftDepositFixedAccounts {
		return fmt.Errorf("%w: need %d remaining accounts, got %d", ErrMissingAuxiliaryAccount, driftDepositFixedAccounts, len(rem))
	}
	drift := driftDepositAccounts{
		user:            rem[0],
		userStats:       rem[1],
		state:           rem[2],
		spotMarketVault: rem[3],
		spotMarket:      rem[4],
		oracle:          rem[5],
		program:         rem[6],
	}
	if err := s.requireEscrow(amount); err != nil {
		return err
	}

	if err := p.bootstrapSubAccount(ctx, s, drift); err != nil {
		return err
	}

	a := s.accs
	ix, err := lulo.NewDepositDriftInstruction(p.opts.LuloProgramID, lulo.DepositDriftArgs{
		MarketIndex: p.opts.MarketIndex,
		Amount:      amount,
	}, lulo.DepositDriftAccounts{
		Signer:               a.vault.Key,
		Owner:                a.vault.Key,
		DriftUser:            drift.user.Key,
		DriftUserStats:       drift.userStats.Key,
		DriftState:           drift.state.Key,
		SpotMarketVault:      drift.spotMarketVault.Key,
		UserAccount:          a.userAccount.Key,
		FlexUserTokenAccount: a.userTokenAccount.Key,
		Mint:                 a.mint.Key,
		SpotMarket:           drift.spotMarket.Key,
		Oracle:               drift.oracle.Key,
		FeePayer:             a.owner.Key,
		DriftProgram:         drift.program.Key,
		TokenProgram:         a.tokenProgram.Key,
		SystemProgram:        a.system.Key,
	})
	if err != nil {
		return err
	}
	if err := s.invoke(ctx, lulo.DepositDriftName, ix); err != nil {
		return err
	}
	ctx.Log("drift deposit", "vault", a.vault.Key, "market", p.opts.MarketIndex, "amount", amount)
	return nil
}

// bootstrapSubAccount initializes the downstream drift user when its data is
// empty and does nothing otherwise, so retries never initialize twice.
func (p *Program) bootstrapSubAccount(ctx *ledger.Context, s *bridgeSession, drift driftDepositAccounts) error {
	if !drift.user.DataIsEmpty() {
		return nil
	}
	a := s.accs
	ix := lulo.NewInitDriftUserAccountInstruction(p.opts.LuloProgramID, lulo.InitDriftUserAccounts{
		Signer:           a.vault.Key,
		Owner:            a.vault.Key,
		DriftUser:        drift.user.Key,
		DriftUserStats:   drift.userStats.Key,
		DriftState:       drift.state.Key,
		UserAccount:      a.userAccount.Key,
		PromotionReserve: a.promotionReserve.Key,
		FeePayer:         a.owner.Key,
		DriftProgram:     drift.program.Key,
		Rent:             a.rent.Key,
		SystemProgram:    a.system.Key,
	})
	if err := s.invoke(ctx, lulo.InitDriftUserAccountName, ix); err != nil {
		return err
	}
	ctx.Log("drift user initialized", "vault", a.vault.Key, "drift_user", drift.user.Key)
	return nil
}

func (p *Program) withdrawDrift(ctx *ledger.Context, amount uint64) error {
	s, err := p.openBridge(ctx, false)
	if err != nil {
		return err
	}
	rem := s.accs.remaining
	routed, err := Route(rem, DriftWithdrawFixedAccounts, MarketCount(p.opts.MarketIndex))
	if err != nil {
		return err
	}
	user, userStats, state, driftSigner, spotMarketVault, program := rem[0], rem[1], rem[2], rem[3], rem[4], rem[5]

	a := s.accs
	ix, err := lulo.NewWithdrawDriftInstruction(p.opts.LuloProgramID, lulo.WithdrawDriftArgs{
		MarketIndex: p.opts.MarketIndex,
		Amount:      amount,
		WithdrawAll: true,
	}, lulo.WithdrawDriftAccounts{
		Signer:                 a.vault.Key,
		Owner:                  a.vault.Key,
		DriftUser:              user.Key,
		DriftUserStats:         userStats.Key,
		DriftState:             state.Key,
		DriftSigner:            driftSigner.Key,
		SpotMarketVault:        spotMarketVault.Key,
		UserAccount:            a.userAccount.Key,
		FlexUserTokenAccount:   a.userTokenAccount.Key,
		Mint:                   a.mint.Key,
		FeePayer:               a.owner.Key,
		DriftProgram:           program.Key,
		TokenProgram:           a.tokenProgram.Key,
		AssociatedTokenProgram: a.associated.Key,
		SystemProgram:          a.system.Key,
		Remaining:              remainingMetas(routed),
	})
	if err != nil {
		return err
	}
	if err := s.invoke(ctx, lulo.WithdrawDriftName, ix); err != nil {
		return err
	}
	ctx.Log("drift withdraw", "vault", a.vault.Key, "market", p.opts.MarketIndex, "amount", amount, "routed", len(routed))
	return nil
}
