package client

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/lulo"
	"github.com/coldbell/vault/backend/internal/vault"
)

func testPrograms() config.ProgramsConfig {
	return config.ProgramsConfig{
		VaultProgramID:     vault.ProgramID,
		LuloProgramID:      lulo.ProgramID,
		PromotionReserveID: lulo.PromotionReserveID,
		DriftProgramID:     lulo.DriftProgramID,
		DriftSignerID:      lulo.DriftSignerID,
	}
}

func testPlan() Plan {
	return Plan{
		Programs:         testPrograms(),
		Owner:            solana.NewWallet().PublicKey(),
		Mint:             solana.SolMint,
		MarketIndex:      1,
		Markets:          config.DefaultDriftMarkets(),
		ComputeUnitLimit: 1_000_000,
	}
}

func keys(metas []*solana.AccountMeta) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(metas))
	for _, meta := range metas {
		out = append(out, meta.PublicKey)
	}
	return out
}

func TestPlanPrependsComputeBudget(t *testing.T) {
	plan := testPlan()

	ixs, err := plan.Init()
	require.NoError(t, err)
	require.Len(t, ixs, 2)
	assert.Equal(t, computebudget.ProgramID, ixs[0].ProgramID())
	assert.Equal(t, vault.ProgramID, ixs[1].ProgramID())

	plan.ComputeUnitPrice = 5_000
	ixs, err = plan.Init()
	require.NoError(t, err)
	assert.Len(t, ixs, 3)

	plan.ComputeUnitLimit = 0
	plan.ComputeUnitPrice = 0
	ixs, err = plan.Init()
	require.NoError(t, err)
	assert.Len(t, ixs, 1)
}

func TestPlanInitWithFeePayer(t *testing.T) {
	plan := testPlan()
	payer := solana.NewWallet().PublicKey()
	plan.FeePayer = &payer

	ixs, err := plan.Init()
	require.NoError(t, err)
	metas := ixs[len(ixs)-1].Accounts()
	require.Len(t, metas, 5)
	assert.Equal(t, payer, metas[1].PublicKey)
	assert.True(t, metas[1].IsSigner)

	addrs, err := plan.Addresses()
	require.NoError(t, err)
	assert.Equal(t, addrs.Vault, metas[3].PublicKey)
}

func TestPlanDepositAndWithdrawAccounts(t *testing.T) {
	plan := testPlan()
	payer := solana.NewWallet().PublicKey()
	plan.FeePayer = &payer
	ownerToken := solana.NewWallet().PublicKey()

	deposit, err := plan.Deposit(10, ownerToken)
	require.NoError(t, err)
	assert.Len(t, deposit[len(deposit)-1].Accounts(), 9)

	withdraw, err := plan.Withdraw(10, ownerToken)
	require.NoError(t, err)
	metas := withdraw[len(withdraw)-1].Accounts()
	require.Len(t, metas, 8)
	assert.Equal(t, ownerToken, metas[3].PublicKey)
}

func TestPlanLuloDepositRentFollowsFeePayerMode(t *testing.T) {
	plan := testPlan()
	ixs, err := plan.LuloDeposit(vault.RouteDepositArgs{Amount: 10})
	require.NoError(t, err)
	metas := ixs[len(ixs)-1].Accounts()
	require.Len(t, metas, 12)
	assert.Equal(t, solana.SysVarRentPubkey, metas[11].PublicKey)

	payer := solana.NewWallet().PublicKey()
	plan.FeePayer = &payer
	ixs, err = plan.LuloDeposit(vault.RouteDepositArgs{Amount: 10})
	require.NoError(t, err)
	metas = ixs[len(ixs)-1].Accounts()
	require.Len(t, metas, 11)
	assert.NotContains(t, keys(metas), solana.SysVarRentPubkey)
}

func TestPlanDriftDeposit(t *testing.T) {
	plan := testPlan()

	ixs, err := plan.DriftDeposit(500)
	require.NoError(t, err)
	metas := ixs[len(ixs)-1].Accounts()
	require.Len(t, metas, 12+7)

	market := config.DefaultDriftMarkets()[1]
	assert.Equal(t, market.SpotMarket, metas[16].PublicKey)
	assert.Equal(t, market.Oracle, metas[17].PublicKey)
	assert.Equal(t, lulo.DriftProgramID, metas[18].PublicKey)
}

func TestPlanDriftWithdrawListsEveryMarket(t *testing.T) {
	plan := testPlan()

	ixs, err := plan.DriftWithdraw(500)
	require.NoError(t, err)
	metas := ixs[len(ixs)-1].Accounts()
	require.Len(t, metas, 11+vault.DriftWithdrawFixedAccounts+4)

	markets := config.DefaultDriftMarkets()
	assert.Equal(t, []solana.PublicKey{
		markets[0].Oracle, markets[1].Oracle,
		markets[0].SpotMarket, markets[1].SpotMarket,
	}, keys(metas[11+vault.DriftWithdrawFixedAccounts:]))
	assert.Equal(t, lulo.DriftSignerID, metas[11+3].PublicKey)

	routed, err := vault.Route(metas[11:], vault.DriftWithdrawFixedAccounts, vault.MarketCount(plan.MarketIndex))
	require.NoError(t, err)
	assert.Len(t, routed, 4)
}

func TestPlanDriftRequiresConfiguredMarkets(t *testing.T) {
	plan := testPlan()
	plan.MarketIndex = 2

	_, err := plan.DriftDeposit(1)
	require.Error(t, err)
	_, err = plan.DriftWithdraw(1)
	require.Error(t, err)

	plan.Markets = map[uint16]config.DriftMarketConfig{1: config.DefaultDriftMarkets()[1]}
	plan.MarketIndex = 1
	_, err = plan.DriftWithdraw(1)
	require.Error(t, err)
}
