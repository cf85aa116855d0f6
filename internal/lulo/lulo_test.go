package lulo

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateDepositForwardsOptionalArgs(t *testing.T) {
	protocols := "drift,kamino"
	endDate := int64(1_900_000_000)

	ix, err := NewInitiateDepositInstruction(ProgramID, InitiateDepositArgs{
		Amount:           500,
		AllowedProtocols: &protocols,
		EndDate:          &endDate,
	}, InitiateAccounts{})
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	name, payload, err := Identify(data)
	require.NoError(t, err)
	assert.Equal(t, InitiateDepositName, name)

	args, err := DecodeInitiateDepositArgs(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), args.Amount)
	require.NotNil(t, args.AllowedProtocols)
	assert.Equal(t, protocols, *args.AllowedProtocols)
	require.NotNil(t, args.EndDate)
	assert.Equal(t, endDate, *args.EndDate)
	assert.Nil(t, args.ReturnType)
}

func TestInitiateDepositDefaultsEncodeAsNone(t *testing.T) {
	ix, err := NewInitiateDepositInstruction(ProgramID, InitiateDepositArgs{Amount: 1}, InitiateAccounts{})
	require.NoError(t, err)
	data, err := ix.Data()
	require.NoError(t, err)

	// discriminator + u64 + three None tags
	assert.Len(t, data, 8+8+3)
	assert.Equal(t, []byte{0, 0, 0}, data[16:])
}

func TestWithdrawDriftCarriesRemainingAccounts(t *testing.T) {
	oracle := solana.NewWallet().PublicKey()
	market := solana.NewWallet().PublicKey()

	ix, err := NewWithdrawDriftInstruction(ProgramID, WithdrawDriftArgs{
		MarketIndex: 1,
		Amount:      42,
		WithdrawAll: true,
	}, WithdrawDriftAccounts{
		Remaining: []*solana.AccountMeta{
			solana.NewAccountMeta(oracle, false, false),
			solana.NewAccountMeta(market, true, false),
		},
	})
	require.NoError(t, err)

	metas := ix.Accounts()
	require.Len(t, metas, WithdrawDriftAccountCount+2)
	assert.Equal(t, oracle, metas[WithdrawDriftAccountCount].PublicKey)
	assert.Equal(t, market, metas[WithdrawDriftAccountCount+1].PublicKey)
	assert.True(t, metas[WithdrawDriftAccountCount+1].IsWritable)

	data, err := ix.Data()
	require.NoError(t, err)
	name, payload, err := Identify(data)
	require.NoError(t, err)
	assert.Equal(t, WithdrawDriftName, name)
	args, err := DecodeWithdrawDriftArgs(payload)
	require.NoError(t, err)
	assert.Equal(t, WithdrawDriftArgs{MarketIndex: 1, Amount: 42, WithdrawAll: true}, args)
}

func TestAccountCounts(t *testing.T) {
	assert.Len(t, InitiateAccounts{}.metas(), InitiateAccountCount)
	assert.Len(t, InitDriftUserAccounts{}.metas(), InitDriftUserAccountCount)
	assert.Len(t, DepositDriftAccounts{}.metas(), DepositDriftAccountCount)
	assert.Len(t, WithdrawDriftAccounts{}.metas(), WithdrawDriftAccountCount)
}

func TestIdentifyRejectsUnknown(t *testing.T) {
	_, _, err := Identify([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Error(t, err)

	_, _, err = Identify([]byte{1, 2})
	require.Error(t, err)
}
