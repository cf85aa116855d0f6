package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name        string
		remaining   int
		marketCount int
		oracles     []int
		descriptors []int
		wantErr     error
	}{
		{name: "two markets", remaining: 10, marketCount: 2, oracles: []int{6, 7}, descriptors: []int{8, 9}},
		{name: "trailing accounts ignored", remaining: 12, marketCount: 2, oracles: []int{6, 7}, descriptors: []int{8, 9}},
		{name: "one market", remaining: 8, marketCount: 1, oracles: []int{6}, descriptors: []int{7}},
		{name: "one short", remaining: 9, marketCount: 2, wantErr: ErrMissingAuxiliaryAccount},
		{name: "fixed only", remaining: 6, marketCount: 1, wantErr: ErrMissingAuxiliaryAccount},
		{name: "three markets", remaining: 10, marketCount: 3, wantErr: ErrMissingAuxiliaryAccount},
		{name: "negative count", remaining: 10, marketCount: -1, wantErr: ErrInvalidInstruction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracles, descriptors, err := Partition(sequence(tt.remaining), DriftWithdrawFixedAccounts, tt.marketCount)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.oracles, oracles)
			assert.Equal(t, tt.descriptors, descriptors)
		})
	}
}

func TestRouteConcatenatesOraclesFirst(t *testing.T) {
	routed, err := Route(sequence(10), DriftWithdrawFixedAccounts, MarketCount(1))
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7, 8, 9}, routed)

	_, err = Route(sequence(10), DriftWithdrawFixedAccounts, MarketCount(2))
	require.ErrorIs(t, err, ErrMissingAuxiliaryAccount)
}

func TestMarketCount(t *testing.T) {
	assert.Equal(t, 1, MarketCount(0))
	assert.Equal(t, 2, MarketCount(DefaultMarketIndex))
}
