package vault

import "fmt"

// DriftWithdrawFixedAccounts is the number of fixed-role remaining accounts
// of lulo_withdraw_drift before the per-market groups.
const DriftWithdrawFixedAccounts = 6

// MarketCount is the number of per-market account pairs a call at
// marketIndex carries: markets 0 through marketIndex.
func MarketCount(marketIndex uint16) int {
	return int(marketIndex) + 1
}

// Partition splits the per-market groups out of remaining: marketCount
// oracles starting at fixed, then marketCount market descriptors. Accounts
// past the descriptors are ignored. A list too short for both groups is an
// error, never truncated.
func Partition[T any](remaining []T, fixed, marketCount int) (oracles, descriptors []T, err error) {
	if fixed < 0 || marketCount < 0 {
		return nil, nil, fmt.Errorf("%w: fixed %d, markets %d", ErrInvalidInstruction, fixed, marketCount)
	}
	need := fixed + 2*marketCount
	if len(remaining) < need {
		return nil, nil, fmt.Errorf("%w: need %d remaining accounts for %d markets, got %d", ErrMissingAuxiliaryAccount, need, marketCount, len(remaining))
	}
	oracles = remaining[fixed : fixed+marketCount]
	descriptors = remaining[fixed+marketCount : need]
	return oracles, descriptors, nil
}

// Route is Partition's groups concatenated oracle-first, the order the
// downstream call takes them in.
func Route[T any](remaining []T, fixed, marketCount int) ([]T, error) {
	oracles, descriptors, err := Partition(remaining, fixed, marketCount)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(oracles)+len(descriptors))
	out = append(out, oracles...)
	return append(out, descriptors...), nil
}
