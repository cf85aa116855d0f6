package token

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/ledger"
)

// CreateMint writes an initialized mint directly into ledger state.
func CreateMint(l *ledger.Ledger, mint, authority solana.PublicKey, decimals uint8) error {
	data, err := EncodeMint(Mint{
		MintAuthority: &authority,
		Decimals:      decimals,
		IsInitialized: true,
	})
	if err != nil {
		return err
	}
	l.SetAccount(mint, ledger.Account{
		Lamports: ledger.MinimumBalance(MintSize),
		Owner:    solana.TokenProgramID,
		Data:     data,
	})
	return nil
}

// CreateAccount writes an initialized token account holding amount directly
// into ledger state. The mint supply is not adjusted.
func CreateAccount(l *ledger.Ledger, address, mint, owner solana.PublicKey, amount uint64) error {
	data, err := EncodeAccount(Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  StateInitialized,
	})
	if err != nil {
		return err
	}
	l.SetAccount(address, ledger.Account{
		Lamports: ledger.MinimumBalance(AccountSize),
		Owner:    solana.TokenProgramID,
		Data:     data,
	})
	return nil
}

// CreateAssociatedAccount is CreateAccount at the associated address of
// (owner, mint).
func CreateAssociatedAccount(l *ledger.Ledger, owner, mint solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	address, err := AssociatedAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return address, CreateAccount(l, address, mint, owner, amount)
}

// Balance reads the committed amount held by a token account.
func Balance(l *ledger.Ledger, address solana.PublicKey) (uint64, error) {
	acc, ok := l.GetAccount(address)
	if !ok {
		return 0, fmt.Errorf("%w: %s does not exist", ErrUninitializedAccount, address)
	}
	if !acc.Owner.Equals(solana.TokenProgramID) {
		return 0, fmt.Errorf("%w: %s owned by %s", ledger.ErrIllegalOwner, address, acc.Owner)
	}
	decoded, err := DecodeAccount(acc.Data)
	if err != nil {
		return 0, err
	}
	return decoded.Amount, nil
}
