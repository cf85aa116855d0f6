package apiserver

import (
	"github.com/shopspring/decimal"

	"github.com/coldbell/vault/backend/internal/indexer"
)

type vaultView struct {
	indexer.VaultRecord
	// EscrowBalanceUI is the escrow balance scaled by the mint's decimals.
	EscrowBalanceUI string `json:"escrow_balance_ui"`
}

func newVaultView(record indexer.VaultRecord) vaultView {
	return vaultView{
		VaultRecord:     record,
		EscrowBalanceUI: uiAmount(record.EscrowBalance, record.MintDecimals),
	}
}

func uiAmount(raw string, decimals uint8) string {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return "0"
	}
	return amount.Shift(-int32(decimals)).String()
}
