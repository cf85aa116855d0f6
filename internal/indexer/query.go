package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

var ErrNotFound = errors.New("not found")

type VaultFilter struct {
	Owner  string
	Mint   string
	Limit  int
	Offset int
}

// VaultRecord is an indexed vault as served to readers. EscrowBalance is the
// raw token amount in base units.
type VaultRecord struct {
	Address       string `json:"address"`
	Owner         string `json:"owner"`
	Mint          string `json:"mint"`
	Salt          uint8  `json:"salt"`
	Verified      bool   `json:"verified"`
	Lamports      uint64 `json:"lamports"`
	EscrowAccount string `json:"escrow_account"`
	EscrowExists  bool   `json:"escrow_exists"`
	EscrowBalance string `json:"escrow_balance"`
	MintDecimals  uint8  `json:"mint_decimals"`
	Slot          uint64 `json:"slot"`
	UpdatedAt     int64  `json:"updated_at"`
}

type SyncState struct {
	LastSlot  uint64 `json:"last_slot"`
	UpdatedAt int64  `json:"updated_at"`
}

const vaultColumns = `
	address,
	owner,
	mint,
	salt,
	verified,
	lamports,
	escrow_account,
	escrow_exists,
	escrow_balance::TEXT,
	mint_decimals,
	slot,
	updated_at`

func buildListVaultsQuery(filter VaultFilter) (string, []any, int, int) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	clauses := []string{"1 = 1"}
	args := make([]any, 0, 4)

	if owner := strings.TrimSpace(filter.Owner); owner != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, owner)
	}
	if mint := strings.TrimSpace(filter.Mint); mint != "" {
		clauses = append(clauses, "mint = ?")
		args = append(args, mint)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM vaults
		WHERE %s
		ORDER BY updated_at DESC, address ASC
		LIMIT ? OFFSET ?
	`, vaultColumns, strings.Join(clauses, " AND "))
	args = append(args, limit, offset)
	return query, args, limit, offset
}

func (s *Store) ListVaults(ctx context.Context, filter VaultFilter) ([]VaultRecord, int, int, error) {
	query, args, limit, offset := buildListVaultsQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]VaultRecord, 0, limit)
	for rows.Next() {
		item, err := scanVault(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return items, limit, offset, nil
}

func (s *Store) GetVault(ctx context.Context, address string) (VaultRecord, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM vaults WHERE address = ?`, vaultColumns), address)
	item, err := scanVault(row)
	if errors.Is(err, sql.ErrNoRows) {
		return VaultRecord{}, ErrNotFound
	}
	return item, err
}

func (s *Store) GetSyncState(ctx context.Context) (SyncState, error) {
	var state SyncState
	var slot int64
	err := s.db.QueryRowContext(ctx, `SELECT last_slot, updated_at FROM sync_state WHERE id = 1`).Scan(&slot, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncState{}, ErrNotFound
	}
	if err != nil {
		return SyncState{}, err
	}
	state.LastSlot = uint64(slot)
	return state, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (VaultRecord, error) {
	var item VaultRecord
	var salt, verified, escrowExists, decimals int
	var lamports, slot int64
	if err := row.Scan(
		&item.Address,
		&item.Owner,
		&item.Mint,
		&salt,
		&verified,
		&lamports,
		&item.EscrowAccount,
		&escrowExists,
		&item.EscrowBalance,
		&decimals,
		&slot,
		&item.UpdatedAt,
	); err != nil {
		return VaultRecord{}, err
	}
	item.Salt = uint8(salt)
	item.Verified = verified != 0
	item.Lamports = uint64(lamports)
	item.EscrowExists = escrowExists != 0
	item.MintDecimals = uint8(decimals)
	item.Slot = uint64(slot)
	return item, nil
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
