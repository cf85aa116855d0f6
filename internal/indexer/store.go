package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *DB
}

type DB struct {
	raw *sql.DB
}

type Tx struct {
	raw *sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx}, nil
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) Commit() error {
	return tx.raw.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.raw.Rollback()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: &DB{raw: db}}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			id BIGINT PRIMARY KEY CHECK (id = 1),
			last_slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS vaults (
			address TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			mint TEXT NOT NULL,
			salt INTEGER NOT NULL,
			verified INTEGER NOT NULL,
			lamports BIGINT NOT NULL,
			escrow_account TEXT NOT NULL,
			escrow_exists INTEGER NOT NULL,
			escrow_balance NUMERIC(20, 0) NOT NULL,
			mint_decimals INTEGER NOT NULL,
			slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vaults_owner_mint ON vaults(owner, mint);`,
		`CREATE INDEX IF NOT EXISTS idx_vaults_mint ON vaults(mint);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx *Tx, slot uint64) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_slot, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_slot = excluded.last_slot,
			updated_at = excluded.updated_at
	`, int64(slot), now)
	return err
}

// UpsertVaultTx writes one indexed vault. A row never moves backwards in slot.
func (s *Store) UpsertVaultTx(ctx context.Context, tx *Tx, row VaultRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO vaults (
			address, owner, mint, salt, verified, lamports,
			escrow_account, escrow_exists, escrow_balance, mint_decimals,
			slot, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner,
			mint = excluded.mint,
			salt = excluded.salt,
			verified = excluded.verified,
			lamports = excluded.lamports,
			escrow_account = excluded.escrow_account,
			escrow_exists = excluded.escrow_exists,
			escrow_balance = excluded.escrow_balance,
			mint_decimals = excluded.mint_decimals,
			slot = excluded.slot,
			updated_at = excluded.updated_at
		WHERE vaults.slot <= excluded.slot
	`,
		row.Address.String(),
		row.Owner.String(),
		row.Mint.String(),
		int(row.Salt),
		boolToInt(row.Verified),
		int64(row.Lamports),
		row.EscrowAccount.String(),
		boolToInt(row.EscrowExists),
		strconv.FormatUint(row.EscrowBalance, 10),
		int(row.MintDecimals),
		int64(row.Slot),
		time.Now().Unix(),
	)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
