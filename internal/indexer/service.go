package indexer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/pda"
	"github.com/coldbell/vault/backend/internal/token"
	"github.com/coldbell/vault/backend/internal/vault"
)

const multipleAccountsBatch = 100

// VaultRow is one vault read from the cluster at Slot.
type VaultRow struct {
	Address       solana.PublicKey
	Owner         solana.PublicKey
	Mint          solana.PublicKey
	Salt          uint8
	Verified      bool
	Lamports      uint64
	EscrowAccount solana.PublicKey
	EscrowExists  bool
	EscrowBalance uint64
	MintDecimals  uint8
	Slot          uint64
}

type Service struct {
	cfg    config.IndexerConfig
	rpc    RPC
	store  *Store
	logger *slog.Logger
}

func New(cfg config.IndexerConfig, logger *slog.Logger) (*Service, error) {
	store, err := NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Service{
		cfg:    cfg,
		rpc:    newGuardedRPC(rpc.New(cfg.RPCURL), cfg, logger),
		store:  store,
		logger: logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.RPCURL,
		"db_driver", "postgres",
		"commitment", s.cfg.Commitment,
		"vault_program", s.cfg.VaultProgramID,
	)

	if err := s.syncOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

func (s *Service) syncOnce(ctx context.Context) error {
	slot, err := s.rpc.GetSlot(ctx, s.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}

	rows, err := s.collect(ctx, slot)
	if err != nil {
		return err
	}

	unverified := 0
	err = s.store.WithTx(ctx, func(tx *Tx) error {
		for _, row := range rows {
			if !row.Verified {
				unverified++
			}
			if err := s.store.UpsertVaultTx(ctx, tx, row); err != nil {
				return fmt.Errorf("upsert vault %s: %w", row.Address, err)
			}
		}
		return s.store.UpsertSyncStateTx(ctx, tx, slot)
	})
	if err != nil {
		return err
	}

	s.logger.Info("sync complete", "slot", slot, "vaults", len(rows), "unverified", unverified)
	return nil
}

// collect scans every vault record owned by the program and joins in escrow
// balances and mint decimals.
func (s *Service) collect(ctx context.Context, slot uint64) ([]VaultRow, error) {
	programID := s.cfg.VaultProgramID
	accounts, err := s.rpc.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
		Commitment: s.cfg.Commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: vault.RecordSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(vault.RecordDiscriminator[:])}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan vault accounts for program %s: %w", programID, err)
	}

	rows := make([]VaultRow, 0, len(accounts))
	for _, item := range accounts {
		if item == nil || item.Account == nil {
			continue
		}
		row, err := s.decodeVault(item, slot)
		if err != nil {
			s.logger.Warn("failed to index account",
				"program", programID,
				"pubkey", item.Pubkey,
				"slot", slot,
				"err", err,
			)
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return bytes.Compare(rows[i].Address[:], rows[j].Address[:]) < 0
	})

	if err := s.attachEscrows(ctx, rows); err != nil {
		return nil, err
	}
	if err := s.attachMintDecimals(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) decodeVault(item *rpc.KeyedAccount, slot uint64) (VaultRow, error) {
	record, err := vault.DecodeRecord(item.Account.Data.GetBinary())
	if err != nil {
		return VaultRow{}, err
	}
	escrow, _, err := pda.DeriveEscrowTokenAccount(item.Pubkey, record.Mint)
	if err != nil {
		return VaultRow{}, fmt.Errorf("derive escrow: %w", err)
	}

	row := VaultRow{
		Address:       item.Pubkey,
		Owner:         record.Owner,
		Mint:          record.Mint,
		Salt:          record.Salt,
		Verified:      true,
		Lamports:      item.Account.Lamports,
		EscrowAccount: escrow,
		Slot:          slot,
	}
	if err := record.Verify(s.cfg.VaultProgramID, item.Pubkey); err != nil {
		row.Verified = false
		s.logger.Warn("vault derivation mismatch",
			"pubkey", item.Pubkey,
			"owner", record.Owner,
			"mint", record.Mint,
			"salt", record.Salt,
			"err", err,
		)
	}
	return row, nil
}

func (s *Service) attachEscrows(ctx context.Context, rows []VaultRow) error {
	keys := make([]solana.PublicKey, len(rows))
	for i := range rows {
		keys[i] = rows[i].EscrowAccount
	}
	accounts, err := s.fetchAccounts(ctx, keys)
	if err != nil {
		return fmt.Errorf("fetch escrow accounts: %w", err)
	}

	for i := range rows {
		acc := accounts[i]
		if acc == nil {
			continue
		}
		if !acc.Owner.Equals(solana.TokenProgramID) {
			s.logger.Warn("escrow not owned by token program", "vault", rows[i].Address, "escrow", rows[i].EscrowAccount, "owner", acc.Owner)
			continue
		}
		escrow, err := token.DecodeAccount(acc.Data.GetBinary())
		if err != nil {
			s.logger.Warn("failed to decode escrow", "vault", rows[i].Address, "escrow", rows[i].EscrowAccount, "err", err)
			continue
		}
		if !escrow.Mint.Equals(rows[i].Mint) || !escrow.Owner.Equals(rows[i].Address) {
			s.logger.Warn("escrow does not belong to vault", "vault", rows[i].Address, "escrow", rows[i].EscrowAccount)
			continue
		}
		rows[i].EscrowExists = true
		rows[i].EscrowBalance = escrow.Amount
	}
	return nil
}

func (s *Service) attachMintDecimals(ctx context.Context, rows []VaultRow) error {
	seen := make(map[solana.PublicKey]struct{})
	mints := make([]solana.PublicKey, 0)
	for _, row := range rows {
		if _, ok := seen[row.Mint]; ok {
			continue
		}
		seen[row.Mint] = struct{}{}
		mints = append(mints, row.Mint)
	}
	accounts, err := s.fetchAccounts(ctx, mints)
	if err != nil {
		return fmt.Errorf("fetch mint accounts: %w", err)
	}

	decimals := make(map[solana.PublicKey]uint8, len(mints))
	for i, mint := range mints {
		acc := accounts[i]
		if acc == nil {
			s.logger.Warn("mint account missing", "mint", mint)
			continue
		}
		decoded, err := token.DecodeMint(acc.Data.GetBinary())
		if err != nil {
			s.logger.Warn("failed to decode mint", "mint", mint, "err", err)
			continue
		}
		decimals[mint] = decoded.Decimals
	}
	for i := range rows {
		rows[i].MintDecimals = decimals[rows[i].Mint]
	}
	return nil
}

// fetchAccounts returns one entry per key, nil where the account does not
// exist.
func (s *Service) fetchAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.Account, error) {
	out := make([]*rpc.Account, 0, len(keys))
	for start := 0; start < len(keys); start += multipleAccountsBatch {
		end := min(start+multipleAccountsBatch, len(keys))
		resp, err := s.rpc.GetMultipleAccountsWithOpts(ctx, keys[start:end], &rpc.GetMultipleAccountsOpts{
			Commitment: s.cfg.Commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Value) != end-start {
			return nil, fmt.Errorf("expected %d accounts in response", end-start)
		}
		out = append(out, resp.Value...)
	}
	return out, nil
}
