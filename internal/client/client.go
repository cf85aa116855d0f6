// Package client sends vault instructions to a cluster and reads vault state
// back over JSON-RPC.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/token"
	"github.com/coldbell/vault/backend/internal/vault"
)

const defaultConfirmInterval = 700 * time.Millisecond

// RPC is the subset of *rpc.Client the client calls.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

var ErrAccountNotFound = errors.New("account not found")

type Client struct {
	cfg             config.ClientConfig
	rpc             RPC
	owner           solana.PrivateKey
	feePayer        *solana.PrivateKey
	logger          *slog.Logger
	confirmInterval time.Duration
}

func New(cfg config.ClientConfig, logger *slog.Logger) (*Client, error) {
	owner, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
	}
	var feePayer *solana.PrivateKey
	if cfg.FeePayerKeypairPath != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.FeePayerKeypairPath)
		if err != nil {
			return nil, fmt.Errorf("load fee payer keypair %q: %w", cfg.FeePayerKeypairPath, err)
		}
		feePayer = &key
	}
	return NewWithRPC(cfg, rpc.New(cfg.RPCURL), owner, feePayer, logger), nil
}

func NewWithRPC(cfg config.ClientConfig, client RPC, owner solana.PrivateKey, feePayer *solana.PrivateKey, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		cfg:             cfg,
		rpc:             client,
		owner:           owner,
		feePayer:        feePayer,
		logger:          logger,
		confirmInterval: defaultConfirmInterval,
	}
}

func (c *Client) Owner() solana.PublicKey {
	return c.owner.PublicKey()
}

// Plan returns the instruction planner for the configured mint.
func (c *Client) Plan() Plan {
	var feePayer *solana.PublicKey
	if c.feePayer != nil {
		key := c.feePayer.PublicKey()
		feePayer = &key
	}
	return NewPlan(c.cfg, c.owner.PublicKey(), feePayer)
}

// OwnerTokenAccount is the owner's associated account for the configured
// mint.
func (c *Client) OwnerTokenAccount() (solana.PublicKey, error) {
	return token.AssociatedAddress(c.owner.PublicKey(), c.cfg.Mint)
}

// Submit signs, sends and confirms one transaction. name labels logs and
// errors.
func (c *Client) Submit(ctx context.Context, name string, instructions []solana.Instruction) (solana.Signature, error) {
	txCtx, cancel := context.WithTimeout(ctx, c.cfg.TxTimeout)
	defer cancel()

	signature, err := c.sendTransaction(txCtx, instructions)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send %s transaction: %w", name, mapProgramError(err))
	}
	if err := c.waitForConfirmation(txCtx, signature); err != nil {
		return signature, fmt.Errorf("confirm %s %s: %w", name, signature, err)
	}

	c.logger.Info("transaction confirmed", "instruction", name, "signature", signature)
	return signature, nil
}

func (c *Client) payer() solana.PublicKey {
	if c.feePayer != nil {
		return c.feePayer.PublicKey()
	}
	return c.owner.PublicKey()
}

func (c *Client) sendTransaction(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(c.payer()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if c.owner.PublicKey().Equals(key) {
			return &c.owner
		}
		if c.feePayer != nil && c.feePayer.PublicKey().Equals(key) {
			return c.feePayer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       c.cfg.SkipPreflight,
		PreflightCommitment: c.cfg.Commitment,
	}
	if c.cfg.MaxRetries != nil {
		retries := *c.cfg.MaxRetries
		opts.MaxRetries = &retries
	}

	return c.rpc.SendTransactionWithOpts(ctx, tx, opts)
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return statusError(status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}

// VaultState is a vault as read from the cluster.
type VaultState struct {
	Address       solana.PublicKey
	Record        vault.Record
	Verified      bool
	EscrowAccount solana.PublicKey
	EscrowBalance uint64
}

// FetchVault reads the caller's vault for the configured mint together with
// its escrow balance. A missing escrow account reads as zero.
func (c *Client) FetchVault(ctx context.Context) (VaultState, error) {
	addrs, err := c.Plan().Addresses()
	if err != nil {
		return VaultState{}, err
	}
	data, err := c.accountData(ctx, addrs.Vault, c.cfg.Programs.VaultProgramID)
	if err != nil {
		return VaultState{}, fmt.Errorf("fetch vault %s: %w", addrs.Vault, err)
	}
	record, err := vault.DecodeRecord(data)
	if err != nil {
		return VaultState{}, fmt.Errorf("decode vault %s: %w", addrs.Vault, err)
	}
	state := VaultState{
		Address:       addrs.Vault,
		Record:        record,
		Verified:      record.Verify(c.cfg.Programs.VaultProgramID, addrs.Vault) == nil,
		EscrowAccount: addrs.VaultTokenAccount,
	}

	escrow, err := c.accountData(ctx, addrs.VaultTokenAccount, solana.TokenProgramID)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return state, nil
	case err != nil:
		return VaultState{}, fmt.Errorf("fetch escrow %s: %w", addrs.VaultTokenAccount, err)
	}
	acc, err := token.DecodeAccount(escrow)
	if err != nil {
		return VaultState{}, fmt.Errorf("decode escrow %s: %w", addrs.VaultTokenAccount, err)
	}
	state.EscrowBalance = acc.Amount
	return state, nil
}

func (c *Client) accountData(ctx context.Context, address, owner solana.PublicKey) ([]byte, error) {
	resp, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{Commitment: c.cfg.Commitment})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if resp == nil || resp.Value == nil {
		return nil, ErrAccountNotFound
	}
	if !resp.Value.Owner.Equals(owner) {
		return nil, fmt.Errorf("owned by %s, want %s", resp.Value.Owner, owner)
	}
	return resp.Value.Data.GetBinary(), nil
}
