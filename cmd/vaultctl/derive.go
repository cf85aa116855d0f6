package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"

	"github.com/coldbell/vault/backend/internal/client"
	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/pda"
)

var derive = cli.Command{
	Name:  "derive",
	Usage: "print the deterministic addresses of a vault without touching the cluster",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "owner",
			Usage: "vault owner, defaults to the configured keypair",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		owner, err := resolveOwner(c.String("owner"), cfg.KeypairPath)
		if err != nil {
			return err
		}
		report, err := deriveReport(cfg, owner)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

type derivedAddresses struct {
	Owner                string   `json:"owner"`
	Mint                 string   `json:"mint"`
	Vault                string   `json:"vault"`
	Salt                 uint8    `json:"salt"`
	VaultSeeds           []string `json:"vault_seeds"`
	EscrowTokenAccount   string   `json:"escrow_token_account"`
	LuloUserAccount      string   `json:"lulo_user_account"`
	LuloUserTokenAccount string   `json:"lulo_user_token_account"`
	DriftUser            string   `json:"drift_user"`
	DriftUserStats       string   `json:"drift_user_stats"`
}

func resolveOwner(raw, keypairPath string) (solana.PublicKey, error) {
	if raw != "" {
		owner, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("invalid owner: %w", err)
		}
		return owner, nil
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("load keypair %q: %w", keypairPath, err)
	}
	return key.PublicKey(), nil
}

// deriveReport lists every address the vault program and the downstream
// protocols derive for owner, with the vault seeds base58 encoded.
func deriveReport(cfg config.ClientConfig, owner solana.PublicKey) (derivedAddresses, error) {
	addrs, err := client.NewPlan(cfg, owner, nil).Addresses()
	if err != nil {
		return derivedAddresses{}, err
	}
	driftUser, _, err := pda.DeriveDriftUser(cfg.Programs.DriftProgramID, addrs.LuloUserAccount, 0)
	if err != nil {
		return derivedAddresses{}, fmt.Errorf("derive drift user: %w", err)
	}
	driftUserStats, _, err := pda.DeriveDriftUserStats(cfg.Programs.DriftProgramID, addrs.LuloUserAccount)
	if err != nil {
		return derivedAddresses{}, fmt.Errorf("derive drift user stats: %w", err)
	}

	seeds := pda.VaultSeeds(cfg.Mint, owner, addrs.Salt)
	encoded := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		encoded = append(encoded, base58.Encode(seed))
	}

	return derivedAddresses{
		Owner:                owner.String(),
		Mint:                 cfg.Mint.String(),
		Vault:                addrs.Vault.String(),
		Salt:                 addrs.Salt,
		VaultSeeds:           encoded,
		EscrowTokenAccount:   addrs.VaultTokenAccount.String(),
		LuloUserAccount:      addrs.LuloUserAccount.String(),
		LuloUserTokenAccount: addrs.LuloUserTokenAccount.String(),
		DriftUser:            driftUser.String(),
		DriftUserStats:       driftUserStats.String(),
	}, nil
}
