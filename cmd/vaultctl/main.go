package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"

	"github.com/coldbell/vault/backend/internal/client"
	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/logging"
)

func main() {
	app := cli.NewApp()

	app.Name = "vaultctl"
	app.Usage = "Command line interface for custodial escrow vaults"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "keypair",
			Usage: "owner keypair file, overrides VAULT_KEYPAIR_PATH",
		},
		&cli.StringFlag{
			Name:  "mint",
			Usage: "token mint of the vault, overrides VAULT_MINT",
		},
		&cli.UintFlag{
			Name:  "market-index",
			Usage: "drift spot market index, overrides VAULT_DRIFT_MARKET_INDEX",
		},
	}
	app.Commands = append(
		app.Commands,
		&derive,
		&initVault,
		&deposit,
		&withdraw,
		&luloDeposit,
		&luloWithdraw,
		&driftDeposit,
		&driftWithdraw,
		&show,
	)

	if err := app.Run(os.Args); err != nil {
		logging.Bootstrap().Error("vaultctl failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the client configuration and applies the global flags.
func loadConfig(c *cli.Context) (config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return config.ClientConfig{}, fmt.Errorf("load config: %w", err)
	}
	if path := c.String("keypair"); path != "" {
		cfg.KeypairPath = path
	}
	if raw := c.String("mint"); raw != "" {
		mint, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return config.ClientConfig{}, fmt.Errorf("invalid mint: %w", err)
		}
		cfg.Mint = mint
	}
	if c.IsSet("market-index") {
		index := c.Uint("market-index")
		if index > uint(^uint16(0)) {
			return config.ClientConfig{}, fmt.Errorf("invalid market-index %d", index)
		}
		cfg.MarketIndex = uint16(index)
	}
	return cfg, nil
}

func newClient(c *cli.Context) (*client.Client, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLogger, err := logging.NewWithConsole("vaultctl", cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	cleanup := func() {
		_ = closeLogger()
	}

	cl, err := client.New(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return cl, cleanup, nil
}

// submit builds and sends one vault operation and prints its signature.
func submit(c *cli.Context, name string, build func(*client.Client) ([]solana.Instruction, error)) error {
	cl, cleanup, err := newClient(c)
	if err != nil {
		return err
	}
	defer cleanup()

	instructions, err := build(cl)
	if err != nil {
		return err
	}
	sig, err := cl.Submit(c.Context, name, instructions)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"instruction": name,
		"signature":   sig.String(),
	})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
