package main

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/coldbell/vault/backend/internal/client"
	"github.com/coldbell/vault/backend/internal/vault"
)

var amountFlag = &cli.Uint64Flag{
	Name:     "amount",
	Usage:    "amount in base units of the mint",
	Required: true,
}

var initVault = cli.Command{
	Name:  "init",
	Usage: "create the vault record for the owner and mint",
	Action: func(c *cli.Context) error {
		return submit(c, vault.InitVaultName, func(cl *client.Client) ([]solana.Instruction, error) {
			return cl.Plan().Init()
		})
	},
}

var deposit = cli.Command{
	Name:  "deposit",
	Usage: "move tokens from the owner's token account into the vault escrow",
	Flags: []cli.Flag{amountFlag},
	Action: func(c *cli.Context) error {
		return submit(c, vault.DepositVaultName, func(cl *client.Client) ([]solana.Instruction, error) {
			ownerToken, err := cl.OwnerTokenAccount()
			if err != nil {
				return nil, err
			}
			return cl.Plan().Deposit(c.Uint64("amount"), ownerToken)
		})
	},
}

var withdraw = cli.Command{
	Name:  "withdraw",
	Usage: "move tokens from the vault escrow back to the owner",
	Flags: []cli.Flag{amountFlag},
	Action: func(c *cli.Context) error {
		return submit(c, vault.WithdrawVaultName, func(cl *client.Client) ([]solana.Instruction, error) {
			ownerToken, err := cl.OwnerTokenAccount()
			if err != nil {
				return nil, err
			}
			return cl.Plan().Withdraw(c.Uint64("amount"), ownerToken)
		})
	},
}

var luloDeposit = cli.Command{
	Name:  "lulo-deposit",
	Usage: "deposit escrowed tokens through the lulo router",
	Flags: []cli.Flag{
		amountFlag,
		&cli.StringFlag{
			Name:  "allowed-protocols",
			Usage: "comma separated protocols the router may use",
		},
		&cli.Int64Flag{
			Name:  "end-date",
			Usage: "unix time the deposit is locked until",
		},
		&cli.StringFlag{
			Name:  "return-type",
			Usage: "router return type",
		},
	},
	Action: func(c *cli.Context) error {
		args := vault.RouteDepositArgs{
			Amount:           c.Uint64("amount"),
			AllowedProtocols: optionalString(c, "allowed-protocols"),
			ReturnType:       optionalString(c, "return-type"),
		}
		if c.IsSet("end-date") {
			endDate := c.Int64("end-date")
			args.EndDate = &endDate
		}
		return submit(c, vault.LuloDepositName, func(cl *client.Client) ([]solana.Instruction, error) {
			return cl.Plan().LuloDeposit(args)
		})
	},
}

var luloWithdraw = cli.Command{
	Name:  "lulo-withdraw",
	Usage: "withdraw routed funds back into the vault escrow",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "amount",
			Usage: "amount in base units of the mint",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "withdraw the whole routed position",
		},
		&cli.StringFlag{
			Name:  "return-type",
			Usage: "router return type",
		},
	},
	Action: func(c *cli.Context) error {
		if !c.IsSet("amount") && !c.Bool("all") {
			return errors.New("either --amount or --all is required")
		}
		args := vault.RouteWithdrawArgs{
			Amount:      c.Uint64("amount"),
			WithdrawAll: c.Bool("all"),
			ReturnType:  optionalString(c, "return-type"),
		}
		return submit(c, vault.LuloWithdrawName, func(cl *client.Client) ([]solana.Instruction, error) {
			return cl.Plan().LuloWithdraw(args)
		})
	},
}

var driftDeposit = cli.Command{
	Name:  "drift-deposit",
	Usage: "deposit escrowed tokens into the drift spot market, creating the sub-account when missing",
	Flags: []cli.Flag{amountFlag},
	Action: func(c *cli.Context) error {
		return submit(c, vault.LuloDepositDriftName, func(cl *client.Client) ([]solana.Instruction, error) {
			return cl.Plan().DriftDeposit(c.Uint64("amount"))
		})
	},
}

var driftWithdraw = cli.Command{
	Name:  "drift-withdraw",
	Usage: "withdraw from the drift spot market back into the vault escrow",
	Flags: []cli.Flag{amountFlag},
	Action: func(c *cli.Context) error {
		return submit(c, vault.LuloWithdrawDriftName, func(cl *client.Client) ([]solana.Instruction, error) {
			return cl.Plan().DriftWithdraw(c.Uint64("amount"))
		})
	},
}

var show = cli.Command{
	Name:  "show",
	Usage: "print the vault record and escrow balance",
	Action: func(c *cli.Context) error {
		cl, cleanup, err := newClient(c)
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := cl.FetchVault(c.Context)
		if errors.Is(err, client.ErrAccountNotFound) {
			return fmt.Errorf("vault for owner %s is not initialized", cl.Owner())
		}
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"address":        state.Address.String(),
			"owner":          state.Record.Owner.String(),
			"mint":           state.Record.Mint.String(),
			"salt":           state.Record.Salt,
			"verified":       state.Verified,
			"escrow_account": state.EscrowAccount.String(),
			"escrow_balance": state.EscrowBalance,
		})
	},
}

func optionalString(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	value := c.String(name)
	return &value
}
