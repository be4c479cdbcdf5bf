package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/kitties/internal/adapter/auth"
	"github.com/rl1809/kitties/internal/adapter/handler"
	"github.com/rl1809/kitties/internal/config"
	"github.com/rl1809/kitties/internal/core/domain"
)

var (
	serverFlag = &cli.StringFlag{
		Name:    "server",
		Usage:   "gRPC address of the kitty daemon",
		Value:   fmt.Sprintf("localhost:%d", config.DefaultGRPCPort),
		EnvVars: []string{"KITTIES_SERVER"},
	}
	accountFlag = &cli.StringFlag{
		Name:    "account",
		Usage:   "account to act as",
		EnvVars: []string{"KITTIES_ACCOUNT"},
	}
	macaroonFlag = &cli.StringFlag{
		Name:    "macaroon",
		Usage:   "hex encoded macaroon proving the account",
		EnvVars: []string{"KITTIES_MACAROON"},
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "per call timeout",
		Value: 10 * time.Second,
	}
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "daemon datadir holding the macaroon root key",
		Value:   "./data",
		EnvVars: []string{"KITTIES_DATADIR"},
	}
	ttlFlag = &cli.DurationFlag{
		Name:  "ttl",
		Usage: "token lifetime, 0 never expires",
	}
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "kittycli",
		Usage: "create, transfer and inspect kitties",
		Flags: []cli.Flag{serverFlag, accountFlag, macaroonFlag, timeoutFlag},
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "create a kitty",
				ArgsUsage: "<dna-hex> <price>",
				Action:    createAction,
			},
			{
				Name:      "transfer",
				Usage:     "transfer a kitty you own",
				ArgsUsage: "<dna-hex> <to>",
				Action:    transferAction,
			},
			{
				Name:      "show",
				Usage:     "show a kitty",
				ArgsUsage: "<dna-hex>",
				Action:    showAction,
			},
			{
				Name:      "list",
				Usage:     "list the kitties of an account",
				ArgsUsage: "<owner>",
				Action:    listAction,
			},
			{
				Name:   "stats",
				Usage:  "show ledger stats",
				Action: statsAction,
			},
			{
				Name:      "mint-token",
				Usage:     "mint a macaroon for an account with the daemon root key",
				ArgsUsage: "<account>",
				Flags:     []cli.Flag{datadirFlag, ttlFlag},
				Action:    mintTokenAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func createAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	dna, err := domain.ParseDNA(c.Args().Get(0))
	if err != nil {
		return err
	}
	var price uint32
	if _, err := fmt.Sscan(c.Args().Get(1), &price); err != nil {
		return fmt.Errorf("invalid price: %w", err)
	}

	return withClient(c, func(ctx context.Context, client *handler.GRPCClient) error {
		kitty, err := client.CreateKitty(ctx, dna, price)
		if err != nil {
			return err
		}
		return printJSON(kitty)
	})
}

func transferAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.ShowSubcommandHelp(c)
	}
	dna, err := domain.ParseDNA(c.Args().Get(0))
	if err != nil {
		return err
	}
	to := domain.AccountID(c.Args().Get(1))

	return withClient(c, func(ctx context.Context, client *handler.GRPCClient) error {
		if err := client.TransferKitty(ctx, dna, to); err != nil {
			return err
		}
		return printJSON(map[string]any{"dna": dna, "to": to})
	})
}

func showAction(c *cli.Context) error {
	dna, err := domain.ParseDNA(c.Args().First())
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *handler.GRPCClient) error {
		kitty, err := client.GetKitty(ctx, dna)
		if err != nil {
			return err
		}
		return printJSON(kitty)
	})
}

func listAction(c *cli.Context) error {
	owner := domain.AccountID(c.Args().First())
	if owner == "" {
		owner = domain.AccountID(c.String(accountFlag.Name))
	}
	return withClient(c, func(ctx context.Context, client *handler.GRPCClient) error {
		kitties, err := client.ListKitties(ctx, owner)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"owner": owner, "kitties": kitties})
	})
}

func statsAction(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *handler.GRPCClient) error {
		count, err := client.GetStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"count": count})
	})
}

func mintTokenAction(c *cli.Context) error {
	account := domain.AccountID(c.Args().First())
	if account == "" {
		return cli.ShowSubcommandHelp(c)
	}

	rootKey, err := auth.LoadOrCreateRootKey(config.RootKeyPath(c.String(datadirFlag.Name)))
	if err != nil {
		return err
	}
	authenticator, err := auth.NewMacaroonAuthenticator(rootKey)
	if err != nil {
		return err
	}
	token, err := authenticator.Mint(account, c.Duration(ttlFlag.Name))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func withClient(c *cli.Context, fn func(ctx context.Context, client *handler.GRPCClient) error) error {
	conn, err := grpc.NewClient(
		c.String(serverFlag.Name), grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.String(serverFlag.Name), err)
	}
	defer conn.Close()

	origin := domain.Origin{
		Account: domain.AccountID(c.String(accountFlag.Name)),
		Token:   c.String(macaroonFlag.Name),
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration(timeoutFlag.Name))
	defer cancel()

	return fn(ctx, handler.NewGRPCClient(conn, origin))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
