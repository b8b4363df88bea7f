// Package main is the operator CLI for the custodial wallet layer: wallet
// create/import/list/export/delete, a master-key rotation check, and
// database migrations. It talks to storage directly and never starts the
// trading surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/ledger"
	"solana-trade-engine/internal/storage"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/storage/migrations"
	pgstore "solana-trade-engine/internal/storage/postgres"
	"solana-trade-engine/internal/vault"
	"solana-trade-engine/internal/wallet"
)

const usage = `Usage: walletctl <command> [flags]

Commands:
  create   -owner <id> [-label <label>]         generate a new wallet
  import   -owner <id> -secret <key> [-label]   import an existing secret key
  list     -owner <id>                          list active wallets
  export   -owner <id> -address <addr>          print the decrypted secret
  delete   -owner <id> -address <addr>          soft-delete a wallet
  default  -owner <id> -address <addr>          set the default wallet
  history  -owner <id> [-limit <n>]             print recent ledger entries
  rotate   -new-key <hex>                       check a replacement master key
  migrate                                       apply database migrations
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	owner := fs.String("owner", "", "owner id")
	label := fs.String("label", "", "wallet label")
	secret := fs.String("secret", "", "secret key (base58 or bracketed array)")
	address := fs.String("address", "", "wallet address")
	newKey := fs.String("new-key", "", "replacement master key, 64 hex chars")
	limit := fs.Int("limit", 20, "max ledger entries")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	ctx := context.Background()

	if command == "migrate" {
		runMigrate(ctx, cfg)
		return
	}

	key, err := vault.SourceKey(cfg.MasterKeyHex, cfg.MasterKeyFile)
	if err != nil {
		fatal("source master key: %v", err)
	}
	vaultSvc, err := vault.NewService(key)
	if err != nil {
		fatal("init vault: %v", err)
	}
	defer vaultSvc.Destroy()

	if command == "rotate" {
		// Rotation swaps the in-memory key; stored records stay encrypted
		// under the old key, so this is a dry-run validity check for the
		// re-encryption runbook.
		if err := vaultSvc.RotateKey(*newKey); err != nil {
			fatal("rotate check failed: %v", err)
		}
		fmt.Println("replacement key accepted; existing records still require re-encryption")
		return
	}

	store, ledgerStore, cleanup := openStores(ctx, cfg)
	defer cleanup()

	manager, err := wallet.NewManager(wallet.ManagerConfig{
		Store:       store,
		Vault:       vaultSvc,
		Cache:       wallet.NewKeypairCache(time.Minute, time.Minute),
		MaxPerOwner: cfg.MaxWalletsPerOwner,
	})
	if err != nil {
		fatal("init wallet manager: %v", err)
	}

	switch command {
	case "create":
		requireFlag(*owner, "-owner")
		record, err := manager.CreateWallet(ctx, *owner, *label)
		if err != nil {
			fatal("create wallet: %v", err)
		}
		fmt.Printf("created %s (default=%v)\n", record.Address, record.IsDefault)

	case "import":
		requireFlag(*owner, "-owner")
		requireFlag(*secret, "-secret")
		record, err := manager.ImportWallet(ctx, *owner, *secret, *label)
		if err != nil {
			fatal("import wallet: %v", err)
		}
		fmt.Printf("imported %s (default=%v)\n", record.Address, record.IsDefault)

	case "list":
		requireFlag(*owner, "-owner")
		wallets, err := manager.ListWallets(ctx, *owner)
		if err != nil {
			fatal("list wallets: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ADDRESS\tLABEL\tDEFAULT\tBALANCE\tCREATED")
		for _, w := range wallets {
			fmt.Fprintf(tw, "%s\t%s\t%v\t%.4f\t%s\n",
				w.Address, w.Label, w.IsDefault, w.CachedBalance, w.CreatedAt.Format(time.RFC3339))
		}
		tw.Flush()

	case "export":
		requireFlag(*owner, "-owner")
		requireFlag(*address, "-address")
		out, err := manager.ExportWallet(ctx, *owner, *address)
		if err != nil {
			fatal("export wallet: %v", err)
		}
		fmt.Println(out)

	case "delete":
		requireFlag(*owner, "-owner")
		requireFlag(*address, "-address")
		if err := manager.DeleteWallet(ctx, *owner, *address); err != nil {
			fatal("delete wallet: %v", err)
		}
		fmt.Printf("deleted %s\n", *address)

	case "default":
		requireFlag(*owner, "-owner")
		requireFlag(*address, "-address")
		if err := manager.SetDefault(ctx, *owner, *address); err != nil {
			fatal("set default: %v", err)
		}
		fmt.Printf("default is now %s\n", *address)

	case "history":
		requireFlag(*owner, "-owner")
		rec := ledger.NewRecorder(ledger.RecorderConfig{Store: ledgerStore, Wallets: store})
		entries, err := rec.ListByOwner(ctx, *owner, *limit)
		if err != nil {
			fatal("list ledger: %v", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tKIND\tSTATUS\tIN\tOUT\tTAX\tSIGNATURE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.6f %s\t%.6f\t%.6f\t%s\n",
				e.CreatedAt.Format(time.RFC3339), e.Kind, e.Status,
				e.AmountIn, e.AssetIn, e.AmountOut, e.TaxAmount, e.Signature)
		}
		tw.Flush()

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// runMigrate applies Postgres and, when configured, ClickHouse migrations.
func runMigrate(ctx context.Context, cfg *config.Config) {
	if cfg.UseMemory {
		fatal("migrate requires database DSNs, not USE_MEMORY")
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		fatal("migrate postgres: %v", err)
	}
	fmt.Println("postgres migrations applied")

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			fatal("migrate clickhouse: %v", err)
		}
		conn.Close()
		fmt.Println("clickhouse migrations applied")
	}
}

// openStores connects the wallet and ledger stores per configuration.
func openStores(ctx context.Context, cfg *config.Config) (storage.WalletStore, storage.LedgerStore, func()) {
	if cfg.UseMemory {
		return memory.NewWalletStore(), memory.NewLedgerStore(), func() {}
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal("connect postgres: %v", err)
	}
	return pgstore.NewWalletStore(pool), pgstore.NewLedgerStore(pool), pool.Close
}

func requireFlag(value, name string) {
	if value == "" {
		fatal("%s is required", name)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
