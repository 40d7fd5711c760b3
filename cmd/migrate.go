package cmd

import (
	"context"
	"strconv"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/db"
	"github.com/walletkit/stellar-kit/pkg/kit"
)

type migrateCmd struct{}

func (c *migrateCmd) Command() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STELLAR_KIT")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration helpers for a wallet database",
	}
	cmd.PersistentFlags().String("wallet-id", "default", "Wallet id namespacing the local database")
	cmd.PersistentFlags().String("data-dir", defaultDataDir(), "Directory holding the wallet databases")
	cmd.PersistentFlags().Bool("testnet", false, "Use the test network database")
	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		log.Fatalf("Error binding migrate flags: %s", err.Error())
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Migrates the wallet database up [count] migrations",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := c.execute(cmd.Context(), v, migrate.Up, parseCount(args)); err != nil {
				log.Fatalf("Error executing migrate up: %v", err)
			}
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Migrates the wallet database down [count] migrations",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := c.execute(cmd.Context(), v, migrate.Down, parseCount(args)); err != nil {
				log.Fatalf("Error executing migrate down: %v", err)
			}
		},
	}

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func (c *migrateCmd) execute(ctx context.Context, v *viper.Viper, direction migrate.MigrationDirection, count int) error {
	dbPath := kit.DatabasePath(v.GetString("data-dir"), v.GetString("wallet-id"), v.GetBool("testnet"))
	applied, err := db.Migrate(ctx, dbPath, direction, count)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Infof("Applied %d migrations to %s", applied, dbPath)
	return nil
}

func parseCount(args []string) int {
	if len(args) == 0 {
		return 0
	}
	count, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatalf("Invalid [count] argument: %s", args[0])
	}
	return count
}
