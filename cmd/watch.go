package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/walletkit/stellar-kit/internal/apptracker"
	"github.com/walletkit/stellar-kit/internal/apptracker/dryrun"
	"github.com/walletkit/stellar-kit/internal/apptracker/sentry"
	"github.com/walletkit/stellar-kit/internal/metrics"
	"github.com/walletkit/stellar-kit/internal/wallet"
	"github.com/walletkit/stellar-kit/pkg/kit"
)

type watchCmd struct{}

func (c *watchCmd) Command() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STELLAR_KIT")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync an account and print balance and operation deltas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), v)
		},
	}

	cmd.Flags().String("account-id", "", "Public key of the account to sync")
	cmd.Flags().String("wallet-id", "default", "Wallet id namespacing the local database")
	cmd.Flags().String("data-dir", defaultDataDir(), "Directory holding the wallet databases")
	cmd.Flags().Bool("testnet", false, "Sync against the test network")
	cmd.Flags().String("horizon-url", "", "Horizon base URL override")
	cmd.Flags().Int("max-backfill-pages", 0, "Backfill page cap per sync invocation (0 = default)")
	cmd.Flags().Duration("sync-interval", 30*time.Second, "Periodic sync trigger interval")
	cmd.Flags().String("sentry-dsn", "", "Sentry DSN for error reporting (empty disables it)")
	cmd.Flags().String("metrics-address", "", "Listen address for the Prometheus endpoint (empty disables it)")
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		log.Fatalf("Error binding watch flags: %s", err.Error())
	}
	return cmd
}

func (c *watchCmd) run(ctx context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appTracker, err := newAppTracker(v.GetString("sentry-dsn"), v.GetBool("testnet"))
	if err != nil {
		return fmt.Errorf("initializing app tracker: %w", err)
	}

	metricsService := metrics.NewMetricsService()
	if address := v.GetString("metrics-address"); address != "" {
		http.Handle("/metrics", promhttp.HandlerFor(metricsService.GetRegistry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(address, nil); err != nil {
				log.Ctx(ctx).Errorf("starting metrics server: %v", err)
			}
		}()
	}

	k, err := kit.New(ctx, kit.Config{
		AccountID:        v.GetString("account-id"),
		WalletID:         v.GetString("wallet-id"),
		DataDir:          v.GetString("data-dir"),
		Testnet:          v.GetBool("testnet"),
		HorizonURL:       v.GetString("horizon-url"),
		MaxBackfillPages: v.GetInt("max-backfill-pages"),
		AppTracker:       appTracker,
		MetricsService:   metricsService,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := k.Close(); err != nil {
			log.Ctx(ctx).Errorf("closing kit: %v", err)
		}
	}()

	accounts, unsubAccounts := k.AccountPublisher()
	defer unsubAccounts()
	operations, unsubOperations := k.OperationPublisher(wallet.TagQuery{})
	defer unsubOperations()
	added, unsubAdded := k.AddedAssetPublisher()
	defer unsubAdded()
	states, unsubStates := k.SyncStatePublisher()
	defer unsubStates()

	k.StartOperationStream(ctx)
	k.Sync(ctx)

	ticker := time.NewTicker(v.GetDuration("sync-interval"))
	defer ticker.Stop()

	log.Ctx(ctx).Infof("watching %s", k.ReceiveAddress())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			k.Sync(ctx)
		case state := <-states:
			log.Ctx(ctx).Infof("sync state: %s", state)
		case account := <-accounts:
			log.Ctx(ctx).Infof("balance: %s XLM (%s available), %d assets",
				account.NativeBalance(), account.AvailableBalance(), len(account.Balances))
		case assets := <-added:
			for _, asset := range assets {
				log.Ctx(ctx).Infof("received asset: %s", asset.ID())
			}
		case info := <-operations:
			for _, op := range info.Operations {
				log.Ctx(ctx).Infof("operation %s (%s) initial=%t", op.ID, op.Type(), info.Initial)
			}
		}
	}
}

// newAppTracker selects the error sink for the watch loop: Sentry when a DSN
// is configured, a dry run otherwise.
func newAppTracker(sentryDSN string, testnet bool) (apptracker.AppTracker, error) {
	if sentryDSN == "" {
		return &dryrun.DryRunTracker{}, nil
	}
	environment := "pubnet"
	if testnet {
		environment = "testnet"
	}
	return sentry.NewSentryTracker(sentryDSN, environment, 5)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.stellar-kit"
}
