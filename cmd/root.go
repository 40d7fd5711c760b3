package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stellar/go-stellar-sdk/support/log"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stellar-kit",
	Short: "Stellar wallet sync kit",
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		levelName, err := cmd.Flags().GetString("log-level")
		if err != nil {
			log.Fatalf("Error reading log-level flag: %s", err.Error())
		}
		level, err := logrus.ParseLevel(levelName)
		if err != nil {
			log.Fatalf("Invalid log level %q: %s", levelName, err.Error())
		}
		log.DefaultLogger.SetLevel(level)
	},
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Fatalf("Error calling help command: %s", err.Error())
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatalf("Error executing root command: %s", err.Error())
	}
}

func init() {
	log.DefaultLogger = log.New()
	rootCmd.PersistentFlags().String("log-level", "info", "Log severity (trace, debug, info, warn, error)")

	rootCmd.AddCommand((&watchCmd{}).Command())
	rootCmd.AddCommand((&migrateCmd{}).Command())
}
