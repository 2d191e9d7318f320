package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stealthguard/anonycore/internal/config"
	"github.com/stealthguard/anonycore/internal/logger"
)

var (
	cfgFile string
	verbose bool
)

// NewRootCommand creates the root command for the anonycore CLI. The
// CLI is deliberately thin: flag parsing, interactive prompts and
// tabular I/O are out of scope for this core (spec §1 Explicitly out of
// scope); these subcommands exist only to exercise the library surface
// against single cells and to manage vault/key material.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "anonycore",
		Short: "Format-preserving data anonymization core",
		Long: `anonycore is the cryptographic core of a format-preserving data
anonymization engine.

It provides:
  - Deterministic, format-preserving anonymization keyed on a seed
  - An encrypted bidirectional mapping vault for reversible lookups
  - Single-cell anonymize/deanonymize commands for scripting and testing
  - Key and vault management commands

The bulk-data frontend (CSV/Excel streaming, reports) is not part of
this tool; it is expected to call the same library surface directly.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				viper.Set("log_level", "debug")
				logger.Init("debug", viper.GetString("log_format"))
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.anonycore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(NewKeygenCommand())
	rootCmd.AddCommand(NewAnonymizeCommand())
	rootCmd.AddCommand(NewDeanonymizeCommand())
	rootCmd.AddCommand(NewVaultCommand())
	rootCmd.AddCommand(NewProfileCommand())

	cobra.OnInitialize(initConfig)

	return rootCmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".anonycore")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// main has already loaded the default config; reload it from --config.
	if cfgFile != "" {
		cobra.CheckErr(config.Init())
	}
}
