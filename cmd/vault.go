package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stealthguard/anonycore/internal/vaultstore"
)

// NewVaultCommand groups vault diagnostics (spec §4.2 iter_column, not
// part of the per-cell API but needed for operators to inspect a vault).
func NewVaultCommand() *cobra.Command {
	vaultCmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect the mapping vault",
	}
	vaultCmd.AddCommand(newVaultStatsCommand())
	return vaultCmd
}

func newVaultStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats COLUMN",
		Short: "Count mapping entries recorded for a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, _, err := openSchedule()
			if err != nil {
				return err
			}
			vault, err := openVault(schedule)
			if err != nil {
				return err
			}
			defer vault.Close()

			count := 0
			err = vault.IterColumn(args[0], func(vaultstore.Entry) bool {
				count++
				return true
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d entries\n", args[0], count)
			return nil
		},
	}
}
