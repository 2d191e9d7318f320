package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stealthguard/anonycore/internal/config"
)

// NewAnonymizeCommand exposes a single-cell anonymize(column, value)
// call for scripting and manual testing (spec §6 per-cell API).
func NewAnonymizeCommand() *cobra.Command {
	var mode string

	anonymizeCmd := &cobra.Command{
		Use:   "anonymize COLUMN VALUE",
		Short: "Anonymize a single cell value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine(parseMode(modeOrDefault(mode)))
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := eng.Anonymize(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}

	anonymizeCmd.Flags().StringVar(&mode, "mode", "", "fake|fpe|hmac|hybrid (default: configured anonymize.mode)")
	return anonymizeCmd
}

// NewDeanonymizeCommand exposes the reverse lookup (spec §6
// deanonymize). It prints nothing and exits nonzero if no mapping is
// found, matching the spec's "string | null" contract.
func NewDeanonymizeCommand() *cobra.Command {
	var mode string

	deanonymizeCmd := &cobra.Command{
		Use:   "deanonymize COLUMN VALUE",
		Short: "Recover the original value for an anonymized cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine(parseMode(modeOrDefault(mode)))
			if err != nil {
				return err
			}
			defer closeFn()

			original, found, err := eng.Deanonymize(args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no mapping found for column %q", args[0])
			}
			fmt.Println(original)
			return nil
		},
	}

	deanonymizeCmd.Flags().StringVar(&mode, "mode", "", "fake|fpe|hmac|hybrid (default: configured anonymize.mode)")
	return deanonymizeCmd
}

func modeOrDefault(flag string) string {
	if flag != "" {
		return flag
	}
	return config.Get().Anonymize.Mode
}
