package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewProfileCommand anonymizes a batch of column=value pairs and then
// prints the run profile document (spec §6: "Anonymization parameters
// serialized per run"), so a caller can inspect what the detector
// decided before trusting the output.
func NewProfileCommand() *cobra.Command {
	var mode string

	profileCmd := &cobra.Command{
		Use:   "profile COLUMN=VALUE [COLUMN=VALUE...]",
		Short: "Anonymize sample cells and print the resulting run profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine(parseMode(modeOrDefault(mode)))
			if err != nil {
				return err
			}
			defer closeFn()

			for _, pair := range args {
				column, value, ok := splitPair(pair)
				if !ok {
					return fmt.Errorf("invalid COLUMN=VALUE argument: %q", pair)
				}
				if _, err := eng.Anonymize(column, value); err != nil {
					return err
				}
			}

			doc := eng.RunProfile()
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	profileCmd.Flags().StringVar(&mode, "mode", "", "fake|fpe|hmac|hybrid (default: configured anonymize.mode)")
	return profileCmd
}

func splitPair(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
