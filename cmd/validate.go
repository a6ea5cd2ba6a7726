package cmd

import (
	"github.com/spf13/cobra"

	"github.com/patchops/eks-inventory/internal/inventory"
	"github.com/patchops/eks-inventory/internal/logging"
)

// NewValidateCmd checks a worklist CSV without touching AWS, so a bad file
// is caught before a long run is scheduled.
func NewValidateCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an accounts CSV without running the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := inventory.LoadTargets(input)
			if err != nil {
				return err
			}
			units := 0
			for _, t := range targets {
				units += len(t.Regions)
			}
			logging.Success("%s: %d valid accounts, %d account/region units", input, len(targets), units)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "accounts CSV (account_id,role_name,region)")
	cmd.MarkFlagRequired("input")

	return cmd
}
