package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/patchops/eks-inventory/cmd"
	"github.com/patchops/eks-inventory/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "eks-inventory",
		Short:         "Multi-account EKS node fleet inventory and patch-status reporting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cmd.NewAnalyzeCmd())
	rootCmd.AddCommand(cmd.NewValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrPartial) {
			os.Exit(3)
		}
		logging.Critical("%v", err)
		os.Exit(1)
	}
}
