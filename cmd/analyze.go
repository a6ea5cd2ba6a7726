// Package cmd defines the CLI surface: the analyze run itself plus a
// worklist validation helper.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/patchops/eks-inventory/internal/aws/s3"
	"github.com/patchops/eks-inventory/internal/awsauth"
	"github.com/patchops/eks-inventory/internal/config"
	"github.com/patchops/eks-inventory/internal/inventory"
	"github.com/patchops/eks-inventory/internal/kube"
	"github.com/patchops/eks-inventory/internal/logging"
	"github.com/patchops/eks-inventory/internal/orchestrator"
)

// ErrPartial signals that the run finished with some units failed. The
// report was still written; main maps this to exit code 3.
var ErrPartial = errors.New("run completed with failures")

type analyzeFlags struct {
	input         string
	output        string
	authMode      string
	baseProfile   string
	s3Bucket      string
	s3Prefix      string
	skipS3        bool
	skipReadiness bool
	concurrency   int
	verbose       bool
}

func NewAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Inventory EKS node fleets across accounts and report patch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "accounts CSV (account_id,role_name,region)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "eks_inventory.csv", "report CSV path")
	cmd.Flags().StringVar(&flags.authMode, "auth", "", "auth strategy: profile or assume-role")
	cmd.Flags().StringVar(&flags.baseProfile, "base-profile", "", "profile for the assume-role base identity")
	cmd.Flags().StringVar(&flags.s3Bucket, "s3-bucket", "", "upload the report to this bucket")
	cmd.Flags().StringVar(&flags.s3Prefix, "s3-prefix", "", "object key prefix for the upload")
	cmd.Flags().BoolVar(&flags.skipS3, "skip-s3", false, "keep the report local even when a bucket is configured")
	cmd.Flags().BoolVar(&flags.skipReadiness, "skip-readiness", false, "skip the control-plane readiness probe")
	cmd.Flags().IntVarP(&flags.concurrency, "concurrency", "c", 0, "account/region units processed in parallel")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runAnalyze(ctx context.Context, flags analyzeFlags) error {
	logging.SetVerbose(flags.verbose)
	silenceKubeLogs()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	authMode, baseProfile := cfg.MergeAuth(flags.authMode, flags.baseProfile)
	bucket, prefix := cfg.MergeS3(flags.s3Bucket, flags.s3Prefix)

	targets, err := inventory.LoadTargets(flags.input)
	if err != nil {
		return err
	}
	logging.Info("loaded %d account targets from %s", len(targets), flags.input)

	provider, err := buildProvider(ctx, authMode, baseProfile)
	if err != nil {
		return &orchestrator.FatalAuthError{Err: err}
	}

	opts := orchestrator.Options{
		Provider: provider,
		Workers:  cfg.Workers(flags.concurrency),
	}
	if !flags.skipReadiness {
		opts.Probe = kube.NewProbe()
	}

	summary, records, err := orchestrator.New(opts).Run(ctx, targets)
	if err != nil {
		return err
	}

	if err := inventory.SaveReport(flags.output, records); err != nil {
		return err
	}
	logging.Success("report written: %s (%d records)", flags.output, summary.Records)

	if bucket != "" && !flags.skipS3 {
		if err := uploadReport(ctx, bucket, prefix, flags.output); err != nil {
			logging.Error("upload failed, report kept locally: %v", err)
			summary.Failures = append(summary.Failures, orchestrator.UnitFailure{Err: err})
		}
	}

	logging.Info("units: %d processed, %d skipped, %d records",
		summary.Processed, summary.Skipped, summary.Records)

	if summary.Partial() {
		for _, f := range summary.Failures {
			logging.Warn("failure: %v", f)
		}
		return ErrPartial
	}
	return nil
}

func buildProvider(ctx context.Context, authMode, baseProfile string) (awsauth.Provider, error) {
	switch authMode {
	case "profile":
		return awsauth.NewProfileProvider(), nil
	case "assume-role":
		return awsauth.NewAssumeRoleProvider(ctx, baseProfile)
	default:
		return nil, fmt.Errorf("unknown auth mode %q, want profile or assume-role", authMode)
	}
}

func uploadReport(ctx context.Context, bucket, prefix, localPath string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS config for upload: %w", err)
	}
	url, err := s3.NewFromConfig(awsCfg).Upload(ctx, bucket, prefix, localPath)
	if err != nil {
		return err
	}
	logging.Success("report uploaded: %s", url)
	return nil
}

// silenceKubeLogs keeps client-go's logging out of the console stream.
func silenceKubeLogs() {
	klog.SetOutput(io.Discard)
	klog.LogToStderr(false)
}
