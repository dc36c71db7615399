package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/deploy"
	"github.com/bengal-ssg/bengal/internal/security"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the built site to S3 and CloudFront",
	Long: "Sync the output directory to the configured S3 bucket, uploading only\n" +
		"changed files, then invalidate the CloudFront distribution if one is set.\n" +
		"Credentials come from the standard AWS environment and config files.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalExit(cmd, err)
		}
		if cfg.Deploy.Bucket == "" {
			return &exitError{code: 3, err: errors.New("no deploy bucket configured; set deploy.bucket in bengal.yaml")}
		}

		outDir := cfg.OutputPath()
		if _, err := os.Stat(outDir); errors.Is(err, fs.ErrNotExist) {
			return &exitError{code: 3, err: fmt.Errorf("output directory %s does not exist; run `bengal build` first", outDir)}
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context(),
			awsconfig.WithRegion(cfg.Deploy.Region))
		if err != nil {
			return &exitError{code: 3, err: fmt.Errorf("loading AWS configuration: %w", err)}
		}

		cfClient := cloudfront.NewFromConfig(awsCfg)

		var csp string
		if cfg.Deploy.Headers {
			csp = security.ProdPolicy(&cfg.Deploy.CSP).String()
		}

		d := deploy.NewDeployer(
			deploy.NewAWSS3Client(s3.NewFromConfig(awsCfg), cfg.Deploy.Bucket),
			deploy.NewAWSCloudFrontClient(cfClient),
			deploy.NewAWSCloudFrontFunctionClient(cfClient),
			deploy.NewAWSCloudFrontHeadersPolicyClient(cfClient),
			deploy.Options{
				Distribution: cfg.Deploy.Distribution,
				URLRewrite:   cfg.Deploy.URLRewrite,
				Headers:      cfg.Deploy.Headers,
				CSP:          csp,
				Logger:       newLogger(cmd, slog.LevelInfo),
			},
		)

		plan, err := d.BuildPlan(cmd.Context(), outDir)
		if err != nil {
			return &exitError{code: 3, err: fmt.Errorf("planning deploy: %w", err)}
		}

		out := cmd.OutOrStdout()
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			printDeployPlan(out, plan, cfg.Deploy.Distribution)
			return nil
		}

		res, err := d.Apply(cmd.Context(), plan)
		if err != nil {
			return &exitError{code: 3, err: err}
		}
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", e)
		}

		fmt.Fprintf(out, "Deployed to %s: %d uploaded, %d deleted, %d unchanged\n",
			cfg.Deploy.Bucket, res.Uploaded, res.Deleted, res.Skipped)
		if len(res.Errors) > 0 {
			return &exitError{code: 3, err: fmt.Errorf("%d deploy operation(s) failed", len(res.Errors))}
		}
		return nil
	},
}

func printDeployPlan(out io.Writer, plan *deploy.Plan, distribution string) {
	if !plan.Changed() {
		fmt.Fprintln(out, "Nothing to deploy; bucket is up to date.")
		return
	}
	for _, e := range plan.Uploads {
		fmt.Fprintf(out, "upload  %s (%s)\n", e.Path, e.ContentType)
	}
	for _, key := range plan.Deletes {
		fmt.Fprintf(out, "delete  %s\n", key)
	}
	fmt.Fprintf(out, "Plan: %d upload(s), %d delete(s), %d unchanged\n",
		len(plan.Uploads), len(plan.Deletes), plan.Skipped)
	if distribution != "" {
		fmt.Fprintf(out, "Would invalidate distribution %s\n", distribution)
	}
}

func init() {
	deployCmd.Flags().Bool("dry-run", false, "print the plan without touching the bucket")

	rootCmd.AddCommand(deployCmd)
}
