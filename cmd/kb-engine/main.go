// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the kb-engine CLI.
// See docs/ARCHITECTURE § Pipeline Interface, § Project Structure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/kb-engine/internal/awsenv"
	"github.com/pdiddy/kb-engine/internal/registry"
	"github.com/pdiddy/kb-engine/internal/secrets"
	"github.com/pdiddy/kb-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds per-workspace overrides loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the kb-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "kb-engine",
	Short: "Provision and query Amazon Bedrock Knowledge Bases",
	Long: `kb-engine provisions an Amazon Bedrock Knowledge Base end to end: the S3
data buckets, the IAM service role, the OpenSearch Serverless vector
collection and index, the knowledge base itself, and its data sources.

Each lifecycle step is a subcommand: provision, upload, ingest, query,
status, and teardown. Credentials come from the shared AWS config; for
SSO profiles run "aws sso login" first.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./kb-engine.yaml or ~/.config/kb-engine/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "AWS shared-config profile (default: AWS_PROFILE)")
	rootCmd.PersistentFlags().String("region", "", "AWS region override")
	rootCmd.PersistentFlags().String("workspace", ".kb-engine", "directory for the local resource registry")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("kb-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kb-engine"))
		}
	}

	viper.SetEnvPrefix("KB_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// awsConfigFromFlags assembles the session settings shared by every
// AWS-facing subcommand. Flags win over .secrets/ overrides, which win
// over the config file.
func awsConfigFromFlags(cmd *cobra.Command) types.AWSConfig {
	profile, _ := cmd.Flags().GetString("profile")
	region, _ := cmd.Flags().GetString("region")

	return types.AWSConfig{
		Profile: firstNonEmpty(profile, loadedSecrets["aws-profile"], viper.GetString("aws.profile")),
		Region:  firstNonEmpty(region, loadedSecrets["aws-region"], viper.GetString("aws.region")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// workspaceDir returns the --workspace directory holding local state.
func workspaceDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("workspace")
	if dir == "" {
		dir = ".kb-engine"
	}
	return dir
}

// openRegistry opens the stack registry under the --workspace directory.
func openRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	return registry.Open(workspaceDir(cmd))
}

// resolveStack finds the stack named by --kb-name, or the most recently
// provisioned stack when the flag is empty.
func resolveStack(ctx context.Context, cmd *cobra.Command, reg *registry.Registry) (*types.StackRecord, error) {
	kbName, _ := cmd.Flags().GetString("kb-name")
	if kbName != "" {
		return reg.Get(ctx, kbName)
	}
	rec, err := reg.Latest(ctx)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("no provisioned stack found: run \"kb-engine provision\" first")
	}
	return rec, err
}

// newSession loads AWS credentials and resolves the caller identity.
func newSession(ctx context.Context, cmd *cobra.Command) (*awsenv.Session, error) {
	return awsenv.Load(ctx, awsConfigFromFlags(cmd))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
