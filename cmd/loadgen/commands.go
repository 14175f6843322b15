package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/learnmatch/internal/loadgen"
	"github.com/okian/learnmatch/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "loadgen",
		Short:        "Synthetic learner traffic for learnmatch",
		SilenceUsage: true,
	}
	root.PersistentFlags().Int("users", loadgen.DefaultUsers, "Number of synthetic learners")
	root.PersistentFlags().Int64("first-user-id", 1, "User id of the first learner")
	root.PersistentFlags().Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			return logger.SetLevelString("debug")
		}
		return nil
	}

	root.AddCommand(newRunCmd(), newGenerateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit learners to a running service and check their classifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &loadgen.Config{}
			f := cmd.Flags()
			cfg.BaseURL, _ = f.GetString("url")
			cfg.Workers, _ = f.GetInt("workers")
			cfg.Timeout, _ = f.GetDuration("timeout")
			cfg.Wait, _ = f.GetDuration("wait")
			cfg.OutputFile, _ = f.GetString("output")
			cfg.Users, _ = f.GetInt("users")
			cfg.FirstUserID, _ = f.GetInt64("first-user-id")
			cfg.Seed, _ = f.GetUint64("seed")

			stats, err := loadgen.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted %d/%d, classified %d, agreement %.1f%%\n",
				stats.Accepted, stats.Generated, stats.Classified, stats.Agreement()*100)
			return nil
		},
	}
	cmd.Flags().String("url", loadgen.DefaultBaseURL, "Base URL of the service")
	cmd.Flags().Int("workers", runtime.NumCPU()*2, "Concurrent HTTP workers")
	cmd.Flags().Duration("timeout", loadgen.DefaultTimeout, "Per-request timeout")
	cmd.Flags().Duration("wait", loadgen.DefaultWait, "Pause between submitting and verifying")
	cmd.Flags().String("output", "", "Write the submitted requests to this JSON file")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic labelled profiles as a YAML seed file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			out, _ := f.GetString("out")
			users, _ := f.GetInt("users")
			first, _ := f.GetInt64("first-user-id")
			seed, _ := f.GetUint64("seed")
			if users <= 0 || first <= 0 {
				return fmt.Errorf("%w: users and first-user-id must be positive", loadgen.ErrInvalidConfig)
			}

			now := time.Now()
			profiles, err := loadgen.Profiles(cmd.Context(), loadgen.NewGenerator(seed, now).Generate(users, first), now)
			if err != nil {
				return err
			}
			if err := loadgen.WriteSeedFile(out, profiles); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d profiles to %s\n", len(profiles), out)
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "seed.yaml", "Seed file path")
	return cmd
}
