package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newVisitsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visits",
		Short: "Page visit records",
	}
	var olderThan time.Duration
	prune := &cobra.Command{
		Use:     "prune",
		Short:   "Delete visits older than the given age",
		Example: "  cmsctl visits prune --older-than 2160h",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = rt.cfg.Analytics.Retention
			}
			if olderThan <= 0 {
				return fmt.Errorf("visits prune requires --older-than")
			}
			n, err := rt.visits.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d visits older than %s\n", n, olderThan)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (defaults to analytics.retention)")
	cmd.AddCommand(prune)
	return cmd
}

func newMFACommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "MFA secret maintenance",
	}
	var (
		dryRun  bool
		confirm bool
		limit   int
	)
	seal := &cobra.Command{
		Use:   "seal-secrets",
		Short: "Encrypt MFA secrets stored before crypto.key_encryption_key was configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.Crypto.KeyEncryptionKey == "" {
				return fmt.Errorf("crypto.key_encryption_key must be set in config.yaml before sealing secrets")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			ids, err := rt.users.PlaintextSecrets(ctx, limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, "No plaintext secrets found.")
				return nil
			}
			if dryRun {
				fmt.Fprintf(out, "Dry run: %d accounts would be sealed\n", len(ids))
				for _, id := range ids {
					fmt.Fprintf(out, " - id=%s\n", id)
				}
				return nil
			}
			if !confirm {
				fmt.Fprintf(out, "About to encrypt secrets of %d accounts. This is irreversible without a backup.\n", len(ids))
				fmt.Fprint(out, "Type 'yes' to continue: ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}
			n, err := rt.users.SealSecrets(ctx, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sealed secrets of %d accounts\n", n)
			return nil
		},
	}
	seal.Flags().BoolVar(&dryRun, "dry-run", false, "Report affected accounts without writing")
	seal.Flags().BoolVar(&confirm, "yes", false, "Skip the confirmation prompt")
	seal.Flags().IntVar(&limit, "limit", 0, "Maximum accounts to process (0 for all)")
	cmd.AddCommand(seal)
	return cmd
}
