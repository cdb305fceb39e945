package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// withApp runs fn against a fully wired app, for one-shot ops commands.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		return err
	}
	// Jobs enqueued by the command run before exit when there is no broker.
	if a.memQueue != nil {
		a.memQueue.Drain(ctx, a.dispatcher)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func accumulationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accumulation",
		Short: "Payer accumulation files",
	}

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate accumulation files for one payer or all payers",
		RunE: func(cmd *cobra.Command, args []string) error {
			payer, _ := cmd.Flags().GetString("payer")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return withApp(func(ctx context.Context, a *app) error {
				svc := a.accumulation
				payers := svc.Profiles().Names()
				if payer != "" {
					payers = []string{payer}
				}
				for _, p := range payers {
					now := svc.Now()
					if dryRun {
						data, rowErrs, err := svc.Preview(ctx, p, now)
						if err != nil {
							return err
						}
						for _, re := range rowErrs {
							fmt.Fprintf(os.Stderr, "%s: row %s: %s\n", p, re.MappingID, re.Reason)
						}
						if len(data) == 0 {
							fmt.Fprintf(os.Stderr, "%s: nothing to send\n", p)
							continue
						}
						os.Stdout.Write(data)
						fmt.Println()
						continue
					}
					rep, rowErrs, err := svc.GenerateFile(ctx, p, now)
					if err != nil {
						return err
					}
					if err := printJSON(map[string]any{"payer": p, "report": rep, "row_errors": rowErrs}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	gen.Flags().String("payer", "", "Payer profile name (default: every profile)")
	gen.Flags().Bool("dry-run", false, "Print the file without storing it or updating rows")
	cmd.AddCommand(gen)
	return cmd
}

func alegeusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alegeus",
		Short: "Alegeus reconciliation",
	}

	syncTx := &cobra.Command{
		Use:   "sync-transactions",
		Short: "Reconcile a wallet's card transactions and claim statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("wallet")
			walletID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("--wallet must be a uuid: %w", err)
			}
			return withApp(func(ctx context.Context, a *app) error {
				if a.alegeus == nil {
					return fmt.Errorf("ALEGEUS_BASE_URL is not configured")
				}
				txRes, err := a.alegeus.SyncTransactions(ctx, walletID)
				if err != nil {
					return err
				}
				claimRes, err := a.alegeus.SyncClaimStatus(ctx, walletID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"transactions": txRes, "claims": claimRes})
			})
		},
	}
	syncTx.Flags().String("wallet", "", "Wallet id")
	_ = syncTx.MarkFlagRequired("wallet")
	cmd.AddCommand(syncTx)
	return cmd
}
