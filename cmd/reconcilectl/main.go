package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Govind-619/paysync/app"
	"github.com/Govind-619/paysync/config"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/utils"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "reconcilectl",
		Short:   "Operate the payment reconciliation engine",
		Version: Version,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(resyncCmd())
	rootCmd.AddCommand(logsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads config, wires the services and closes them after fn
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := utils.InitLogger(cfg.LogDir, false); err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail pending payments older than the pending timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				n, err := a.Poller.SweepTimeouts(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Timed out %d payment(s)\n", n)
				return nil
			})
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll [payment-id]",
		Short: "Query the gateway for one payment, or for every due payment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				if len(args) == 0 {
					n, err := a.Poller.PollOnce(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Polled %d payment(s)\n", n)
					return nil
				}
				res, err := a.Poller.PollPayment(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync <payment-id>",
		Short: "Re-apply a settled payment's status to its order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				res, err := a.Engine.Resync(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func inspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <payment-id>",
		Short: "Show a payment and its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				p, err := a.Payments.FindByID(cmd.Context(), args[0])
				if err != nil {
					return utils.WrapError(err, "payment "+args[0])
				}
				entries, err := p.AuditLog()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]interface{}{"payment": p, "audit": entries})
				}
				printPayment(cmd.OutOrStdout(), p, entries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printResult(w io.Writer, res reconcile.Result) {
	fmt.Fprintf(w, "%s: %s (%s)\n", res.Payment.ID, res.Payment.Status, res.Outcome)
}

func printPayment(w io.Writer, p *models.Payment, entries []models.AuditEntry) {
	fmt.Fprintf(w, "Payment:   %s\n", p.ID)
	fmt.Fprintf(w, "Status:    %s\n", p.Status)
	fmt.Fprintf(w, "Amount:    %s (%s)\n", p.Amount.StringFixed(2), p.Method)
	fmt.Fprintf(w, "Reference: %s\n", valueOrDefault(p.ProviderRef(), "none"))
	if p.OrderRef != nil {
		fmt.Fprintf(w, "Order:     %d\n", *p.OrderRef)
	} else {
		fmt.Fprintln(w, "Order:     none")
	}
	fmt.Fprintf(w, "Polls:     %d\n", p.PollCount)
	fmt.Fprintf(w, "Created:   %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "\nAudit log (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s  %-15s %s\n", e.At.Format("2006-01-02 15:04:05.000"), e.Source, string(e.Payload))
	}
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
