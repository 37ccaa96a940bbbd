package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bartek5186/pos2cloud/internal/pos"
	"github.com/bartek5186/pos2cloud/internal/remote"
)

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Wyślij oczekujące operacje i pobierz stan z chmury",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Net.Check(ctx)
			res := a.POS.FullSync(ctx)
			return render(cmd.OutOrStdout(), opts, res, func() string {
				return fmt.Sprintf("status: %s, wysłane: %d, błędy: %d, pobrane produkty: %d, oczekujące: %d",
					res.Status, res.Push.Synced, res.Push.Errors, res.Pull.Products, res.Pending)
			})
		},
	}
}

func newPullCommand(opts *RootOptions) *cobra.Command {
	var reload bool
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pobierz stan z chmury (--reload: wyczyść bazę lokalną)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Net.Check(ctx)
			if reload {
				res, err := a.POS.ReloadFromCloud(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts, res, func() string {
					return fmt.Sprintf("przeładowano: %d produktów, %d wpisów historii", res.Products, res.History)
				})
			}
			res := a.Syncer.SyncFromCloud(ctx)
			if res.Err != nil {
				return res.Err
			}
			if res.Reason != "" {
				return fmt.Errorf("pull: %s", res.Reason)
			}
			return render(cmd.OutOrStdout(), opts, res, func() string {
				return fmt.Sprintf("pobrano: %d produktów, %d wpisów historii, zachowane lokalne: %d",
					res.Products, res.History, res.Kept)
			})
		},
	}
	cmd.Flags().BoolVar(&reload, "reload", false, "usuń dane lokalne (także niewysłane) i pobierz wszystko")
	return cmd
}

func newPendingCommand(opts *RootOptions) *cobra.Command {
	var requeue bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Pokaż kolejkę operacji i operacje odłożone (dead)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if requeue {
				n, err := a.POS.RequeueDead(ctx)
				if err != nil {
					return err
				}
				if err := render(cmd.OutOrStdout(), opts, map[string]int64{"requeued": n}, func() string {
					return fmt.Sprintf("przywrócono do kolejki: %d", n)
				}); err != nil {
					return err
				}
			}

			st, err := a.POS.Status(ctx)
			if err != nil {
				return err
			}
			dead, err := a.POS.DeadOperations(ctx)
			if err != nil {
				return err
			}
			out := struct {
				pos.Status
				DeadOps any `json:"dead_operations"`
			}{st, dead}
			return render(cmd.OutOrStdout(), opts, out, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "oczekujące: %d, odłożone: %d", st.Pending, st.Dead)
				for _, op := range dead {
					fmt.Fprintf(&b, "\n  #%d %s/%s %s (prób: %d) %s",
						op.ID, op.Table, op.OperationType, op.RecordID, op.Attempts, op.LastError)
				}
				return b.String()
			})
		},
	}
	cmd.Flags().BoolVar(&requeue, "requeue", false, "przywróć odłożone operacje do kolejki")
	return cmd
}

func newProvisionCommand(opts *RootOptions) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Załóż schemat zdalny (tabele, decrement_stock, triggery zmian)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if channel == "" {
				channel = a.Cfg.Realtime.Channel
			}
			if err := a.Remote.Provision(ctx, channel); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, map[string]string{"driver": a.Remote.Driver(), "channel": channel}, func() string {
				return fmt.Sprintf("schemat %s gotowy", a.Remote.Driver())
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "kanał powiadomień (domyślnie realtime.channel, potem "+remote.DefaultChannel+")")
	return cmd
}
