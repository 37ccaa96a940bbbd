package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bartek5186/pos2cloud/internal/app"
)

const replHelp = "start | stop | reload | status | sync | pending | paths | quit"

func newRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Uruchom aplikację z HTTP API i konsolą poleceń",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(ctx); err != nil {
				return err
			}
			a.Log.Info().Msg("Aplikacja (CLI) uruchomiona")
			return repl(cmd, a, opts.Version)
		},
	}
}

// repl: prosta pętla poleceń w terminalu; kończy się na quit, EOF albo ctx.
func repl(cmd *cobra.Command, a *app.App, version string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "POS2CLOUD CLI", version)
	fmt.Fprintln(out, "API:", "http://"+a.Addr())
	fmt.Fprintln(out, "Komendy:", replHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		switch strings.TrimSpace(strings.ToLower(line)) {
		case "start":
			if err := a.Syncer.Start(ctx); err != nil {
				a.Log.Error().Err(err).Msg("Start error")
				fmt.Fprintln(out, "Błąd startu:", err)
				continue
			}
			fmt.Fprintln(out, "Start OK")
		case "stop":
			a.Syncer.Stop()
			fmt.Fprintln(out, "Zatrzymano")
		case "reload":
			if err := a.Reload(); err != nil {
				a.Log.Error().Err(err).Msg("Błąd reloadu")
				fmt.Fprintln(out, "Błąd reloadu:", err)
				continue
			}
			fmt.Fprintln(out, "Konfiguracja przeładowana")
		case "status":
			printStatus(cmd, a)
		case "sync":
			res := a.POS.FullSync(ctx)
			fmt.Fprintf(out, "Synchronizacja: %s (wysłane %d, błędy %d)\n", res.Status, res.Push.Synced, res.Push.Errors)
		case "pending":
			dead, err := a.POS.DeadOperations(ctx)
			if err != nil {
				fmt.Fprintln(out, "Błąd:", err)
				continue
			}
			for _, op := range dead {
				fmt.Fprintf(out, "#%d %s/%s %s: %s\n", op.ID, op.Table, op.OperationType, op.RecordID, op.LastError)
			}
			printStatus(cmd, a)
		case "paths":
			fmt.Fprintln(out, "Logi:", a.LogPath)
			fmt.Fprintln(out, "Config:", a.CfgPath)
			fmt.Fprintln(out, "Baza:", a.Local.Path)
		case "quit", "exit":
			return nil
		case "":
			// enter – ignoruj
		default:
			fmt.Fprintln(out, "Nieznana komenda. Użyj:", replHelp)
		}
	}
}

func printStatus(cmd *cobra.Command, a *app.App) {
	out := cmd.OutOrStdout()
	run := "ZATRZYMANY"
	if a.Syncer.IsRunning() {
		run = "DZIAŁA"
	}
	net := "offline"
	if a.Net.Online() {
		net = "online"
	}
	st, err := a.POS.Status(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, "Błąd:", err)
		return
	}
	fmt.Fprintf(out, "Status: %s, sieć: %s, oczekujące: %d, odłożone: %d\n", run, net, st.Pending, st.Dead)
}
