// Package cli zawiera komendy cobra: interaktywny `run` oraz jednorazowe
// `sync`, `pull`, `pending`, `provision`.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bartek5186/pos2cloud/internal/app"
	"github.com/bartek5186/pos2cloud/internal/logs"
)

type RootOptions struct {
	Dir     string
	Verbose bool
	JSON    bool
	Version string
}

func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           app.Name,
		Short:         "POS offline-first z synchronizacją do chmury",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "katalog danych (domyślnie w katalogu konfiguracji użytkownika)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "logi na konsolę")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "wynik jako JSON")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newPullCommand(opts))
	cmd.AddCommand(newPendingCommand(opts))
	cmd.AddCommand(newProvisionCommand(opts))
	return cmd
}

// open składa aplikację dla komendy. Komendy jednorazowe logują tylko
// przy --verbose, żeby nie mieszać logów z wynikiem.
func open(ctx context.Context, opts *RootOptions, interactive bool) (*app.App, error) {
	o := app.Options{Dir: opts.Dir, Console: opts.Verbose}
	if !interactive {
		l := zerolog.Nop()
		if opts.Verbose {
			l = logs.Console()
		}
		o.Logger = &l
	}
	return app.New(ctx, o)
}

// render: JSON przy --json, inaczej tekst z text().
func render(w io.Writer, opts *RootOptions, v any, text func() string) error {
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text())
	return err
}
