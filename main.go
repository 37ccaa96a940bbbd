//go:build windows && !dev

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getlantern/systray"

	"github.com/bartek5186/pos2cloud/internal/app"
	"github.com/bartek5186/pos2cloud/internal/notify"
)

// wersję możesz nadpisać przez: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	// kontekst sterujący życiem procesu (CTRL+C / zamknięcie sesji)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{})
	if err != nil {
		panic(err)
	}
	if err := a.Start(ctx); err != nil {
		a.Log.Error().Err(err).Msg("Start usług nieudany")
	}

	// jeśli proces dostanie sygnał – zatrzymaj wszystko i zamknij tray
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	systray.Run(func() { onReady(ctx, cancel, a) }, func() {
		a.Close()
		// onExit: daj chwilę loggerowi na flush
		time.Sleep(50 * time.Millisecond)
	})
}

func onReady(ctx context.Context, cancel context.CancelFunc, a *app.App) {
	systray.SetTitle("POS2CLOUD")
	setTooltip("")

	mStatus := systray.AddMenuItem("offline", "Stan połączenia i kolejki")
	mStatus.Disable()
	systray.AddSeparator()
	mSync := systray.AddMenuItem("Synchronizuj teraz", "Wyślij kolejkę i pobierz stan")
	mStart := systray.AddMenuItem("Start synchronizacji", "Uruchom harmonogram")
	mStop := systray.AddMenuItem("Stop synchronizacji", "Zatrzymaj harmonogram")
	if a.Syncer.IsRunning() {
		mStart.Disable()
	} else {
		mStop.Disable()
	}

	systray.AddSeparator()
	mOpenUI := systray.AddMenuItem("Otwórz POS", "Interfejs w przeglądarce")
	mOpenLogs := systray.AddMenuItem("Otwórz logi", "Pokaż plik log")
	mOpenCfg := systray.AddMenuItem("Ustawienia (config.json)", "Otwórz plik konfiguracyjny")
	mReload := systray.AddMenuItem("Przeładuj konfigurację", "Wczytaj ponownie config.json")
	systray.AddSeparator()
	mAbout := systray.AddMenuItem(fmt.Sprintf("O programie (%s)", ver), "")
	mQuit := systray.AddMenuItem("Wyjście", "Zamknij aplikację")

	events, unsub := a.Hub.Subscribe(16)
	refresh := func() {
		st, err := a.POS.Status(ctx)
		if err != nil {
			return
		}
		label := "offline"
		if st.Online {
			label = "online"
		}
		if st.Pending > 0 {
			label = fmt.Sprintf("%s, %d oczekujących", label, st.Pending)
		}
		if st.Dead > 0 {
			label = fmt.Sprintf("%s, %d odłożonych", label, st.Dead)
		}
		mStatus.SetTitle(label)
	}
	refresh()

	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return

			case ev := <-events:
				switch ev.Kind {
				case notify.NetworkChanged, notify.SyncStatus, notify.SyncPulse:
					refresh()
				}

			case <-mSync.ClickedCh:
				res := a.POS.FullSync(ctx)
				setTooltip(string(res.Status))
				refresh()

			case <-mStart.ClickedCh:
				if err := a.Syncer.Start(ctx); err != nil {
					a.Log.Error().Err(err).Msg("Start error")
					setTooltip("błąd startu")
					continue
				}
				mStart.Disable()
				mStop.Enable()
				setTooltip("działa")

			case <-mStop.ClickedCh:
				a.Syncer.Stop()
				mStop.Disable()
				mStart.Enable()
				setTooltip("zatrzymane")

			case <-mOpenUI.ClickedCh:
				openInExplorer("http://" + a.Addr())

			case <-mOpenLogs.ClickedCh:
				openInExplorer(a.LogPath)

			case <-mOpenCfg.ClickedCh:
				openInExplorer(a.CfgPath)

			case <-mReload.ClickedCh:
				if err := a.Reload(); err != nil {
					a.Log.Error().Err(err).Msg("Błąd reloadu")
				}

			case <-mAbout.ClickedCh:
				a.Log.Info().Msgf("POS2CLOUD %s | %s", ver, runtime.Version())

			case <-mQuit.ClickedCh:
				// łagodne zamykanie
				cancel()
				systray.Quit()
				return
			}
		}
	}()
}

func setTooltip(state string) {
	tip := fmt.Sprintf("POS2CLOUD %s", ver)
	if state != "" {
		tip += " — " + state
	}
	systray.SetTooltip(tip)
}

// przenośne otwieranie plików/katalogów w domyślnej aplikacji
func openInExplorer(path string) {
	switch runtime.GOOS {
	case "windows":
		// "start" musi być uruchomiony przez cmd /C, z pustym tytułem okna ""
		_ = exec.Command("cmd", "/C", "start", "", path).Start()
	case "darwin":
		_ = exec.Command("open", path).Start()
	default:
		_ = exec.Command("xdg-open", path).Start()
	}
}
