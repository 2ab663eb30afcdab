package main

import (
	"context"
	"errors"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"epics/internal/domain"
	"epics/internal/session"
	"epics/internal/web"
)

var (
	uiAddr      string
	mintConnect bool
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Serve the minting page",
	Long:  "Serve the minting page on a loopback address and keep it in sync with the wallet and the chain.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			addr := a.cfg.HTTPAddr
			if uiAddr != "" {
				addr = uiAddr
			}

			srv, err := web.New(a.ctrl, addr, a.logger)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			pterm.Success.Printfln("Minting page at http://%s", srv.Addr())

			// Adopt an already-authorized account without prompting.
			if err := a.ctrl.CheckExistingSession(ctx); err != nil {
				a.logger.Warn("check existing session", zap.Error(err))
			}

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connected account, mint counts and owned tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.ctrl.CheckExistingSession(ctx); err != nil {
				return err
			}
			return printStatus(a.ctrl.Snapshot())
		})
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Ask the wallet for account access",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cancel, err := a.ctrl.OnNotice(printNotice)
			if err != nil {
				return err
			}
			defer cancel()

			if err := a.ctrl.Connect(ctx); err != nil {
				return err
			}
			return printStatus(a.ctrl.Snapshot())
		})
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint one Epic and wait for it to be mined",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cancelNotices, err := a.ctrl.OnNotice(printNotice)
			if err != nil {
				return err
			}
			defer cancelNotices()

			if mintConnect {
				err = a.ctrl.Connect(ctx)
			} else {
				err = a.ctrl.CheckExistingSession(ctx)
			}
			if err != nil {
				return err
			}
			if !a.ctrl.Snapshot().Connected() {
				return errors.New("no authorized account: run \"epics connect\" or pass --connect")
			}

			spinner := startSpinner(a.logger, "Confirm the transaction in your wallet...")
			cancelState, err := a.ctrl.OnState(func(s session.Snapshot) {
				if spinner != nil && s.MintPhase == domain.MintMining {
					spinner.UpdateText("Mining... please wait.")
				}
			})
			if err != nil {
				return err
			}
			defer cancelState()

			err = a.ctrl.Mint(ctx)
			if spinner != nil {
				if err != nil {
					spinner.Fail("Mint failed")
				} else {
					spinner.Success("Mined!")
				}
			}
			if err != nil {
				return err
			}
			return printStatus(a.ctrl.Snapshot())
		})
	},
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List the Epics owned by the connected account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.ctrl.CheckExistingSession(ctx); err != nil {
				return err
			}
			snap := a.ctrl.Snapshot()
			if !snap.Connected() {
				return errors.New("no authorized account: run \"epics connect\" first")
			}
			return printGallery(snap)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print new mints as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cancel, err := a.ctrl.OnNotice(printNotice)
			if err != nil {
				return err
			}
			defer cancel()

			if err := a.ctrl.CheckExistingSession(ctx); err != nil {
				return err
			}
			if !a.ctrl.Snapshot().Connected() {
				return errors.New("no authorized account: run \"epics connect\" first")
			}

			pterm.Info.Println("Watching for new mints. Press Ctrl+C to stop.")
			<-ctx.Done()
			return nil
		})
	},
}

func init() {
	uiCmd.Flags().StringVar(&uiAddr, "addr", "", "Loopback listen address (EPICS_HTTP_ADDR)")
	mintCmd.Flags().BoolVar(&mintConnect, "connect", false, "Prompt the wallet for access before minting")
}

// startSpinner returns nil when the terminal cannot render one.
func startSpinner(logger *zap.Logger, text string) *pterm.SpinnerPrinter {
	spinner, err := pterm.DefaultSpinner.WithText(text).Start()
	if err != nil {
		logger.Debug("spinner unavailable", zap.Error(err))
		return nil
	}
	return spinner
}
