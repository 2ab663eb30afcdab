// Command epics mints Epic NFTs through a local wallet and serves the
// minting page on a loopback address.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"epics/internal/config"
	"epics/internal/contract"
	"epics/internal/ethereum"
	"epics/internal/gateway"
	"epics/internal/logging"
	"epics/internal/session"
)

// GlobalFlags override environment configuration when set.
type GlobalFlags struct {
	EnvFile   string
	WalletRPC string
	NodeRPC   string
	NodeWS    string
	Contract  string
	LogLevel  string
	LogFormat string
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "epics",
	Short: "Mint Epic NFTs with your wallet",
	Long: `epics connects to a wallet JSON-RPC provider, mints Epic NFTs and
shows the collection progress and the tokens you own.

Run "epics ui" to open the minting page, or use the subcommands below
from a terminal.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.EnvFile, "env-file", ".env", "Env file loaded before the environment is parsed")
	flags.StringVar(&globalFlags.WalletRPC, "wallet-rpc", "", "Wallet JSON-RPC endpoint (EPICS_WALLET_RPC)")
	flags.StringVar(&globalFlags.NodeRPC, "node-rpc", "", "Node JSON-RPC endpoint for reads (EPICS_NODE_RPC)")
	flags.StringVar(&globalFlags.NodeWS, "node-ws", "", "Node websocket endpoint for live mints (EPICS_NODE_WS)")
	flags.StringVar(&globalFlags.Contract, "contract", "", "Contract address (EPICS_CONTRACT_ADDRESS)")
	flags.StringVar(&globalFlags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (EPICS_LOG_LEVEL)")
	flags.StringVar(&globalFlags.LogFormat, "log-format", "", "Log format: console or json (EPICS_LOG_FORMAT)")

	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(mintCmd)
	rootCmd.AddCommand(galleryCmd)
	rootCmd.AddCommand(watchCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.EnvFile)
	if err != nil {
		return nil, err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.WalletRPC, globalFlags.WalletRPC)
	override(&cfg.NodeRPC, globalFlags.NodeRPC)
	override(&cfg.NodeWS, globalFlags.NodeWS)
	override(&cfg.ContractAddress, globalFlags.Contract)
	override(&cfg.LogLevel, globalFlags.LogLevel)
	override(&cfg.LogFormat, globalFlags.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the wired components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	gw     *gateway.EthGateway
	ctrl   *session.Controller
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return nil, err
	}

	binding, err := contract.New(cfg.ContractAddress)
	if err != nil {
		return nil, err
	}

	wallet := ethereum.NewHTTPClient(cfg.WalletRPC, ethereum.WithTimeout(cfg.WalletTimeout))

	var node ethereum.RPCClient
	if cfg.NodeRPC != "" {
		node = ethereum.NewHTTPClient(cfg.NodeRPC)
	}

	var dial gateway.Dialer
	if cfg.NodeWS != "" {
		wsCfg := ethereum.DefaultWSConfig()
		dial = gateway.WSDialer(cfg.NodeWS, &wsCfg, logger)
	}

	gw, err := gateway.New(wallet, node, dial, binding, cfg.Gateway(), logger)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	logger.Debug("configured",
		zap.String("wallet_rpc", cfg.WalletRPC),
		zap.String("node_rpc", cfg.NodeRPC),
		zap.String("node_ws", cfg.NodeWS),
		zap.String("contract", binding.Address().Hex()),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		gw:     gw,
		ctrl:   session.New(gw, cfg.Session(), logger),
	}, nil
}

func (a *app) close() {
	a.ctrl.Close()
	if err := a.gw.Close(); err != nil {
		a.logger.Warn("close gateway", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// withApp loads configuration, wires the app and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	return fn(ctx, a)
}

// signalContext is cancelled on the first signal; a second one exits at once.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	return ctx, cancel
}
