// Package config loads client configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"epics/internal/contract"
	"epics/internal/gateway"
	"epics/internal/logging"
	"epics/internal/session"
)

// Config holds all client settings.
type Config struct {
	// Endpoints
	WalletRPC     string        `env:"EPICS_WALLET_RPC" envDefault:"http://127.0.0.1:1248"`
	WalletTimeout time.Duration `env:"EPICS_WALLET_TIMEOUT" envDefault:"5m"`
	NodeRPC       string        `env:"EPICS_NODE_RPC"`
	NodeWS        string        `env:"EPICS_NODE_WS"`

	// Contract
	ContractAddress string `env:"EPICS_CONTRACT_ADDRESS" envDefault:"0x908f9AfF6eE262946d5A350c2C0e0388670cf5E4"`
	DeployBlock     uint64 `env:"EPICS_DEPLOY_BLOCK" envDefault:"0"`
	DefaultMaxMint  int64  `env:"EPICS_DEFAULT_MAX_MINT" envDefault:"1337"`

	// Links
	TokenURL      string `env:"EPICS_TOKEN_URL" envDefault:"https://testnets.opensea.io/assets/{contract}/{id}"`
	CollectionURL string `env:"EPICS_COLLECTION_URL" envDefault:"https://opensea.io/collection/theepics"`
	ExplorerTxURL string `env:"EPICS_EXPLORER_TX_URL" envDefault:"https://rinkeby.etherscan.io/tx/{hash}"`

	// Timing
	ConfirmedDisplay time.Duration `env:"EPICS_CONFIRMED_DISPLAY" envDefault:"4s"`
	LinkReset        time.Duration `env:"EPICS_LINK_RESET" envDefault:"10s"`
	ConfirmTimeout   time.Duration `env:"EPICS_CONFIRM_TIMEOUT" envDefault:"5m"`
	ReceiptPoll      time.Duration `env:"EPICS_RECEIPT_POLL" envDefault:"2s"`
	EventPoll        time.Duration `env:"EPICS_EVENT_POLL" envDefault:"4s"`
	SenderCacheTTL   time.Duration `env:"EPICS_SENDER_CACHE_TTL" envDefault:"1h"`

	// Page
	HTTPAddr string `env:"EPICS_HTTP_ADDR" envDefault:"127.0.0.1:8080"`

	// Logging
	LogLevel  string `env:"EPICS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EPICS_LOG_FORMAT" envDefault:"console"`
	LogFile   string `env:"EPICS_LOG_FILE"`
}

// Load reads envFile (if present) without overriding set variables,
// then parses the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE lines from path. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Don't override existing env vars
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
	return nil
}

// Validate checks endpoints, the contract address, durations and defaults.
func (c *Config) Validate() error {
	var errs []error

	if err := checkURL("wallet rpc", c.WalletRPC, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if c.NodeRPC != "" {
		if err := checkURL("node rpc", c.NodeRPC, "http", "https"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.NodeWS != "" {
		if err := checkURL("node ws", c.NodeWS, "ws", "wss"); err != nil {
			errs = append(errs, err)
		}
	}
	if !common.IsHexAddress(c.ContractAddress) {
		errs = append(errs, fmt.Errorf("contract address %q is not a hex address", c.ContractAddress))
	}
	if c.DefaultMaxMint <= 0 {
		errs = append(errs, fmt.Errorf("default max mint must be positive, got %d", c.DefaultMaxMint))
	}
	if !strings.Contains(c.TokenURL, "{id}") {
		errs = append(errs, fmt.Errorf("token url %q has no {id} placeholder", c.TokenURL))
	}
	if !strings.Contains(c.ExplorerTxURL, "{hash}") {
		errs = append(errs, fmt.Errorf("explorer tx url %q has no {hash} placeholder", c.ExplorerTxURL))
	}
	if c.CollectionURL == "" {
		errs = append(errs, errors.New("collection url is required"))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"wallet timeout", c.WalletTimeout},
		{"confirmed display", c.ConfirmedDisplay},
		{"link reset", c.LinkReset},
		{"confirm timeout", c.ConfirmTimeout},
		{"receipt poll", c.ReceiptPoll},
		{"event poll", c.EventPoll},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.d))
		}
	}
	if c.SenderCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("sender cache ttl must not be negative, got %s", c.SenderCacheTTL))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != logging.FormatConsole && c.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("log format %q: want %s or %s", c.LogFormat, logging.FormatConsole, logging.FormatJSON))
	}

	return errors.Join(errs...)
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", name, raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want %s url", name, raw, strings.Join(schemes, " or "))
}

// Links returns the link templates for the configured contract.
func (c *Config) Links() contract.Links {
	return contract.Links{
		Contract:   c.ContractAddress,
		Token:      c.TokenURL,
		Collection: c.CollectionURL,
		Tx:         c.ExplorerTxURL,
	}
}

// Gateway returns the gateway settings.
func (c *Config) Gateway() gateway.Config {
	return gateway.Config{
		DeployBlock:     c.DeployBlock,
		ReceiptPoll:     c.ReceiptPoll,
		ConfirmTimeout:  c.ConfirmTimeout,
		SenderCacheTTL:  c.SenderCacheTTL,
		LogPollInterval: c.EventPoll,
	}
}

// Session returns the controller settings.
func (c *Config) Session() session.Config {
	return session.Config{
		ConfirmedDisplay: c.ConfirmedDisplay,
		LinkReset:        c.LinkReset,
		DefaultMaxMint:   c.DefaultMaxMint,
		Links:            c.Links(),
	}
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Options {
	opts := logging.DefaultOptions()
	opts.Level = c.LogLevel
	opts.Format = c.LogFormat
	opts.File = c.LogFile
	return opts
}
