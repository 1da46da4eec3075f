// Package config loads the simulator configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/btcsim/internal/domain"
	"gopkg.in/yaml.v3"
)

// StateDirEnv overrides storage.dir and the default locations derived from it.
const StateDirEnv = "BTCSIM_STATE_DIR"

// Supported price platforms.
const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
)

const (
	defaultPollPriceInterval   = 12 * time.Second
	defaultPollCandlesInterval = 15 * time.Second
	defaultPriceTimeout        = 10 * time.Second
	defaultCandlesTimeout      = 15 * time.Second
	defaultKlineInterval       = "1m"
	defaultKlineLimit          = 60
	defaultStateDir            = "./state"
	defaultWebAddr             = ":8080"
)

// Config runtime configuration.
type Config struct {
	Pair                domain.Pair
	Platform            string
	HyperliquidURL      string
	PollPriceInterval   time.Duration
	PollCandlesInterval time.Duration
	PriceTimeout        time.Duration
	CandlesTimeout      time.Duration
	KlineInterval       string
	KlineLimit          int
	LogLevel            string
	Storage             StorageConfig
	Journal             JournalConfig
	Snapshots           SnapshotsConfig
	Web                 WebConfig
}

// StorageConfig selects the ledger state backend.
type StorageConfig struct {
	Backend    string `yaml:"backend,omitempty"`
	Dir        string `yaml:"dir,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// JournalConfig trade journal database. An empty path disables the journal.
type JournalConfig struct {
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// SnapshotsConfig balance snapshot WAL location.
type SnapshotsConfig struct {
	WALDir string `yaml:"wal_dir,omitempty"`
}

// WebConfig HTTP API settings. Non-empty AutocertDomains enables ACME TLS.
type WebConfig struct {
	Addr            string   `yaml:"addr,omitempty"`
	AutocertDomains []string `yaml:"autocert_domains,omitempty"`
	CertCache       string   `yaml:"cert_cache,omitempty"`
}

// ConfigTmp mirrors the YAML document.
type ConfigTmp struct {
	Pair                string          `yaml:"pair"`
	Platform            string          `yaml:"platform"`
	HyperliquidURL      string          `yaml:"hyperliquid_url,omitempty"`
	PollPriceInterval   time.Duration   `yaml:"poll_price_interval,omitempty"`
	PollCandlesInterval time.Duration   `yaml:"poll_candles_interval,omitempty"`
	PriceTimeout        time.Duration   `yaml:"price_timeout,omitempty"`
	CandlesTimeout      time.Duration   `yaml:"candles_timeout,omitempty"`
	KlineInterval       string          `yaml:"kline_interval,omitempty"`
	KlineLimitStr       string          `yaml:"kline_limit,omitempty"`
	LogLevel            string          `yaml:"log_level,omitempty"`
	Storage             StorageConfig   `yaml:"storage,omitempty"`
	Journal             *JournalConfig  `yaml:"journal,omitempty"`
	Snapshots           SnapshotsConfig `yaml:"snapshots,omitempty"`
	Web                 WebConfig       `yaml:"web,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, _ := fromTmp(ConfigTmp{})
	return cfg
}

// Load reads the YAML file at path. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}

	return fromTmp(tmp)
}

// Save writes tmp as YAML to path.
func Save(path string, tmp ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create config dir")
		}
	}

	return errors.Wrap(os.WriteFile(path, data, 0o644), "failed to save config file")
}

func fromTmp(c ConfigTmp) (Config, error) {
	cfg := Config{
		Pair:                domain.DefaultPair,
		Platform:            strings.ToLower(strings.TrimSpace(c.Platform)),
		HyperliquidURL:      c.HyperliquidURL,
		PollPriceInterval:   orDuration(c.PollPriceInterval, defaultPollPriceInterval),
		PollCandlesInterval: orDuration(c.PollCandlesInterval, defaultPollCandlesInterval),
		PriceTimeout:        orDuration(c.PriceTimeout, defaultPriceTimeout),
		CandlesTimeout:      orDuration(c.CandlesTimeout, defaultCandlesTimeout),
		KlineInterval:       c.KlineInterval,
		KlineLimit:          defaultKlineLimit,
		LogLevel:            strings.ToLower(c.LogLevel),
		Storage:             c.Storage,
		Snapshots:           c.Snapshots,
		Web:                 c.Web,
	}

	if c.Pair != "" {
		pair, err := domain.ParsePair(c.Pair)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'pair' param in yaml config: %s, error: %w", c.Pair, err)
		}
		cfg.Pair = pair
	}

	switch cfg.Platform {
	case "":
		cfg.Platform = PlatformBinance
	case PlatformBinance, PlatformBybit, PlatformHyperliquid:
	default:
		return Config{}, fmt.Errorf("unsupported platform %q (binance, bybit or hyperliquid)", c.Platform)
	}

	if cfg.KlineInterval == "" {
		cfg.KlineInterval = defaultKlineInterval
	}
	if c.KlineLimitStr != "" {
		limit, err := strconv.Atoi(c.KlineLimitStr)
		if err != nil || limit <= 0 || limit > 1000 {
			return Config{}, fmt.Errorf("incorrect 'kline_limit' param in yaml config (integer 1-1000): %q", c.KlineLimitStr)
		}
		cfg.KlineLimit = limit
	}

	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("incorrect 'log_level' param in yaml config: %q", c.LogLevel)
	}

	stateDir := cfg.Storage.Dir
	if env := os.Getenv(StateDirEnv); env != "" {
		stateDir = env
	}
	if stateDir == "" {
		stateDir = defaultStateDir
	}
	cfg.Storage.Dir = stateDir

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(stateDir, "btcsim.db")
	}

	// journal: absent section means default location, explicit empty path disables it
	if c.Journal == nil {
		cfg.Journal.SQLitePath = filepath.Join(stateDir, "journal.db")
	} else {
		cfg.Journal = *c.Journal
	}

	if cfg.Snapshots.WALDir == "" {
		cfg.Snapshots.WALDir = filepath.Join(stateDir, "balance")
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = defaultWebAddr
	}
	if cfg.Web.CertCache == "" {
		cfg.Web.CertCache = filepath.Join(stateDir, "certs")
	}

	return cfg, nil
}

// ToTmp converts cfg back into its YAML form.
func (c Config) ToTmp() ConfigTmp {
	journal := c.Journal

	return ConfigTmp{
		Pair:                c.Pair.String(),
		Platform:            c.Platform,
		HyperliquidURL:      c.HyperliquidURL,
		PollPriceInterval:   c.PollPriceInterval,
		PollCandlesInterval: c.PollCandlesInterval,
		PriceTimeout:        c.PriceTimeout,
		CandlesTimeout:      c.CandlesTimeout,
		KlineInterval:       c.KlineInterval,
		KlineLimitStr:       strconv.Itoa(c.KlineLimit),
		LogLevel:            c.LogLevel,
		Storage:             c.Storage,
		Journal:             &journal,
		Snapshots:           c.Snapshots,
		Web:                 c.Web,
	}
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}

	return v
}
