// Copyright 2025 Certen Protocol
//
// Package config loads the ledger subsystem's configuration: a YAML file
// on disk, overlaid with environment-variable overrides. The key layout
// mirrors the dotted keys the subsystem recognizes (workingdir,
// ledger.auxiliary_db, ledger_subsystem.*, ethereum.*).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved configuration for one ledger subsystem
// instance.
type Config struct {
	WorkingDir      string                `yaml:"workingdir"`
	Ledger          LedgerSettings        `yaml:"ledger"`
	LedgerSubsystem LedgerSubsystemConfig `yaml:"ledger_subsystem"`
	Ethereum        EthereumSettings      `yaml:"ethereum"`
}

// LedgerSettings names the auxiliary SQLite database file.
type LedgerSettings struct {
	AuxiliaryDB string `yaml:"auxiliary_db"`
}

// LedgerSubsystemConfig controls batch sizing and the anchoring backend.
type LedgerSubsystemConfig struct {
	MaxTransactions int    `yaml:"max_transactions"`
	MaxSeconds      int    `yaml:"max_seconds"`
	Subsystem       string `yaml:"subsystem"`
}

// EthereumSettings configures the Ethereum anchoring client. Only
// consulted when LedgerSubsystemConfig.Subsystem == "ethereum".
type EthereumSettings struct {
	URL             string `yaml:"url"`
	Account         string `yaml:"account"`
	Passphrase      string `yaml:"passphrase"`
	ContractAddress string `yaml:"contract_address"`
	ChainID         int64  `yaml:"chain_id"`
}

// Default returns a configuration with the same defaults as the original
// ledger subsystem: a 1000-transaction / 900-second batch window and the
// ethereum backend.
func Default() *Config {
	return &Config{
		WorkingDir: ".",
		Ledger: LedgerSettings{
			AuxiliaryDB: "bbc_aux.sqlite3",
		},
		LedgerSubsystem: LedgerSubsystemConfig{
			MaxTransactions: 1000,
			MaxSeconds:      900,
			Subsystem:       "ethereum",
		},
	}
}

// Load reads the YAML file at path (if it exists) into a Config seeded
// with Default(), then overlays any recognized environment variables.
// A missing file is not an error: Default()+env is used instead, matching
// the donor's env-first convention in the original config loader. The
// result must still pass Validate, so with no file the environment has to
// supply ETHEREUM_CONTRACT_ADDRESS.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.WorkingDir = getEnv("WORKINGDIR", cfg.WorkingDir)
	cfg.Ledger.AuxiliaryDB = getEnv("LEDGER_AUXILIARY_DB", cfg.Ledger.AuxiliaryDB)

	cfg.LedgerSubsystem.MaxTransactions = getEnvInt("LEDGER_SUBSYSTEM_MAX_TRANSACTIONS", cfg.LedgerSubsystem.MaxTransactions)
	cfg.LedgerSubsystem.MaxSeconds = getEnvInt("LEDGER_SUBSYSTEM_MAX_SECONDS", cfg.LedgerSubsystem.MaxSeconds)
	cfg.LedgerSubsystem.Subsystem = getEnv("LEDGER_SUBSYSTEM_SUBSYSTEM", cfg.LedgerSubsystem.Subsystem)

	cfg.Ethereum.URL = getEnv("ETHEREUM_URL", cfg.Ethereum.URL)
	cfg.Ethereum.Account = getEnv("ETHEREUM_ACCOUNT", cfg.Ethereum.Account)
	cfg.Ethereum.Passphrase = getEnv("ETHEREUM_PASSPHRASE", cfg.Ethereum.Passphrase)
	cfg.Ethereum.ContractAddress = getEnv("ETHEREUM_CONTRACT_ADDRESS", cfg.Ethereum.ContractAddress)
	cfg.Ethereum.ChainID = getEnvInt64("ETHEREUM_CHAIN_ID", cfg.Ethereum.ChainID)
}

// MaxBatchAge returns LedgerSubsystem.MaxSeconds as a time.Duration.
func (c *Config) MaxBatchAge() time.Duration {
	return time.Duration(c.LedgerSubsystem.MaxSeconds) * time.Second
}

// Validate checks that the resolved configuration is usable.
func (c *Config) Validate() error {
	if c.WorkingDir == "" {
		return fmt.Errorf("config: workingdir is required")
	}
	if c.Ledger.AuxiliaryDB == "" {
		return fmt.Errorf("config: ledger.auxiliary_db is required")
	}
	if c.LedgerSubsystem.MaxTransactions < 2 {
		return fmt.Errorf("config: ledger_subsystem.max_transactions must be an even integer >= 2")
	}
	if c.LedgerSubsystem.MaxTransactions%2 != 0 {
		return fmt.Errorf("config: ledger_subsystem.max_transactions must be an even integer >= 2, got %d", c.LedgerSubsystem.MaxTransactions)
	}
	if c.LedgerSubsystem.MaxSeconds <= 0 {
		return fmt.Errorf("config: ledger_subsystem.max_seconds must be positive")
	}
	switch c.LedgerSubsystem.Subsystem {
	case "ethereum":
		if c.Ethereum.ContractAddress == "" {
			return fmt.Errorf("config: ethereum.contract_address is required when subsystem=ethereum")
		}
	default:
		return fmt.Errorf("config: unsupported ledger_subsystem.subsystem %q", c.LedgerSubsystem.Subsystem)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
