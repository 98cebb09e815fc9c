// Package config loads node configuration and builds the genesis state.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// TLSConfig holds the PEM paths for mTLS between nodes. Empty paths mean
// plain TCP.
type TLSConfig struct {
	CACert   string `mapstructure:"ca_cert" json:"ca_cert"`
	NodeCert string `mapstructure:"node_cert" json:"node_cert"`
	NodeKey  string `mapstructure:"node_key" json:"node_key"`
}

// GenesisAsset seeds one catalog entry.
type GenesisAsset struct {
	Name  string `mapstructure:"name" json:"name"`
	Power uint64 `mapstructure:"power" json:"power"`
	Price uint64 `mapstructure:"price" json:"price"` // whole INT
}

// GenesisStep seeds one rung of the sale price ladder. Price is wei per
// token as a decimal string.
type GenesisStep struct {
	Size  uint64 `mapstructure:"size" json:"size"`
	Price string `mapstructure:"price" json:"price"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID        string            `mapstructure:"chain_id" json:"chain_id"`
	Alloc          map[string]string `mapstructure:"alloc" json:"alloc"` // pubkey hex → wei (decimal string)
	Owner          string            `mapstructure:"owner" json:"owner"` // platform owner pubkey hex
	StartDate      int64             `mapstructure:"start_date" json:"start_date"`
	Gems           []GenesisAsset    `mapstructure:"gems" json:"gems"`
	Crystals       []GenesisAsset    `mapstructure:"crystals" json:"crystals"`
	Steps          []GenesisStep     `mapstructure:"steps" json:"steps"`
	ReferrerCroPct uint64            `mapstructure:"referrer_cro_pct" json:"referrer_cro_pct"`
	ReferrerIntPct uint64            `mapstructure:"referrer_int_pct" json:"referrer_int_pct"`
	ReferredIntPct uint64            `mapstructure:"referred_int_pct" json:"referred_int_pct"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string        `mapstructure:"node_id" json:"node_id"`
	DataDir      string        `mapstructure:"data_dir" json:"data_dir"`
	RPCPort      int           `mapstructure:"rpc_port" json:"rpc_port"`
	RPCAuthToken string        `mapstructure:"rpc_auth_token" json:"rpc_auth_token,omitempty"`
	P2PPort      int           `mapstructure:"p2p_port" json:"p2p_port"`
	MaxBlockTxs  int           `mapstructure:"max_block_txs" json:"max_block_txs"` // 0 → 500
	Validators   []string      `mapstructure:"validators" json:"validators"`       // authorised proposer pubkey hexes
	Peers        []string      `mapstructure:"peers" json:"peers"`                 // host:port seed peers
	TLS          *TLSConfig    `mapstructure:"tls" json:"tls,omitempty"`
	Genesis      GenesisConfig `mapstructure:"genesis" json:"genesis"`
}

// DefaultConfig returns a single-node development configuration with the
// platform's standard catalogs and price ladder.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainID:        "interlude-dev",
			Alloc:          map[string]string{},
			Gems:           DefaultGems(),
			Crystals:       DefaultCrystals(),
			Steps:          DefaultSteps(),
			ReferrerCroPct: 5,
			ReferrerIntPct: 5,
			ReferredIntPct: 5,
		},
	}
}

// Load reads a config file (JSON, TOML or YAML by extension) over the
// defaults. An empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
