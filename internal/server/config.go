package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/table"
)

// Config is the complete server configuration
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Stakes []StakesConfig `hcl:"stakes,block"`
	Game   GameSettings   `hcl:"game,block"`
}

// ServerSettings contains listener-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// StakesConfig defines one joinable stakes level
type StakesConfig struct {
	Name       string `hcl:"name,label"`
	SmallBlind int    `hcl:"small_blind"`
	BigBlind   int    `hcl:"big_blind"`
	FastFold   bool   `hcl:"fast_fold,optional"`
	BuyInMin   int    `hcl:"buy_in_min,optional"`
	BuyInMax   int    `hcl:"buy_in_max,optional"`
}

// GameSettings tunes table behavior across all stakes
type GameSettings struct {
	ActionTimeoutSeconds int     `hcl:"action_timeout_seconds,optional"`
	InterHandDelayMs     int     `hcl:"inter_hand_delay_ms,optional"`
	IdleTimeoutSeconds   int     `hcl:"idle_timeout_seconds,optional"`
	RakePercent          float64 `hcl:"rake_percent,optional"`
	RakeCapBB            int     `hcl:"rake_cap_bb,optional"`
	BotFill              int     `hcl:"bot_fill,optional"`
	HandHistoryFile      string  `hcl:"hand_history_file,optional"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Stakes: []StakesConfig{
			{Name: "micro", SmallBlind: 1, BigBlind: 2},
			{Name: "low", SmallBlind: 5, BigBlind: 10},
			{Name: "micro-ff", SmallBlind: 1, BigBlind: 2, FastFold: true},
		},
		Game: GameSettings{
			ActionTimeoutSeconds: 20,
			InterHandDelayMs:     2000,
			IdleTimeoutSeconds:   120,
			RakePercent:          0.05,
			RakeCapBB:            3,
		},
	}
}

// LoadConfig loads HCL configuration, falling back to defaults when the file
// does not exist
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if len(config.Stakes) == 0 {
		config.Stakes = defaults.Stakes
	}
	if config.Game.ActionTimeoutSeconds == 0 {
		config.Game.ActionTimeoutSeconds = defaults.Game.ActionTimeoutSeconds
	}
	if config.Game.InterHandDelayMs == 0 {
		config.Game.InterHandDelayMs = defaults.Game.InterHandDelayMs
	}
	if config.Game.IdleTimeoutSeconds == 0 {
		config.Game.IdleTimeoutSeconds = defaults.Game.IdleTimeoutSeconds
	}

	for i := range config.Stakes {
		s := &config.Stakes[i]
		if s.BuyInMin == 0 {
			s.BuyInMin = s.BigBlind * 40
		}
		if s.BuyInMax == 0 {
			s.BuyInMax = s.BigBlind * 250
		}
	}

	return &config, nil
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Stakes) == 0 {
		return fmt.Errorf("at least one stakes level must be configured")
	}
	seen := make(map[table.Key]string)
	for _, s := range c.Stakes {
		if s.SmallBlind <= 0 {
			return fmt.Errorf("stakes %s: small blind must be positive", s.Name)
		}
		if s.BigBlind <= s.SmallBlind {
			return fmt.Errorf("stakes %s: big blind must be greater than small blind", s.Name)
		}
		if s.BuyInMin != 0 && s.BuyInMax != 0 && s.BuyInMin >= s.BuyInMax {
			return fmt.Errorf("stakes %s: buy-in minimum must be less than maximum", s.Name)
		}
		key := s.Key()
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("stakes %s: duplicates %s at %s", s.Name, prev, key)
		}
		seen[key] = s.Name
	}
	if c.Game.RakePercent < 0 || c.Game.RakePercent >= 1 {
		return fmt.Errorf("rake_percent must be in [0, 1): %v", c.Game.RakePercent)
	}
	if c.Game.RakeCapBB < 0 {
		return fmt.Errorf("rake_cap_bb must not be negative: %d", c.Game.RakeCapBB)
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Key returns the matchmaking pool key for a stakes level
func (s StakesConfig) Key() table.Key {
	return table.Key{SmallBlind: s.SmallBlind, BigBlind: s.BigBlind, FastFold: s.FastFold}
}

// StakesFor resolves a client "sb/bb" string against the configured levels
func (c *Config) StakesFor(blinds string, fastFold bool) (StakesConfig, error) {
	parts := strings.Split(blinds, "/")
	if len(parts) != 2 {
		return StakesConfig{}, fmt.Errorf("malformed blinds %q, want sb/bb", blinds)
	}
	sb, err := strconv.Atoi(parts[0])
	if err != nil {
		return StakesConfig{}, fmt.Errorf("malformed small blind %q", parts[0])
	}
	bb, err := strconv.Atoi(parts[1])
	if err != nil {
		return StakesConfig{}, fmt.Errorf("malformed big blind %q", parts[1])
	}
	for _, s := range c.Stakes {
		if s.SmallBlind == sb && s.BigBlind == bb && s.FastFold == fastFold {
			return s, nil
		}
	}
	return StakesConfig{}, fmt.Errorf("no stakes at %s", blinds)
}

func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Game.ActionTimeoutSeconds) * time.Second
}

func (c *Config) InterHandDelay() time.Duration {
	return time.Duration(c.Game.InterHandDelayMs) * time.Millisecond
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Game.IdleTimeoutSeconds) * time.Second
}

// RakeFor returns the rake rule for one stakes level
func (c *Config) RakeFor(s StakesConfig) engine.RakeConfig {
	return engine.RakeConfig{
		Percent: c.Game.RakePercent,
		Cap:     c.Game.RakeCapBB * s.BigBlind,
	}
}
