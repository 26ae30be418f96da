// Package clientconfig handles TOML configuration loading for the
// dhcp4c-discover demo CLI. The transport core itself (internal/conn) takes
// an Identity struct directly and has no persisted state; this package only
// exists to spare the cmd from hand-parsing flags for the handful of fields
// a client attempt needs.
package clientconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/athena-dhcpd/dhcp4conn/internal/logging"
	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

// Config is the top-level configuration for the demo CLI.
type Config struct {
	Client ClientConfig `toml:"client"`
}

// ClientConfig holds the fields needed to construct a conn.Identity and
// drive one DISCOVER attempt.
type ClientConfig struct {
	Interface        string `toml:"interface"`
	ClientIdentifier string `toml:"client_identifier"`
	MTU              int    `toml:"mtu"`
	LogLevel         string `toml:"log_level"`
	// RequestBroadcast forces the BROADCAST flag on outgoing headers even
	// on an interface that isn't InfiniBand. Most deployments leave this
	// unset.
	RequestBroadcast bool `toml:"request_broadcast"`
}

// Load reads and validates a TOML config file, applying defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Client.Interface == "" {
		cfg.Client.Interface = DefaultInterface
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = DefaultLogLevel
	}
	if cfg.Client.MTU == 0 {
		cfg.Client.MTU = DefaultMTU
	}
}

func validate(cfg *Config) error {
	if cfg.Client.Interface == "" {
		return fmt.Errorf("client.interface must not be empty")
	}
	if cfg.Client.MTU < 0 || cfg.Client.MTU > dhcpv4.MaxPacketSize {
		return fmt.Errorf("client.mtu %d out of range [0, %d]", cfg.Client.MTU, dhcpv4.MaxPacketSize)
	}
	// RFC 2132 §9.14 forbids a length-1 client identifier; conn.NewConnection
	// re-checks this, but failing fast here gives a clearer error message.
	if len(cfg.Client.ClientIdentifier) == 1 {
		return fmt.Errorf("client.client_identifier must not be exactly 1 byte")
	}
	if !logging.IsValidLevel(cfg.Client.LogLevel) {
		return fmt.Errorf("client.log_level %q is not recognized", cfg.Client.LogLevel)
	}
	return nil
}
