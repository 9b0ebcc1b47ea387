package pmcheck

import (
	"errors"
	"fmt"
	"net"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// ErrInvalidPort is returned by Validate for ports outside 1-65535.
var ErrInvalidPort = errors.New("invalid port number")

// NATPMPConfig holds the NAT-PMP pacing and lease settings.
type NATPMPConfig struct {
	Gateway       string        `long:"gateway" description:"NAT-PMP gateway address (default: discovered from the routing table)"`
	CheckAttempts int           `long:"checkattempts" description:"Number of public address requests before NAT-PMP is declared unavailable"`
	CheckInterval time.Duration `long:"checkinterval" description:"Pause between public address requests"`
	MapAttempts   int           `long:"mapattempts" description:"Number of mapping requests before a NAT-PMP mapping is declared failed"`
	MapInterval   time.Duration `long:"mapinterval" description:"Pause between mapping requests"`
	Lifetime      time.Duration `long:"lifetime" description:"Lifetime requested for NAT-PMP mappings (rounded down to whole seconds)"`
}

// Config is the complete probe configuration.
type Config struct {
	// Ports is fixed to DefaultPorts on the command line.
	Ports            []int         `no-flag:"true"`
	FirstLocalPort   int           `long:"localport" description:"Internal port used for the first mapping attempt; later attempts count up from it"`
	DiscoveryTimeout time.Duration `long:"discoverytimeout" description:"Time budget for each UPnP gateway discovery"`
	Cleanup          bool          `long:"cleanup" description:"Delete NAT-PMP mappings that outlive the run (lifetime above 1s) once the report is printed"`
	Verbose          bool          `short:"v" long:"verbose" description:"Log protocol details to stderr"`

	NATPMP NATPMPConfig `group:"NAT-PMP" namespace:"pmp"`
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() *Config {
	ports := make([]int, len(DefaultPorts))
	copy(ports, DefaultPorts)

	return &Config{
		Ports:            ports,
		FirstLocalPort:   defaultFirstLocalPort,
		DiscoveryTimeout: defaultDiscoveryTimeout,
		NATPMP: NATPMPConfig{
			CheckAttempts: defaultCheckAttempts,
			CheckInterval: defaultCheckInterval,
			MapAttempts:   defaultMapAttempts,
			MapInterval:   defaultMapInterval,
			Lifetime:      defaultMappingLifetime,
		},
	}
}

// LoadConfig parses command line arguments on top of DefaultConfig and
// validates the result. Help requests surface as a *flags.Error of type
// flags.ErrHelp.
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()

	parser := flags.NewParser(cfg, flags.Default)
	parser.Usage = "[OPTIONS]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", rest)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every port the probe will touch is in range and that
// the retry budgets can make at least one attempt.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return errors.New("no ports to probe")
	}
	seen := make(map[int]bool, len(c.Ports))
	for _, port := range c.Ports {
		if err := validatePort(port); err != nil {
			return err
		}
		if seen[port] {
			return fmt.Errorf("port %d listed more than once", port)
		}
		seen[port] = true
	}

	// Each port is attempted once per protocol.
	lastLocal := c.FirstLocalPort + 2*len(c.Ports) - 1
	if err := validatePort(c.FirstLocalPort); err != nil {
		return fmt.Errorf("local port: %w", err)
	}
	if err := validatePort(lastLocal); err != nil {
		return fmt.Errorf("local port range %d-%d: %w", c.FirstLocalPort, lastLocal, err)
	}

	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("discovery timeout must be positive, got %v", c.DiscoveryTimeout)
	}

	if c.NATPMP.Gateway != "" {
		ip := net.ParseIP(c.NATPMP.Gateway)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("NAT-PMP gateway %q is not an IPv4 address", c.NATPMP.Gateway)
		}
	}
	if err := c.NATPMP.checkPolicy().validate(); err != nil {
		return fmt.Errorf("NAT-PMP check: %w", err)
	}
	if err := c.NATPMP.mapPolicy().validate(); err != nil {
		return fmt.Errorf("NAT-PMP mapping: %w", err)
	}
	if c.NATPMP.Lifetime < time.Second {
		return fmt.Errorf("NAT-PMP lifetime must be at least 1s, got %v", c.NATPMP.Lifetime)
	}

	return nil
}

func (c NATPMPConfig) checkPolicy() RetryPolicy {
	return RetryPolicy{Attempts: c.CheckAttempts, Interval: c.CheckInterval}
}

func (c NATPMPConfig) mapPolicy() RetryPolicy {
	return RetryPolicy{Attempts: c.MapAttempts, Interval: c.MapInterval}
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPort, port)
	}
	return nil
}
