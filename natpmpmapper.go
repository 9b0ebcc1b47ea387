package pmcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	natpmp "github.com/jackpal/go-nat-pmp"
)

// natpmpClient is the subset of *natpmp.Client used here.
type natpmpClient interface {
	GetExternalAddress() (*natpmp.GetExternalAddressResult, error)
	AddPortMapping(protocol string, internalPort, requestedExternalPort int, lifetime int) (*natpmp.AddPortMappingResult, error)
}

// natpmpDialer builds a client whose requests give up after timeout.
type natpmpDialer func(gateway net.IP, timeout time.Duration) natpmpClient

func dialNATPMP(gateway net.IP, timeout time.Duration) natpmpClient {
	return natpmp.NewClientWithTimeout(gateway, timeout)
}

// NATPMPMapper implements NATPMP on top of go-nat-pmp. Every request is
// retried according to a RetryPolicy; the client's own timeout is bounded
// by the policy interval so a single attempt never overruns its slot.
type NATPMPMapper struct {
	gateway     net.IP
	dial        natpmpDialer
	clock       clock.Clock
	checkPolicy RetryPolicy
	mapPolicy   RetryPolicy
}

// NewNATPMPMapper creates a mapper for cfg. The gateway comes from
// cfg.Gateway when set, otherwise from the routing table.
func NewNATPMPMapper(cfg NATPMPConfig) (*NATPMPMapper, error) {
	var gw net.IP
	if cfg.Gateway != "" {
		gw = net.ParseIP(cfg.Gateway).To4()
		if gw == nil {
			return nil, fmt.Errorf("NAT-PMP gateway %q is not an IPv4 address", cfg.Gateway)
		}
	} else {
		var err error
		gw, err = discoverGateway()
		if err != nil {
			return nil, fmt.Errorf("NAT-PMP gateway discovery failed: %w", err)
		}
	}

	return &NATPMPMapper{
		gateway:     gw,
		dial:        dialNATPMP,
		clock:       clock.New(),
		checkPolicy: cfg.checkPolicy(),
		mapPolicy:   cfg.mapPolicy(),
	}, nil
}

// Gateway returns the address requests are sent to.
func (n *NATPMPMapper) Gateway() net.IP {
	return n.gateway
}

// Available reports whether the gateway answers a public address request.
func (n *NATPMPMapper) Available(ctx context.Context) bool {
	ok := poll(ctx, n.clock, n.checkPolicy, func(timeout time.Duration) error {
		result, err := n.dial(n.gateway, timeout).GetExternalAddress()
		if err != nil {
			return fmt.Errorf("NAT-PMP public address request failed: %w", err)
		}
		addr := result.ExternalIPAddress
		slog.Debug("NAT-PMP public address",
			"gateway", n.gateway,
			"address", net.IPv4(addr[0], addr[1], addr[2], addr[3]).String())
		return nil
	})

	slog.Info("NAT-PMP availability", "gateway", n.gateway, "available", ok)
	return ok
}

// Map requests a TCP mapping from externalPort to internalPort. A zero
// lifetime asks the gateway to delete the mapping instead.
func (n *NATPMPMapper) Map(ctx context.Context, internalPort, externalPort int, lifetime time.Duration) bool {
	if err := validatePort(internalPort); err != nil {
		slog.Debug("NAT-PMP mapping skipped", "error", err)
		return false
	}
	if err := validatePort(externalPort); err != nil {
		slog.Debug("NAT-PMP mapping skipped", "error", err)
		return false
	}

	seconds := int(lifetime / time.Second)
	ok := poll(ctx, n.clock, n.mapPolicy, func(timeout time.Duration) error {
		// go-nat-pmp only accepts lower case protocol names.
		result, err := n.dial(n.gateway, timeout).AddPortMapping("tcp", internalPort, externalPort, seconds)
		if err != nil {
			return fmt.Errorf("NAT-PMP port mapping failed: %w", err)
		}
		slog.Debug("NAT-PMP mapping granted",
			"internalPort", result.InternalPort,
			"externalPort", result.MappedExternalPort,
			"lifetime", result.PortMappingLifetimeInSeconds)
		return nil
	})

	slog.Debug("NAT-PMP mapping",
		"internalPort", internalPort,
		"externalPort", externalPort,
		"lifetime", seconds,
		"success", ok)
	return ok
}
