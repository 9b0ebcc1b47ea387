package pmcheck

import (
	"context"
	"net"
	"time"
)

// Protocol identifies the port mapping protocol a result was obtained with.
type Protocol int

const (
	ProtocolUPnP Protocol = iota
	ProtocolNATPMP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUPnP:
		return "UPnP"
	case ProtocolNATPMP:
		return "NAT-PMP"
	default:
		return "unknown"
	}
}

// Result is the outcome of one mapping attempt for an external port.
type Result struct {
	Port     int
	Protocol Protocol
	Success  bool
}

// UPnPGateway is a session with a discovered Internet Gateway Device.
// Sessions are short-lived: acquire one per operation and Close it when done.
type UPnPGateway interface {
	AddPortMapping(ctx context.Context, externalPort, internalPort int, internalClient, description string, lease time.Duration) error
	DeletePortMapping(ctx context.Context, externalPort int) error
	ExternalIPAddress(ctx context.Context) (string, error)
	LocalAddr() (net.IP, error)
	ServiceType() string
	Close() error
}

// GatewayDiscoverer finds a valid IGD on the local network.
type GatewayDiscoverer interface {
	Discover(ctx context.Context) (UPnPGateway, error)
}

// NATPMP is the subset of NAT-PMP operations the probe relies on.
// Both methods collapse every failure into false.
type NATPMP interface {
	Available(ctx context.Context) bool
	Map(ctx context.Context, internalPort, externalPort int, lifetime time.Duration) bool
}
