package pmcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// eventLog records collaborator calls in order across fakes.
type eventLog struct {
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

// MockDiscoverer implements GatewayDiscoverer. Every Discover hands out a
// fresh MockGateway sharing the discoverer's configuration.
type MockDiscoverer struct {
	log          *eventLog
	discoverErr  error
	addErr       error
	deleteErr    error
	localAddrErr error
	externalIP   string

	discovers int
	closes    int
	adds      []addCall
	deletes   []int
}

type addCall struct {
	externalPort   int
	internalPort   int
	internalClient string
	lease          time.Duration
}

func NewMockDiscoverer(log *eventLog) *MockDiscoverer {
	return &MockDiscoverer{
		log:        log,
		externalIP: "203.0.113.100", // RFC5737 test IP
	}
}

func (d *MockDiscoverer) Discover(ctx context.Context) (UPnPGateway, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.discoverErr != nil {
		return nil, d.discoverErr
	}
	d.discovers++
	return &MockGateway{d: d}, nil
}

// MockGateway implements UPnPGateway for testing.
type MockGateway struct {
	d      *MockDiscoverer
	closed bool
}

func (g *MockGateway) AddPortMapping(ctx context.Context, externalPort, internalPort int, internalClient, description string, lease time.Duration) error {
	if g.closed {
		return ErrGatewayClosed
	}
	g.d.log.add("upnp add %d<-%d", externalPort, internalPort)
	g.d.adds = append(g.d.adds, addCall{externalPort, internalPort, internalClient, lease})
	return g.d.addErr
}

func (g *MockGateway) DeletePortMapping(ctx context.Context, externalPort int) error {
	if g.closed {
		return ErrGatewayClosed
	}
	g.d.log.add("upnp delete %d", externalPort)
	g.d.deletes = append(g.d.deletes, externalPort)
	return g.d.deleteErr
}

func (g *MockGateway) ExternalIPAddress(ctx context.Context) (string, error) {
	if g.closed {
		return "", ErrGatewayClosed
	}
	return g.d.externalIP, nil
}

func (g *MockGateway) LocalAddr() (net.IP, error) {
	if g.d.localAddrErr != nil {
		return nil, g.d.localAddrErr
	}
	return net.IPv4(192, 168, 1, 100), nil
}

func (g *MockGateway) ServiceType() string {
	return "urn:schemas-upnp-org:service:WANIPConnection:2"
}

func (g *MockGateway) Close() error {
	if !g.closed {
		g.closed = true
		g.d.closes++
	}
	return nil
}

// MockNATPMP implements NATPMP for testing.
type MockNATPMP struct {
	log       *eventLog
	available bool
	// grant decides the outcome of a mapping request with a nonzero
	// lifetime. Deletions always succeed.
	grant func(internalPort, externalPort int) bool

	availableCalls int
	maps           []pmpCall
}

type pmpCall struct {
	internalPort int
	externalPort int
	lifetime     time.Duration
}

func NewMockNATPMP(log *eventLog, available bool) *MockNATPMP {
	return &MockNATPMP{
		log:       log,
		available: available,
		grant:     func(int, int) bool { return true },
	}
}

func (m *MockNATPMP) Available(ctx context.Context) bool {
	m.availableCalls++
	return m.available && ctx.Err() == nil
}

func (m *MockNATPMP) Map(ctx context.Context, internalPort, externalPort int, lifetime time.Duration) bool {
	m.log.add("pmp map %d<-%d lifetime=%v", externalPort, internalPort, lifetime)
	m.maps = append(m.maps, pmpCall{internalPort, externalPort, lifetime})
	if ctx.Err() != nil {
		return false
	}
	if lifetime == 0 {
		return true
	}
	return m.grant(internalPort, externalPort)
}

// creates returns the mapping requests that asked for a nonzero lifetime.
func (m *MockNATPMP) creates() []pmpCall {
	var out []pmpCall
	for _, c := range m.maps {
		if c.lifetime > 0 {
			out = append(out, c)
		}
	}
	return out
}

var errMockUnreachable = errors.New("mock: gateway unreachable")
