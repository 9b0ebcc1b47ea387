package pmcheck

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/jackpal/gateway"
)

// routeGateway reads the default gateway from the system routing table.
// Replaced in tests.
var routeGateway = gateway.DiscoverGateway

// discoverGateway finds the default gateway for NAT-PMP.
// It reads the system routing table and falls back to a heuristic if the
// routing table cannot be read.
func discoverGateway() (net.IP, error) {
	gw, err := routeGateway()
	if err == nil && gw != nil && gw.To4() != nil && !gw.Equal(net.IPv4zero) {
		return gw.To4(), nil
	}
	slog.Debug("routing table lookup failed, guessing gateway", "error", err)

	return discoverGatewayFallback()
}

// discoverGatewayFallback assumes the gateway is .1 in the subnet of the
// local address used to reach the internet. Dialing UDP sends no packets.
func discoverGatewayFallback() (net.IP, error) {
	ip, err := localIPFor("8.8.8.8")
	if err != nil {
		return nil, fmt.Errorf("failed to determine local IP: %w", err)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("not IPv4 address: %v", ip)
	}

	return net.IPv4(ip4[0], ip4[1], ip4[2], 1).To4(), nil
}

// localIPFor returns the local address the kernel would use to reach host.
func localIPFor(host string) (net.IP, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(host, "80"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected local address type: %T", conn.LocalAddr())
	}
	return localAddr.IP, nil
}
