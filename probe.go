// Package pmcheck checks whether the local gateway supports automatic port
// mapping via UPnP IGD or NAT-PMP by creating TCP mappings for a set of
// candidate external ports.
package pmcheck

import (
	"context"
	"log/slog"
	"time"
)

// mapping is a NAT-PMP mapping the probe created that outlives the run.
type mapping struct {
	internalPort int
	externalPort int
}

// Prober runs the mapping probe. It is not safe for concurrent use.
type Prober struct {
	upnp     GatewayDiscoverer
	natpmp   NATPMP
	lifetime time.Duration
	created  []mapping
}

// NewProber creates a prober. natpmp may be nil when no NAT-PMP gateway
// could be located, in which case NAT-PMP is treated as unavailable.
func NewProber(upnp GatewayDiscoverer, natpmp NATPMP, lifetime time.Duration) *Prober {
	return &Prober{
		upnp:     upnp,
		natpmp:   natpmp,
		lifetime: lifetime,
	}
}

// Run probes every port, first over UPnP and then over NAT-PMP, and
// returns one result per port and protocol. Internal ports are allocated
// from firstLocalPort upwards, one per mapping attempt.
//
// Failures of any kind, including cancellation of ctx, are reported as
// unsuccessful results rather than errors.
func (p *Prober) Run(ctx context.Context, ports []int, firstLocalPort int) *Report {
	report := &Report{}
	alloc := NewLocalPortAllocator(firstLocalPort)

	pmpAvailable := p.natpmp != nil && p.natpmp.Available(ctx)

	for _, port := range ports {
		p.clearMappings(ctx, port, alloc.Peek(), pmpAvailable)

		local := alloc.Next()
		ok := p.mapUPnP(ctx, local, port)
		p.recordResult(report, ProtocolUPnP, local, port, ok)
	}

	for _, port := range ports {
		p.clearMappings(ctx, port, alloc.Peek(), pmpAvailable)

		// The port is consumed even when no request is sent so the
		// allocation sequence does not depend on NAT-PMP availability.
		local := alloc.Next()
		ok := pmpAvailable && p.natpmp.Map(ctx, local, port, p.lifetime)
		p.recordResult(report, ProtocolNATPMP, local, port, ok)
	}

	return report
}

// Cleanup removes the NAT-PMP mappings the last Run left behind. UPnP
// mappings need no teardown: the NAT-PMP pass deletes each of them before
// its own attempt on the same port. Mappings with the minimum one second
// lifetime have expired by the time Run returns and are not tracked.
// Failures are logged and otherwise ignored.
func (p *Prober) Cleanup(ctx context.Context) {
	for _, m := range p.created {
		if !p.natpmp.Map(ctx, m.internalPort, m.externalPort, 0) {
			slog.Warn("failed to remove NAT-PMP mapping", "port", m.externalPort)
		}
	}
	p.created = nil
}

func (p *Prober) recordResult(report *Report, protocol Protocol, local, port int, ok bool) {
	report.record(Result{Port: port, Protocol: protocol, Success: ok})
	if ok && protocol == ProtocolNATPMP && p.lifetime > time.Second {
		p.created = append(p.created, mapping{internalPort: local, externalPort: port})
	}
	slog.Debug("mapping attempt finished",
		"protocol", protocol.String(),
		"externalPort", port,
		"internalPort", local,
		"success", ok)
}

// clearMappings removes any existing mapping for port on both protocols.
// Results are ignored.
func (p *Prober) clearMappings(ctx context.Context, port, local int, pmpAvailable bool) {
	if pmpAvailable {
		p.natpmp.Map(ctx, local, port, 0)
	}
	p.unmapUPnP(ctx, port)
}

// withGateway discovers a gateway, runs fn against it and closes the
// session on every path.
func (p *Prober) withGateway(ctx context.Context, fn func(gw UPnPGateway) error) error {
	gw, err := p.upnp.Discover(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			slog.Debug("failed to close UPnP gateway session", "error", err)
		}
	}()

	return fn(gw)
}

func (p *Prober) mapUPnP(ctx context.Context, local, port int) bool {
	err := p.withGateway(ctx, func(gw UPnPGateway) error {
		if ip, err := gw.ExternalIPAddress(ctx); err != nil {
			slog.Debug("UPnP external IP lookup failed", "error", err)
		} else {
			slog.Debug("UPnP external IP", "address", ip, "serviceType", gw.ServiceType())
		}

		client, err := gw.LocalAddr()
		if err != nil {
			return err
		}
		return gw.AddPortMapping(ctx, port, local, client.String(), mappingDescription, upnpLease)
	})
	if err != nil {
		slog.Debug("UPnP mapping failed", "port", port, "error", err)
		return false
	}
	return true
}

func (p *Prober) unmapUPnP(ctx context.Context, port int) {
	err := p.withGateway(ctx, func(gw UPnPGateway) error {
		return gw.DeletePortMapping(ctx, port)
	})
	if err != nil {
		slog.Debug("UPnP unmapping failed", "port", port, "error", err)
	}
}
