package pmcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/huin/goupnp/ssdp"
	"go.uber.org/multierr"
)

var (
	// ErrNoGateway is returned when discovery finds no usable IGD service.
	ErrNoGateway = errors.New("no UPnP IGD devices found")

	// ErrGatewayClosed is returned by operations on a closed UPnPGateway.
	ErrGatewayClosed = errors.New("UPnP gateway session closed")
)

// igdClient defines the interface for UPnP IGD client operations.
// This is satisfied by WANIPConnection1, WANIPConnection2, and WANPPPConnection1
// from both internetgateway1 and internetgateway2.
type igdClient interface {
	AddPortMappingCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
		NewInternalPort uint16,
		NewInternalClient string,
		NewEnabled bool,
		NewPortMappingDescription string,
		NewLeaseDuration uint32,
	) error
	DeletePortMappingCtx(
		ctx context.Context,
		NewRemoteHost string,
		NewExternalPort uint16,
		NewProtocol string,
	) error
	GetExternalIPAddressCtx(ctx context.Context) (string, error)
}

// igdService is one WAN connection service type a discovered root device
// may offer.
type igdService struct {
	name     string
	fromRoot func(root *goupnp.RootDevice, loc *url.URL) (igdClient, *goupnp.ServiceClient, error)
}

// igdServices lists the service types in order of preference: IGDv2
// WANIPConnection2, WANIPConnection1 and WANPPPConnection1, then the IGDv1
// equivalents for older routers.
var igdServices = []igdService{
	{"WANIPConnection2", func(root *goupnp.RootDevice, loc *url.URL) (igdClient, *goupnp.ServiceClient, error) {
		c, err := first(internetgateway2.NewWANIPConnection2ClientsFromRootDevice(root, loc))
		if err != nil {
			return nil, nil, err
		}
		return c, &c.ServiceClient, nil
	}},
	{"WANIPConnection1", func(root *goupnp.RootDevice, loc *url.URL) (igdClient, *goupnp.ServiceClient, error) {
		c, err := first(internetgateway2.NewWANIPConnection1ClientsFromRootDevice(root, loc))
		if err != nil {
			return nil, nil, err
		}
		return c, &c.ServiceClient, nil
	}},
	{"WANPPPConnection1", func(root *goupnp.RootDevice, loc *url.URL) (igdClient, *goupnp.ServiceClient, error) {
		c, err := first(internetgateway2.NewWANPPPConnection1ClientsFromRootDevice(root, loc))
		if err != nil {
			return nil, nil, err
		}
		return c, &c.ServiceClient, nil
	}},
	{"IGDv1 WANIPConnection1", func(root *goupnp.RootDevice, loc *url.URL) (igdClient, *goupnp.ServiceClient, error) {
		c, err := first(internetgateway1.NewWANIPConnection1ClientsFromRootDevice(root, loc))
		if err != nil {
			return nil, nil, err
		}
		return c, &c.ServiceClient, nil
	}},
	{"IGDv1 WANPPPConnection1", func(root *goupnp.RootDevice, loc *url.URL) (igdClient, *goupnp.ServiceClient, error) {
		c, err := first(internetgateway1.NewWANPPPConnection1ClientsFromRootDevice(root, loc))
		if err != nil {
			return nil, nil, err
		}
		return c, &c.ServiceClient, nil
	}},
}

// first picks the first client a root device offers for a service type.
func first[T any](clients []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(clients) == 0 {
		return zero, errors.New("service not offered")
	}
	return clients[0], nil
}

// searchRootDevices runs a single SSDP search for UPnP root devices.
func searchRootDevices(ctx context.Context) ([]goupnp.MaybeRootDevice, error) {
	return goupnp.DiscoverDevicesCtx(ctx, ssdp.UPNPRootDevice)
}

// UPnPDiscoverer implements GatewayDiscoverer with goupnp SSDP discovery.
type UPnPDiscoverer struct {
	timeout  time.Duration
	search   func(ctx context.Context) ([]goupnp.MaybeRootDevice, error)
	services []igdService
}

// NewUPnPDiscoverer creates a discoverer whose SSDP search waits at most
// timeout for devices to answer.
func NewUPnPDiscoverer(timeout time.Duration) *UPnPDiscoverer {
	return &UPnPDiscoverer{
		timeout:  timeout,
		search:   searchRootDevices,
		services: igdServices,
	}
}

// Discover searches the network once and returns a session with the most
// preferred IGD service offered by any device that answered.
func (d *UPnPDiscoverer) Discover(ctx context.Context) (UPnPGateway, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, d.timeout)
	devices, err := d.search(searchCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: SSDP search failed: %w", ErrNoGateway, err)
	}

	var (
		errs  error
		roots []goupnp.MaybeRootDevice
	)
	for _, dev := range devices {
		if dev.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("device %v: %w", dev.Location, dev.Err))
			continue
		}
		if dev.Root != nil {
			roots = append(roots, dev)
		}
	}
	if len(roots) == 0 {
		errs = multierr.Append(errs, errors.New("no devices answered"))
		return nil, fmt.Errorf("%w: %w", ErrNoGateway, errs)
	}

	for _, svc := range d.services {
		for _, dev := range roots {
			client, sc, err := svc.fromRoot(dev.Root, dev.Location)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s at %v: %w", svc.name, dev.Location, err))
				continue
			}

			gw := &igdGateway{name: svc.name, client: client, service: sc}
			slog.Debug("found UPnP gateway",
				"service", svc.name,
				"serviceType", gw.ServiceType(),
				"location", dev.Location)
			return gw, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrNoGateway, errs)
}

// igdGateway is a UPnPGateway backed by a goupnp service client.
type igdGateway struct {
	name    string
	client  igdClient
	service *goupnp.ServiceClient
	closed  bool
}

// AddPortMapping creates a TCP mapping from externalPort to
// internalClient:internalPort.
func (g *igdGateway) AddPortMapping(ctx context.Context, externalPort, internalPort int, internalClient, description string, lease time.Duration) error {
	if g.closed {
		return ErrGatewayClosed
	}
	if err := validatePort(externalPort); err != nil {
		return err
	}
	if err := validatePort(internalPort); err != nil {
		return err
	}

	err := g.client.AddPortMappingCtx(
		ctx,
		"",                   // remote host (any)
		uint16(externalPort), // external port
		mappingProtocol,      // TCP
		uint16(internalPort), // internal port
		internalClient,       // internal client
		true,                 // enabled
		description,          // description
		uint32(lease.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("UPnP port mapping failed: %w", err)
	}
	return nil
}

// DeletePortMapping removes the TCP mapping for externalPort.
func (g *igdGateway) DeletePortMapping(ctx context.Context, externalPort int) error {
	if g.closed {
		return ErrGatewayClosed
	}
	if err := validatePort(externalPort); err != nil {
		return err
	}

	if err := g.client.DeletePortMappingCtx(ctx, "", uint16(externalPort), mappingProtocol); err != nil {
		return fmt.Errorf("UPnP port unmapping failed: %w", err)
	}
	return nil
}

// ExternalIPAddress returns the WAN address reported by the gateway.
func (g *igdGateway) ExternalIPAddress(ctx context.Context) (string, error) {
	if g.closed {
		return "", ErrGatewayClosed
	}

	ip, err := g.client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		return "", fmt.Errorf("UPnP external IP lookup failed: %w", err)
	}
	return trimNUL(ip), nil
}

// LocalAddr returns the local address on the route to the gateway, which is
// the internal client a mapping must point at.
func (g *igdGateway) LocalAddr() (net.IP, error) {
	if g.closed {
		return nil, ErrGatewayClosed
	}
	if g.service == nil || g.service.Location == nil {
		return nil, errors.New("gateway location unknown")
	}

	ip, err := localIPFor(g.service.Location.Hostname())
	if err != nil {
		return nil, fmt.Errorf("failed to get local IP: %w", err)
	}
	return ip, nil
}

// ServiceType returns the URN of the WAN connection service in use.
func (g *igdGateway) ServiceType() string {
	if g.service == nil || g.service.Service == nil {
		return g.name
	}
	return trimNUL(g.service.Service.ServiceType)
}

// Close releases the session. Later operations fail with ErrGatewayClosed.
func (g *igdGateway) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.client = nil
	g.service = nil
	return nil
}
