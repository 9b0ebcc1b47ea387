package pmcheck

import "time"

// Defaults for a probe run. They match the behaviour of running the CLI
// without any flags.
const (
	defaultFirstLocalPort   = 15600
	defaultDiscoveryTimeout = 2 * time.Second

	defaultCheckAttempts = 5
	defaultCheckInterval = time.Second
	defaultMapAttempts   = 80
	defaultMapInterval   = 100 * time.Millisecond

	// NAT-PMP lifetimes are whole seconds; zero deletes the mapping.
	defaultMappingLifetime = time.Second

	// A zero UPnP lease asks the gateway for a static mapping.
	upnpLease = 0

	mappingDescription = "pmcheck"
	mappingProtocol    = "TCP"
)

// DefaultPorts are the external ports every run probes.
var DefaultPorts = []int{8443, 443}

// StartupNotice is printed before the probe begins.
const StartupNotice = "Checking whether or not we can port map with UPnP or NAT-PMP. This can take a while ..."
