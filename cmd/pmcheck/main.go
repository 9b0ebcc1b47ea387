// Command pmcheck reports whether the local gateway accepts TCP port
// mappings over UPnP and NAT-PMP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/go-i2p/pmcheck"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// realMain parses args, runs the probe and returns the process exit code.
// Probe results never affect the exit code; only bad flags do.
func realMain(ctx context.Context, args []string, stdout io.Writer) int {
	cfg, err := pmcheck.LoadConfig(args)
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) {
			// go-flags has already printed the message.
			if flagErr.Type == flags.ErrHelp {
				return 0
			}
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}

	setupLogging(cfg.Verbose)

	run(ctx, cfg, stdout)
	return 0
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// newCollaborators builds the gateway clients for a run. pmp is nil when no
// NAT-PMP gateway could be located.
var newCollaborators = func(cfg *pmcheck.Config) (upnp pmcheck.GatewayDiscoverer, pmp pmcheck.NATPMP) {
	mapper, err := pmcheck.NewNATPMPMapper(cfg.NATPMP)
	if err != nil {
		slog.Warn("NAT-PMP disabled", "error", err)
	} else {
		slog.Debug("using NAT-PMP gateway", "gateway", mapper.Gateway())
		pmp = mapper
	}
	return pmcheck.NewUPnPDiscoverer(cfg.DiscoveryTimeout), pmp
}

func run(ctx context.Context, cfg *pmcheck.Config, stdout io.Writer) {
	_, _ = fmt.Fprintln(stdout, pmcheck.StartupNotice)

	upnp, pmp := newCollaborators(cfg)
	prober := pmcheck.NewProber(upnp, pmp, cfg.NATPMP.Lifetime)
	report := prober.Run(ctx, cfg.Ports, cfg.FirstLocalPort)

	if _, err := report.WriteTo(stdout); err != nil {
		slog.Error("failed to write report", "error", err)
	}

	if cfg.Cleanup {
		// The run context may already be cancelled; teardown still gets
		// a chance to reach the gateway.
		prober.Cleanup(context.WithoutCancel(ctx))
	}
}
