// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/mdlayher/ndp"
	probing "github.com/prometheus-community/pro-bing"
	"github.com/safchain/ethtool"

	"github.com/miekg/dns"

	"shieldcore.dev/fwcore/internal/logging"
)

// ProbeResult summarizes one connectivity corroboration pass.
type ProbeResult struct {
	DNSOk     bool
	DNSRTT    time.Duration
	ICMPOk    bool
	ICMPRTT   time.Duration
}

// ConnectivityProbe corroborates "the default route changed" with "the
// route actually carries traffic" by issuing a single lightweight DNS
// query and ICMP echo against a canary host. Probe failures are logged and
// never block emission of the transport monitor's NetworkType itself — this
// is diagnostic signal only, per SPEC_FULL.md §4.1.
type ConnectivityProbe struct {
	CanaryHost   string // e.g. "1.1.1.1"
	DNSServer    string // e.g. "1.1.1.1:53"
	QueryName    string // e.g. "connectivitycheck.shieldcore.dev."
	logger       *logging.Logger
}

// NewConnectivityProbe builds a probe with sane public defaults.
func NewConnectivityProbe(logger *logging.Logger) *ConnectivityProbe {
	if logger == nil {
		logger = logging.Default().WithComponent("environment.probe")
	}
	return &ConnectivityProbe{
		CanaryHost: "1.1.1.1",
		DNSServer:  "1.1.1.1:53",
		QueryName:  "connectivitycheck.shieldcore.dev.",
		logger:     logger,
	}
}

// Probe runs the DNS and ICMP checks with a short per-check timeout and
// returns best-effort results; a failed check is reported as false/zero,
// never as an error, since the caller treats this as corroborating
// diagnostic signal rather than a gate on NetworkType emission.
func (p *ConnectivityProbe) Probe(ctx context.Context) ProbeResult {
	var result ProbeResult

	if rtt, err := p.probeDNS(ctx); err != nil {
		p.logger.Debug("connectivity probe: dns query failed", "error", err)
	} else {
		result.DNSOk = true
		result.DNSRTT = rtt
	}

	if rtt, err := p.probeICMP(ctx); err != nil {
		p.logger.Debug("connectivity probe: icmp echo failed", "error", err)
	} else {
		result.ICMPOk = true
		result.ICMPRTT = rtt
	}

	return result
}

func (p *ConnectivityProbe) probeDNS(ctx context.Context) (time.Duration, error) {
	client := &dns.Client{Timeout: 2 * time.Second}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(p.QueryName), dns.TypeA)

	_, rtt, err := client.ExchangeContext(ctx, msg, p.DNSServer)
	if err != nil {
		return 0, fmt.Errorf("dns exchange: %w", err)
	}
	return rtt, nil
}

func (p *ConnectivityProbe) probeICMP(ctx context.Context) (time.Duration, error) {
	pinger, err := probing.NewPinger(p.CanaryHost)
	if err != nil {
		return 0, fmt.Errorf("new pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(true)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, fmt.Errorf("ping run: %w", err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no echo reply received")
	}
	return stats.AvgRtt, nil
}

// ConfirmIPv6Gateway sends a single router solicitation on iface and
// reports whether a router advertisement was observed within timeout.
// The transport monitor calls it after a MobileRoaming value has already
// been published, for diagnostic logging only; the result never changes
// the reported NetworkType.
func ConfirmIPv6Gateway(iface string, timeout time.Duration) (bool, error) {
	ifi, err := interfaceByName(iface)
	if err != nil {
		return false, fmt.Errorf("lookup interface %s: %w", iface, err)
	}

	conn, _, err := ndp.Listen(ifi, ndp.LinkLocal)
	if err != nil {
		return false, fmt.Errorf("ndp listen on %s: %w", iface, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}

	rs, err := ndp.NewRouterSolicitation(nil)
	if err != nil {
		return false, err
	}
	if err := conn.WriteTo(rs, nil, net6AllRouters); err != nil {
		return false, fmt.Errorf("send router solicitation: %w", err)
	}

	msg, _, _, err := conn.ReadFrom()
	if err != nil {
		return false, nil // timeout or no advertisement: not an error, just "no gateway seen"
	}
	_, ok := msg.(*ndp.RouterAdvertisement)
	return ok, nil
}

// DriverCorroboratesMobile consults the NIC driver name via ethtool as a
// secondary signal when netlink's interface-name classification of a link
// is ambiguous (SPEC_FULL.md §4.1).
func DriverCorroboratesMobile(iface string) (bool, error) {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return false, fmt.Errorf("ethtool: %w", err)
	}
	defer et.Close()

	driver, err := et.DriverName(iface)
	if err != nil {
		return false, fmt.Errorf("driver name for %s: %w", iface, err)
	}
	switch driver {
	case "rmnet", "qmi_wwan", "mhi_net", "ccmni":
		return true, nil
	default:
		return false, nil
	}
}
