// dhcp4c-discover is a small demonstration CLI for the dhcp4conn transport
// core: it brings up a Connection on one interface, sends a single
// DHCPDISCOVER, and prints any DHCPOFFERs it observes until interrupted.
package main

import (
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athena-dhcpd/dhcp4conn/internal/clientconfig"
	"github.com/athena-dhcpd/dhcp4conn/internal/conn"
	"github.com/athena-dhcpd/dhcp4conn/internal/logging"
	"github.com/athena-dhcpd/dhcp4conn/internal/readiness"
	"github.com/athena-dhcpd/dhcp4conn/internal/socket"
	"github.com/athena-dhcpd/dhcp4conn/pkg/dhcpv4"
)

func main() {
	configPath := flag.String("config", "/etc/dhcp4conn/client.toml", "path to configuration file")
	metricsAddr := flag.String("metrics-listen", "", "if set, serve Prometheus metrics on this address (e.g. :9167)")
	flag.Parse()

	cfg, err := clientconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Client.LogLevel, os.Stdout)
	logger.Info("dhcp4c-discover starting", "interface", cfg.Client.Interface, "mtu", cfg.Client.MTU)

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr, logger)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("discover attempt failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *clientconfig.Config, logger *slog.Logger) error {
	ifi, err := net.InterfaceByName(cfg.Client.Interface)
	if err != nil {
		return fmt.Errorf("looking up interface %s: %w", cfg.Client.Interface, err)
	}

	identity := conn.Identity{
		IfIndex:        ifi.Index,
		HType:          htypeOf(ifi),
		CHAddr:         ifi.HardwareAddr,
		BHAddr:         dhcpv4.BroadcastMAC,
		ClientID:       []byte(cfg.Client.ClientIdentifier),
		MTU:            uint16(cfg.Client.MTU),
		ForceBroadcast: cfg.Client.RequestBroadcast,
	}

	poller, err := readiness.NewPoller()
	if err != nil {
		return fmt.Errorf("creating readiness poller: %w", err)
	}
	defer poller.Close()

	sockets := &realSockets{ifi: ifi}
	const token = 1
	c, err := conn.NewConnection(identity, sockets, poller, token, logger)
	if err != nil {
		return fmt.Errorf("constructing connection: %w", err)
	}
	defer c.Deinit()

	if err := c.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	xid := newXid()
	started := time.Now()
	if err := c.Discover(xid, secsSince(started)); err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	logger.Info("sent DHCPDISCOVER", "xid", xid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			logger.Info("interrupted, shutting down")
			return nil
		default:
		}

		tokens, err := poller.Wait(1000)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		for range tokens {
			in, err := c.Dispatch()
			if err != nil {
				logger.Warn("dispatch error", "error", err)
				continue
			}
			if in == nil {
				continue
			}
			mt, _ := in.Query(dhcpv4.OptionDHCPMessageType)
			if len(mt) != 1 || dhcpv4.MessageType(mt[0]) != dhcpv4.MessageTypeOffer {
				continue
			}
			logger.Info("received DHCPOFFER",
				"yiaddr", net.IP(in.Header().YIAddr[:]).String(),
				"siaddr", net.IP(in.Header().SIAddr[:]).String())
		}
	}
}

// htypeOf reports the RFC 1700 hardware type for ifi. It infers
// ARPHRD_INFINIBAND (32) from a 20-byte hardware address alone; any other
// interface is assumed to be Ethernet.
func htypeOf(ifi *net.Interface) dhcpv4.HardwareType {
	if len(ifi.HardwareAddr) == 20 {
		return dhcpv4.HardwareTypeInfiniBand
	}
	return dhcpv4.HardwareTypeEthernet
}

// newXid picks a random transaction id, per RFC 2131 §4.1.
func newXid() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// serveMetrics runs a Prometheus /metrics endpoint in the background.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := nethttp.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	go func() {
		if err := nethttp.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

func secsSince(t time.Time) uint16 {
	secs := time.Since(t).Seconds()
	if secs < 1 {
		return 1
	}
	if secs > 65535 {
		return 65535
	}
	return uint16(secs)
}

// realSockets adapts internal/socket's Linux endpoint factories to
// internal/conn.Sockets.
type realSockets struct {
	ifi *net.Interface
}

func (s *realSockets) OpenRaw() (socket.RawEndpoint, error) {
	return socket.OpenRawEndpoint(s.ifi, dhcpv4.BroadcastMAC)
}

func (s *realSockets) OpenUDP(localIP, serverIP net.IP) (socket.UDPEndpoint, error) {
	return socket.OpenUDPEndpoint(s.ifi.Name, localIP, serverIP)
}
