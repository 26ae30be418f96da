// Package metrics defines the Prometheus metrics the DHCPv4 client
// transport core exposes. All metrics use the "dhcp4conn_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dhcp4conn"

var (
	// PacketsSent counts outbound DHCP messages by action (discover,
	// select, reboot, renew, rebind, decline, inform, release) and by the
	// egress path that actually carried them.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP messages sent, by action and egress path.",
	}, []string{"action", "egress"})

	// PacketsReceived counts inbound DHCP datagrams that passed identity
	// verification and were handed to the caller, by the transport state
	// they were read in.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total verified inbound DHCP datagrams, by transport state.",
	}, []string{"state"})

	// PacketsDropped counts inbound datagrams discarded before reaching the
	// caller, split by the reason (malformed, identity-mismatch).
	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Total inbound DHCP datagrams dropped, by reason.",
	}, []string{"reason"})

	// SendErrors counts failed sends by action, for the caller's retry
	// policy to observe independently of log lines.
	SendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Total send failures, by action.",
	}, []string{"action"})

	// TransportState is a labeled gauge reporting the Connection's current
	// transport state (INIT/PACKET/DRAINING/UDP), one label value set to 1
	// and the others to 0.
	TransportState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "transport_state",
		Help:      "Current transport state (1 = current). Label: state.",
	}, []string{"state"})

	// TransportPromotions counts transport state advances (INIT->PACKET on
	// Listen, PACKET->DRAINING on Connect, DRAINING->UDP on
	// drain-complete).
	TransportPromotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_promotions_total",
		Help:      "Total transport state promotions, by resulting state.",
	}, []string{"state"})
)
