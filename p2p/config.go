package p2p

import "time"

// Config for the p2p service, populated from application-level flags and node configuration
// before Start (spec §4.12 orchestrator).
type Config struct {
	NoDiscovery         bool
	StaticPeers         []string
	BootstrapNodeAddr   []string
	Discv5BootStrapAddr []string
	RelayNodeAddr       string
	LocalIP             string
	HostAddress         string
	HostDNS             string
	PrivateKey          string
	DataDir             string
	TCPPort             uint
	UDPPort             uint
	MaxInboundPeers     uint
	MaxOutboundPeers    uint
	MinSyncPeers        uint
	WhitelistCIDR       string
	EnableUPnP          bool
	Encoding            string

	// QueueSize is not read by NewService or the connector; the connector's pending-dial queue
	// has the fixed size connector.dialQueueSize (4096).
	QueueSize int
	// MetadataRequestFrequency overrides reqresp.MetadataRequestFrequency when non-zero.
	MetadataRequestFrequency time.Duration
	// OneSlot/OneEpoch feed the gossip scoring-decay derivations (spec §4.10).
	OneSlot  time.Duration
	OneEpoch time.Duration
}
