package swim

import "time"

// JoinConfig controls the join-bootstrap routine (an external collaborator
// per spec §1). Engine.Join reads MaxRounds; cmd/swim passes its seed
// addresses to Engine.Join directly and does not read SeedAddrs.
type JoinConfig struct {
	MaxRounds int
	SeedAddrs []Addr
}

// BroadcastConfig controls the piggyback/broadcast-queue collaborator
// (spec §6): Multiplier scales the retransmit-count formula
// multiplier*ceil(log10(n+1)), FreeBytes is the frame-size budget left for
// piggybacked broadcasts after the primary payload.
type BroadcastConfig struct {
	Multiplier int
	FreeBytes  int
}

// SyncConfig holds the connection-oriented transport timeouts for the
// full-state push-pull exchange (spec §4.8, §6).
type SyncConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// PingConfig holds the fan-out width for indirect probes (spec §6).
type PingConfig struct {
	IndirectChecks int
}

// GossipConfig holds the sampled-peer-count range [Lo, Hi) for each gossip
// round (spec §4.8, §6).
type GossipConfig struct {
	Lo, Hi int
}

// StateConfig holds this node's starting incarnation and metadata.
type StateConfig struct {
	InitialIncarnation uint64
	Metadata           []byte
}

// NodeConfig holds this node's own network identity.
type NodeConfig struct {
	BindAddr      Addr
	AdvertiseAddr Addr
	State         StateConfig
}

// IOConfig holds transport buffer sizing and a behavioral flag shared with
// the transport collaborator (spec §6).
type IOConfig struct {
	OutBufferSize int
	InBufferSize  int
	// SuspectDead is part of the configuration surface but is not read by
	// the engine or by wire.Transport: an Ack from a node this engine
	// believes Dead always downgrades it to Suspect.
	SuspectDead bool
}

// ReclaimConfig holds how long a Dead or Left node is retained before it
// is evicted from the NodeSet (spec §3 — "destroyed only after it has been
// in Dead or Left for a configured reclaim duration").
type ReclaimConfig struct {
	DeadAfter time.Duration
	LeftAfter time.Duration
}

// AwarenessConfig holds the Awareness counter's upper bound.
type AwarenessConfig struct {
	Max uint32
}

// Config is the full configuration surface recognized by the engine (spec
// §6). It is ambient, not core state: the core consumes its fields once at
// construction time and otherwise never mutates it.
type Config struct {
	Awareness AwarenessConfig
	Join      JoinConfig
	Broadcast BroadcastConfig
	Suspicion SuspicionConfig
	Ping      PingConfig
	PingTimes PingTimingConfig
	Gossip    GossipConfig
	GossipInt time.Duration
	Sync      SyncConfig
	SyncTimes SyncTimingConfig
	Node      NodeConfig
	IO        IOConfig
	Reclaim   ReclaimConfig
}

// DefaultLANConfig returns timing suitable for a low-latency LAN, in the
// style of the well-known SWIM-family lan/wan/local presets (carried over
// from original_source's client/config.rs Configs trait).
func DefaultLANConfig() Config {
	return Config{
		Awareness: AwarenessConfig{Max: DefaultAwarenessMax},
		Join:      JoinConfig{MaxRounds: 5},
		Broadcast: BroadcastConfig{Multiplier: 4, FreeBytes: 200},
		Suspicion: SuspicionConfig{Alpha: 1.0, Beta: 6.0, K: 3},
		Ping:      PingConfig{IndirectChecks: 3},
		PingTimes: PingTimingConfig{BaseInterval: time.Second, BaseTimeout: 500 * time.Millisecond},
		Gossip:    GossipConfig{Lo: 2, Hi: 4},
		GossipInt: 200 * time.Millisecond,
		Sync:      SyncConfig{ConnectTimeout: 2 * time.Second, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		SyncTimes: SyncTimingConfig{BaseInterval: 30 * time.Second, Scale: 30},
		IO:        IOConfig{OutBufferSize: 1400, InBufferSize: 1400, SuspectDead: true},
		Reclaim:   ReclaimConfig{DeadAfter: 24 * time.Hour, LeftAfter: 24 * time.Hour},
	}
}

// DefaultWANConfig returns timing suitable for a higher-latency WAN: wider
// timeouts and slower base cadences than DefaultLANConfig.
func DefaultWANConfig() Config {
	c := DefaultLANConfig()
	c.PingTimes.BaseInterval = 5 * time.Second
	c.PingTimes.BaseTimeout = 3 * time.Second
	c.GossipInt = time.Second
	c.Sync.ConnectTimeout = 5 * time.Second
	c.Sync.ReadTimeout = 10 * time.Second
	c.Sync.WriteTimeout = 10 * time.Second
	c.SyncTimes.BaseInterval = 2 * time.Minute
	return c
}

// DefaultLoopbackConfig returns timing suitable for same-process/loopback
// testing: fast cadences, short timeouts.
func DefaultLoopbackConfig() Config {
	c := DefaultLANConfig()
	c.PingTimes.BaseInterval = 100 * time.Millisecond
	c.PingTimes.BaseTimeout = 50 * time.Millisecond
	c.GossipInt = 20 * time.Millisecond
	c.SyncTimes.BaseInterval = time.Second
	c.Reclaim.DeadAfter = time.Minute
	c.Reclaim.LeftAfter = time.Minute
	return c
}
