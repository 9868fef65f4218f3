package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultProfilesDiffer(t *testing.T) {
	lan := DefaultLANConfig()
	wan := DefaultWANConfig()
	loopback := DefaultLoopbackConfig()

	assert.Less(t, lan.PingTimes.BaseTimeout, wan.PingTimes.BaseTimeout, "WAN tolerates more latency than LAN")
	assert.Less(t, loopback.PingTimes.BaseTimeout, lan.PingTimes.BaseTimeout, "loopback is faster than LAN")

	assert.Equal(t, lan.Suspicion, wan.Suspicion, "profiles only retune timing, not the suspicion curve shape")
	assert.Equal(t, lan.Broadcast, loopback.Broadcast)
}
