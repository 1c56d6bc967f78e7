package overlay

import (
	"context"
	"testing"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhiteStar-Communications/HyperSpace-Service/engine/container"
)

func TestConfigGossipPropagatesKnownIPsAndDNSMappings(t *testing.T) {
	h1, h2 := setupTestHosts(t)
	defer h1.Close()
	defer h2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps1, err := pubsub.NewGossipSub(ctx, h1)
	require.NoError(t, err)
	ps2, err := pubsub.NewGossipSub(ctx, h2)
	require.NoError(t, err)

	ips1, dns1 := container.NewKnownIPSet(), container.NewDNSTable()
	ips2, dns2 := container.NewKnownIPSet(), container.NewDNSTable()

	ips1.Add("192.168.5.5")
	dns1.Insert("192.168.5.5", "router.local")

	g1, err := NewConfigGossip(ctx, h1, ps1, ips1, dns1)
	require.NoError(t, err)
	defer g1.Close()

	g2, err := NewConfigGossip(ctx, h2, ps2, ips2, dns2)
	require.NoError(t, err)
	defer g2.Close()

	// Give gossipsub's mesh time to form before the first announce fires.
	time.Sleep(300 * time.Millisecond)
	g1.announce()

	assert.Eventually(t, func() bool {
		return ips2.Contains("192.168.5.5")
	}, 3*time.Second, 20*time.Millisecond)

	hosts, ok := dns2.Hostnames("192.168.5.5")
	assert.True(t, ok)
	assert.Contains(t, hosts, "router.local")
}

func TestConfigGossipApplyIsIdempotent(t *testing.T) {
	ips := container.NewKnownIPSet()
	dnsTable := container.NewDNSTable()
	g := &ConfigGossip{knownIPs: ips, dnsTable: dnsTable}

	ann := ConfigAnnouncement{
		KnownIPs:    []string{"10.0.0.1"},
		DNSMappings: map[string][]string{"10.0.0.1": {"gw.local"}},
	}

	g.apply(ann)
	g.apply(ann)

	assert.Equal(t, []string{"10.0.0.1"}, ips.Snapshot())
	hosts, ok := dnsTable.Hostnames("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, []string{"gw.local"}, hosts)
}
