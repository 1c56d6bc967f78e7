package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/WhiteStar-Communications/HyperSpace-Service/engine/container"
)

const (
	configGossipTopic     = "hyperspace-config"
	configAnnounceInterval = 30 * time.Second
	configAnnounceMaxAge   = 2 * time.Minute
)

// ConfigAnnouncement is the wire format gossiped between HyperSpace
// nodes describing one node's locally-answerable IPs and hostnames,
// adapted from the teacher's PeerInfo.
type ConfigAnnouncement struct {
	KnownIPs    []string            `json:"known_ips"`
	DNSMappings map[string][]string `json:"dns_mappings"`
	Timestamp   int64               `json:"timestamp"`
}

// ConfigGossip publishes this node's known-IP set and DNS mapping table
// to a pubsub topic on a timer, and applies announcements received from
// other nodes to the same tables, adapted from the teacher's
// Discovery (announcePeriodically/handleMessages) but repurposed to
// gossip configuration state rather than peer virtual-IP claims.
type ConfigGossip struct {
	host host.Host

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	knownIPs *container.KnownIPSet
	dnsTable *container.DNSTable

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConfigGossip joins the config gossip topic and starts the announce
// and receive loops.
func NewConfigGossip(ctx context.Context, h host.Host, ps *pubsub.PubSub, knownIPs *container.KnownIPSet, dnsTable *container.DNSTable) (*ConfigGossip, error) {
	ctx, cancel := context.WithCancel(ctx)

	topic, err := ps.Join(configGossipTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("overlay: join config gossip topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		topic.Close()
		return nil, fmt.Errorf("overlay: subscribe to config gossip topic: %w", err)
	}

	g := &ConfigGossip{
		host:     h,
		topic:    topic,
		sub:      sub,
		knownIPs: knownIPs,
		dnsTable: dnsTable,
		ctx:      ctx,
		cancel:   cancel,
	}

	go g.announcePeriodically()
	go g.handleMessages()

	return g, nil
}

// Close stops the gossip loops and leaves the topic.
func (g *ConfigGossip) Close() error {
	g.cancel()
	g.sub.Cancel()
	return g.topic.Close()
}

func (g *ConfigGossip) announcePeriodically() {
	ticker := time.NewTicker(configAnnounceInterval)
	defer ticker.Stop()

	g.announce()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.announce()
		}
	}
}

func (g *ConfigGossip) announce() {
	mappings := make(map[string][]string)
	g.dnsTable.ForEach(func(ip string, hosts []string) {
		mappings[ip] = hosts
	})

	ann := ConfigAnnouncement{
		KnownIPs:    g.knownIPs.Snapshot(),
		DNSMappings: mappings,
		Timestamp:   time.Now().Unix(),
	}

	data, err := json.Marshal(ann)
	if err != nil {
		log.Printf("overlay: marshal config announcement: %v", err)
		return
	}
	if err := g.topic.Publish(g.ctx, data); err != nil {
		log.Printf("overlay: publish config announcement: %v", err)
	}
}

func (g *ConfigGossip) handleMessages() {
	for {
		msg, err := g.sub.Next(g.ctx)
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			continue
		}
		if msg.ReceivedFrom == g.host.ID() {
			continue
		}

		var ann ConfigAnnouncement
		if err := json.Unmarshal(msg.Data, &ann); err != nil {
			continue
		}
		if time.Since(time.Unix(ann.Timestamp, 0)) > configAnnounceMaxAge {
			continue
		}

		g.apply(ann)
	}
}

// apply merges a received announcement into the local tables. Both
// KnownIPSet.AddMany and DNSTable.Insert are idempotent, so applying the
// same announcement more than once (a retransmit, an overlapping
// announce window) converges to the same state as applying it once.
func (g *ConfigGossip) apply(ann ConfigAnnouncement) {
	g.knownIPs.AddMany(ann.KnownIPs)
	for ip, hosts := range ann.DNSMappings {
		for _, host := range hosts {
			g.dnsTable.Insert(ip, host)
		}
	}
}
