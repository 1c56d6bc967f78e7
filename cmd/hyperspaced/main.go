// Command hyperspaced wires a platform utun descriptor, the packet
// classification engine, and a libp2p-based overlay node together into a
// runnable HyperSpace tunnel daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/WhiteStar-Communications/HyperSpace-Service/engine"
	"github.com/WhiteStar-Communications/HyperSpace-Service/overlay"
	"github.com/WhiteStar-Communications/HyperSpace-Service/tunio"
)

func main() {
	ifName := flag.String("interface", "utun", "TUN interface name (advisory on Darwin)")
	mtu := flag.Int("mtu", 1420, "TUN interface MTU")
	listenPort := flag.Int("port", 0, "libp2p listen port (0 picks a random free port)")
	bootstrap := flag.String("bootstrap", "", "comma-separated multiaddrs of upstream overlay nodes to dial")
	knownIPs := flag.String("known-ips", "", "comma-separated IPv4 addresses to answer ICMP echo requests for locally")
	dnsMappings := flag.String("dns-mappings", "", "semicolon-separated ip=host1,host2 entries to answer DNS queries for locally")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev, err := tunio.Open(tunio.Config{Name: *ifName, MTU: *mtu})
	if err != nil {
		log.Fatalf("hyperspaced: open tun device: %v", err)
	}
	log.Printf("hyperspaced: opened tun device %s", dev.Name)

	// dev.FD's lifecycle passes to the engine's reactor from here on: its
	// loop closes the descriptor on exit, so it is not also closed through
	// dev.Close().

	eng := engine.New(dev.FD)
	if list := splitNonEmpty(*knownIPs, ","); len(list) > 0 {
		eng.AddKnownIPs(list)
	}
	for ip, hosts := range parseDNSMappings(*dnsMappings) {
		for _, host := range hosts {
			eng.AddDNSMapping(ip, host)
		}
	}

	node, err := overlay.NewNode(ctx, overlay.Config{
		ListenAddrs: []string{
			fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic", *listenPort),
		},
		Bootstrap: splitNonEmpty(*bootstrap, ","),
	}, eng.WritePacket)
	if err != nil {
		log.Fatalf("hyperspaced: create overlay node: %v", err)
	}
	defer node.Close()

	eng.SetOutgoingCallback(node.Callback)

	ps, err := pubsub.NewGossipSub(ctx, node.Host())
	if err != nil {
		log.Fatalf("hyperspaced: create pubsub: %v", err)
	}
	gossip, err := overlay.NewConfigGossip(ctx, node.Host(), ps, eng.KnownIPsSet(), eng.DNSMappingsTable())
	if err != nil {
		log.Fatalf("hyperspaced: create config gossip: %v", err)
	}
	defer gossip.Close()

	if err := eng.Start(); err != nil {
		log.Fatalf("hyperspaced: start engine: %v", err)
	}
	defer eng.Stop()

	log.Printf("hyperspaced: peer id %s", node.Host().ID())
	for _, addr := range node.Host().Addrs() {
		log.Printf("hyperspaced: listening on %s/p2p/%s", addr, node.Host().ID())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("hyperspaced: shutting down")
	time.Sleep(time.Second)
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDNSMappings parses "ip1=host1,host2;ip2=host3" into a map of
// answer IP to hostname list.
func parseDNSMappings(s string) map[string][]string {
	out := make(map[string][]string)
	for _, entry := range splitNonEmpty(s, ";") {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		ip := strings.TrimSpace(entry[:eq])
		hosts := splitNonEmpty(entry[eq+1:], ",")
		if ip == "" || len(hosts) == 0 {
			continue
		}
		out[ip] = hosts
	}
	return out
}
