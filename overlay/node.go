// Package overlay is a reference implementation of the "upstream overlay
// network" a HyperSpace engine forwards non-local traffic to. It is not
// part of the engine's core: the engine only ever sees a plain
// func([]byte) callback, and overlay is simply one concrete collaborator
// that can sit on the other end of it, built on the same libp2p/QUIC
// stack the teacher's VPNManager used for peer-to-peer connectivity.
package overlay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	ma "github.com/multiformats/go-multiaddr"
)

// ProtocolID names the libp2p stream protocol carrying tunnel traffic
// between two HyperSpace nodes, mirroring the teacher's VPNProtocolID.
const ProtocolID = protocol.ID("/hyperspace/tunnel/1.0.0")

const connectTimeout = 30 * time.Second

// Config configures a Node.
type Config struct {
	// ListenAddrs are libp2p multiaddr strings to listen on.
	ListenAddrs []string
	// Bootstrap is a set of multiaddrs (including a /p2p/<id> peer
	// component) of upstream nodes to dial on startup.
	Bootstrap []string
}

// Node is a libp2p host carrying HyperSpace tunnel traffic over a single
// upstream stream. Unlike the teacher's VPNManager, which maintained a
// full mesh of peer streams keyed by calculated virtual IPs, a HyperSpace
// node has exactly one active upstream at a time: it is a tunnel
// endpoint, not a mesh member.
type Node struct {
	host host.Host
	dht  *dht.IpfsDHT

	mu     sync.Mutex
	stream network.Stream

	// engineWrite is called with every inbound datagram read off the
	// upstream stream; it is wired to (*engine.Engine).WritePacket by
	// the caller.
	engineWrite func([]byte)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNode brings up a libp2p host (QUIC transport, Noise security),
// joins the DHT for peer discovery, and dials any configured bootstrap
// peers, adapted from examples/vpn/main.go's host construction and
// VPNManager's stream wiring.
func NewNode(ctx context.Context, cfg Config, engineWrite func([]byte)) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Security(noise.ID, noise.New),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("overlay: create libp2p host: %w", err)
	}

	kadDHT, err := dht.New(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("overlay: create dht: %w", err)
	}
	if err := kadDHT.Bootstrap(ctx); err != nil {
		cancel()
		kadDHT.Close()
		h.Close()
		return nil, fmt.Errorf("overlay: bootstrap dht: %w", err)
	}

	n := &Node{
		host:        h,
		dht:         kadDHT,
		engineWrite: engineWrite,
		ctx:         ctx,
		cancel:      cancel,
	}
	h.SetStreamHandler(ProtocolID, n.handleStream)

	for _, addr := range cfg.Bootstrap {
		go n.connect(addr)
	}

	return n, nil
}

// Close tears down the active stream, the DHT, and the libp2p host.
func (n *Node) Close() error {
	n.cancel()

	n.mu.Lock()
	if n.stream != nil {
		n.stream.Close()
		n.stream = nil
	}
	n.mu.Unlock()

	if n.dht != nil {
		n.dht.Close()
	}
	return n.host.Close()
}

// Host returns the underlying libp2p host, mainly so callers can build a
// ConfigGossip against the same identity and connection set.
func (n *Node) Host() host.Host {
	return n.host
}

// Callback is an engine.OutgoingCallback: it writes packet to the
// current upstream stream, dropping and logging if none is connected.
// Suitable for engine.SetOutgoingCallback.
func (n *Node) Callback(packet []byte) {
	n.mu.Lock()
	s := n.stream
	n.mu.Unlock()

	if s == nil {
		log.Printf("overlay: dropping %d-byte datagram, no upstream stream connected", len(packet))
		return
	}
	if _, err := s.Write(packet); err != nil {
		log.Printf("overlay: write to upstream stream failed: %v", err)
	}
}

// WritePacket pushes an inbound datagram (typically one just read off the
// upstream stream) through to the engine this node feeds.
func (n *Node) WritePacket(packet []byte) {
	if n.engineWrite != nil {
		n.engineWrite(packet)
	}
}

func (n *Node) handleStream(s network.Stream) {
	n.mu.Lock()
	if n.stream != nil {
		n.stream.Close()
	}
	n.stream = s
	n.mu.Unlock()

	go n.streamReader(s)
}

// streamReader treats each Read as yielding exactly one datagram,
// mirroring VPNManager.streamReader; this is only as robust as the
// underlying transport's message boundaries, which is a known
// simplification carried over from the teacher rather than a HyperSpace
// invariant.
func (n *Node) streamReader(s network.Stream) {
	defer s.Close()

	buf := make([]byte, 2000)
	for {
		size, err := s.Read(buf)
		if err != nil {
			return
		}
		cp := make([]byte, size)
		copy(cp, buf[:size])
		n.WritePacket(cp)
	}
}

func (n *Node) connect(addrStr string) {
	maddr, err := ma.NewMultiaddr(addrStr)
	if err != nil {
		log.Printf("overlay: invalid bootstrap address %q: %v", addrStr, err)
		return
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		log.Printf("overlay: invalid bootstrap peer address %q: %v", addrStr, err)
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, connectTimeout)
	defer cancel()

	if err := n.host.Connect(ctx, *info); err != nil {
		log.Printf("overlay: connect to %s failed: %v", info.ID, err)
		return
	}
	s, err := n.host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		log.Printf("overlay: open stream to %s failed: %v", info.ID, err)
		return
	}

	n.mu.Lock()
	if n.stream != nil {
		n.stream.Close()
	}
	n.stream = s
	n.mu.Unlock()

	go n.streamReader(s)
}
