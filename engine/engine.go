// Package engine implements the packet-classification core of the
// HyperSpace tunnel: it reads raw IPv4 datagrams off a utun descriptor,
// answers ICMP echo requests and DNS queries it recognizes locally, and
// hands everything else to an outbound callback for delivery over an
// upstream transport. Inbound datagrams destined back for the descriptor
// are written through a bounded queue drained by the platform reactor.
package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/WhiteStar-Communications/HyperSpace-Service/engine/container"
	"github.com/WhiteStar-Communications/HyperSpace-Service/engine/queue"
)

// OutgoingCallback is invoked with a raw, unframed IPv4 datagram that the
// engine has decided belongs to the outbound transport rather than the
// local utun descriptor. It may be called concurrently with itself: the
// reactor goroutine calls it for read-side traffic, and WritePacket calls
// it on the caller's goroutine for answered echo requests.
type OutgoingCallback func(packet []byte)

// defaultWriteQueueCapacity bounds how many framed datagrams may be queued
// for the utun descriptor before Put blocks the caller.
const defaultWriteQueueCapacity = 1024

// Engine owns the classification state for a single utun descriptor: the
// known-IP set, the DNS mapping table, and the outbound write queue. It is
// safe for concurrent use; WritePacket, the known-IP/DNS mutators, and the
// reactor's read-side dispatch may all be called from different
// goroutines.
type Engine struct {
	tunFD int

	knownIPs *container.KnownIPSet
	dnsTable *container.DNSTable
	writeQ   *queue.BlockingDeque

	cbMu sync.RWMutex
	cb   OutgoingCallback

	reactor *reactor
}

// New returns an Engine bound to tunFD. The descriptor is not touched
// until Start is called.
func New(tunFD int) *Engine {
	e := &Engine{
		tunFD:    tunFD,
		knownIPs: container.NewKnownIPSet(),
		dnsTable: container.NewDNSTable(),
		writeQ:   queue.NewBlockingDeque(defaultWriteQueueCapacity),
	}
	e.reactor = newReactor(e)
	return e
}

// SetOutgoingCallback installs the function invoked for datagrams the
// engine has classified as not-locally-answerable. Passing nil disables
// outbound delivery; datagrams that would have been forwarded are dropped
// instead, and logged once per drop.
func (e *Engine) SetOutgoingCallback(cb OutgoingCallback) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.cb = cb
}

func (e *Engine) sendOutgoing(packet []byte) {
	e.cbMu.RLock()
	cb := e.cb
	e.cbMu.RUnlock()
	if cb == nil {
		log.Printf("engine: dropping %d-byte datagram, no outbound callback set", len(packet))
		return
	}
	cb(packet)
}

// Start launches the reactor goroutine that services the utun descriptor.
// It returns once the descriptor has been configured for non-blocking,
// event-driven I/O, or an error if that setup failed.
func (e *Engine) Start() error {
	if err := e.reactor.start(); err != nil {
		return fmt.Errorf("engine: start: %w", err)
	}
	return nil
}

// Stop signals the reactor to exit and blocks until it has done so.
func (e *Engine) Stop() {
	e.reactor.stop()
}

// WritePacket implements the inbound entry point described for the write
// path: an IPv4/ICMP echo request whose source address is a known IP is
// answered in place and routed to the outbound callback (mirroring how a
// real endpoint would see its own echo reply come back over the
// transport); everything else is queued for delivery to the utun
// descriptor.
func (e *Engine) WritePacket(packet []byte) {
	if e.tryAnswerEcho(packet) {
		return
	}
	e.enqueueWrite(packet)
}

func (e *Engine) tryAnswerEcho(packet []byte) bool {
	iph, ok := parseIPv4(packet)
	if !ok || iph.protocol() != protocolICMP {
		return false
	}

	ipHeaderLen := iph.headerLen()
	totalLen := iph.totalLength()
	if totalLen < ipHeaderLen || totalLen > len(packet) {
		return false
	}

	if !isEchoRequest(packet[ipHeaderLen:totalLen]) {
		return false
	}

	if !e.knownIPs.Contains(formatIPv4(iph.source())) {
		return false
	}

	synthesizeEchoReply(packet, iph)
	e.sendOutgoing(packet)
	return true
}

// enqueueWrite frames packet for the utun descriptor and appends it to the
// write queue, waking the reactor if it is blocked waiting for events.
func (e *Engine) enqueueWrite(packet []byte) {
	e.writeQ.Put(addFraming(packet))
	e.reactor.wake()
}

// AddKnownIP registers ipAddress as one this engine terminates ICMP echo
// requests for locally.
func (e *Engine) AddKnownIP(ipAddress string) {
	e.knownIPs.Add(ipAddress)
}

// AddKnownIPs registers each address in ipAddresses.
func (e *Engine) AddKnownIPs(ipAddresses []string) {
	e.knownIPs.AddMany(ipAddresses)
}

// DeleteKnownIP removes ipAddress from the known-IP set.
func (e *Engine) DeleteKnownIP(ipAddress string) {
	e.knownIPs.Delete(ipAddress)
}

// DeleteKnownIPs removes each address in ipAddresses.
func (e *Engine) DeleteKnownIPs(ipAddresses []string) {
	e.knownIPs.DeleteMany(ipAddresses)
}

// KnownIPs returns a snapshot of the current known-IP set.
func (e *Engine) KnownIPs() []string {
	return e.knownIPs.Snapshot()
}

// KnownIPsSet returns the engine's underlying known-IP set, for
// collaborators (such as overlay.ConfigGossip) that need to read and
// mutate it directly rather than through the per-address methods above.
func (e *Engine) KnownIPsSet() *container.KnownIPSet {
	return e.knownIPs
}

// DNSMappingsTable returns the engine's underlying DNS mapping table,
// for the same reason as KnownIPsSet.
func (e *Engine) DNSMappingsTable() *container.DNSTable {
	return e.dnsTable
}

// ReplaceDNSMappings discards the current DNS mapping table and installs
// mapping, keyed by answer IPv4 address with the list of hostnames that
// should resolve to it.
func (e *Engine) ReplaceDNSMappings(mapping map[string][]string) {
	e.dnsTable.ReplaceAll(mapping)
}

// AddDNSMapping associates hostName with answerIP, so that a DNS query for
// hostName is answered locally with answerIP.
func (e *Engine) AddDNSMapping(answerIP, hostName string) {
	e.dnsTable.Insert(answerIP, hostName)
}

// DeleteDNSMapping removes answerIP and all of its hostnames from the
// mapping table.
func (e *Engine) DeleteDNSMapping(answerIP string) {
	e.dnsTable.Delete(answerIP)
}
