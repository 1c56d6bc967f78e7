package engine

// handleRead classifies one already-framing-stripped datagram read off the
// utun descriptor and dispatches it per spec §4.2: ICMP goes to the ICMP
// read-side handler, UDP/53 with a valid DNS question is answered locally,
// and everything else is handed to the outbound callback.
func (e *Engine) handleRead(payload []byte) {
	if len(payload) < ipv4MinHeaderLen {
		// Too short to plausibly carry the protocol byte this engine
		// classifies on; treat as an opaque pass-through datagram.
		e.sendOutgoing(payload)
		return
	}

	if payload[ipv4OffsetProtocol] == protocolICMP {
		e.handleICMPRead(payload)
		return
	}

	if e.handleDNSRead(payload) {
		return
	}

	e.sendOutgoing(payload)
}

// handleICMPRead implements spec §4.4's read-side ICMP handling: an echo
// request addressed to a known IP is forwarded to the outbound callback
// unmodified; everything else arriving as ICMP on the read path is
// dropped. This preserves the source's asymmetry (flagged in spec §9)
// between read-side ICMP, which only ever forwards echo requests, and
// write-side ICMP, which answers them.
func (e *Engine) handleICMPRead(payload []byte) {
	iph, ok := parseIPv4(payload)
	if !ok {
		return
	}
	ipHeaderLen := iph.headerLen()
	if len(payload) < ipHeaderLen+icmpMinLen {
		return
	}
	icmp := payload[ipHeaderLen:]
	if !isEchoRequest(icmp) {
		return
	}

	dst := formatIPv4(iph.destination())
	if e.knownIPs.Contains(dst) {
		e.sendOutgoing(payload)
	}
}

// handleDNSRead implements spec §4.5. It reports whether payload was
// classified as a DNS query (in which case it is never forwarded to the
// outbound callback, whether or not a matching mapping entry existed).
func (e *Engine) handleDNSRead(payload []byte) bool {
	iph, ok := parseIPv4(payload)
	if !ok {
		return false
	}
	if iph.protocol() != protocolUDP {
		return false
	}

	dnsStart, q, isDNS := classifyUDPPacket(payload, iph)
	if !isDNS {
		return false
	}

	e.dnsTable.ForEach(func(answerIP string, hostNames []string) {
		if !containsString(hostNames, q.name) {
			return
		}
		if resp, ok := buildDNSResponse(payload, iph, dnsStart, q, answerIP); ok {
			e.enqueueWrite(resp)
		}
	})

	return true
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
