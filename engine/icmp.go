package engine

const (
	icmpOffsetType     = 0
	icmpOffsetChecksum = 2
	icmpMinLen         = 8

	icmpTypeEchoRequest = 8
	icmpTypeEchoReply   = 0
)

// synthesizeEchoReply turns an ICMP echo request already sitting in packet
// (an IPv4 datagram, ipHeaderLen bytes of IP header followed by the ICMP
// message) into an echo reply in place: the ICMP type is flipped to 0, the
// ICMP checksum is recomputed over the ICMP header+payload, the IPv4
// source/destination are swapped, and the IPv4 header checksum is
// recomputed. The caller supplies the already-parsed IPv4 header view.
func synthesizeEchoReply(packet []byte, iph ipv4Header) {
	ipHeaderLen := iph.headerLen()
	totalLen := iph.totalLength()
	icmp := packet[ipHeaderLen:totalLen]

	icmp[icmpOffsetType] = icmpTypeEchoReply
	icmp[icmpOffsetChecksum] = 0
	icmp[icmpOffsetChecksum+1] = 0
	sum := internetChecksum(icmp)
	icmp[icmpOffsetChecksum] = byte(sum >> 8)
	icmp[icmpOffsetChecksum+1] = byte(sum)

	iph.swapAddresses()
	iph.recomputeChecksum()
}

// isEchoRequest reports whether the ICMP message beginning at icmp is an
// echo request (type 8) and is at least long enough to contain a header.
func isEchoRequest(icmp []byte) bool {
	return len(icmp) >= icmpMinLen && icmp[icmpOffsetType] == icmpTypeEchoRequest
}
