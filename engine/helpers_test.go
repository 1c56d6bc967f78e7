package engine

import (
	"encoding/binary"
	"strings"
)

func mustIPv4(s string) [4]byte {
	b, ok := ipv4ToBytes(s)
	if !ok {
		panic("helpers_test: bad ip literal " + s)
	}
	return b
}

// buildIPv4Packet returns a well-formed IPv4 datagram (no options) with a
// correct header checksum, wrapping payload.
func buildIPv4Packet(proto byte, src, dst [4]byte, payload []byte) []byte {
	total := ipv4MinHeaderLen + len(payload)
	b := make([]byte, total)
	b[0] = 0x45
	binary.BigEndian.PutUint16(b[2:], uint16(total))
	b[8] = 64
	b[9] = proto
	copy(b[12:16], src[:])
	copy(b[16:20], dst[:])
	copy(b[20:], payload)

	binary.BigEndian.PutUint16(b[10:], 0)
	sum := internetChecksum(b[:ipv4MinHeaderLen])
	binary.BigEndian.PutUint16(b[10:], sum)
	return b
}

// buildICMP returns an ICMP message with a correct checksum.
func buildICMP(icmpType byte, id, seq uint16, data []byte) []byte {
	b := make([]byte, icmpMinLen+len(data))
	b[icmpOffsetType] = icmpType
	binary.BigEndian.PutUint16(b[4:], id)
	binary.BigEndian.PutUint16(b[6:], seq)
	copy(b[8:], data)

	binary.BigEndian.PutUint16(b[icmpOffsetChecksum:], 0)
	sum := internetChecksum(b)
	binary.BigEndian.PutUint16(b[icmpOffsetChecksum:], sum)
	return b
}

// buildUDP returns a UDP datagram; the checksum field is left zero, which
// is valid for IPv4 UDP and matches how this engine never validates it.
func buildUDP(srcPort, dstPort uint16, payload []byte) []byte {
	b := make([]byte, udpHeaderLen+len(payload))
	binary.BigEndian.PutUint16(b[udpOffsetSrcPort:], srcPort)
	binary.BigEndian.PutUint16(b[udpOffsetDstPort:], dstPort)
	binary.BigEndian.PutUint16(b[udpOffsetLength:], uint16(len(b)))
	copy(b[udpHeaderLen:], payload)
	return b
}

// buildDNSQuestion returns a minimal DNS message with a single question,
// QDCOUNT 1, RD set, no answers.
func buildDNSQuestion(id uint16, name string, qtype uint16) []byte {
	h := make([]byte, dnsHeaderLen)
	binary.BigEndian.PutUint16(h[0:], id)
	h[2] = 0x01
	binary.BigEndian.PutUint16(h[4:], 1)

	var qname []byte
	if name != "" {
		for _, label := range strings.Split(name, ".") {
			qname = append(qname, byte(len(label)))
			qname = append(qname, label...)
		}
	}
	qname = append(qname, 0x00)

	tail := make([]byte, 4)
	binary.BigEndian.PutUint16(tail[0:], qtype)
	binary.BigEndian.PutUint16(tail[2:], 1)

	out := append(h, qname...)
	out = append(out, tail...)
	return out
}

func withFraming(payload []byte) []byte {
	return addFraming(payload)
}
