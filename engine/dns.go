package engine

import "encoding/binary"

const (
	udpOffsetSrcPort = 0
	udpOffsetDstPort = 2
	udpOffsetLength  = 4
	udpOffsetSum     = 6
	udpHeaderLen     = 8

	dnsPort           = 53
	dnsHeaderLen      = 12
	dnsOffsetFlagsHi  = 2
	dnsOffsetFlagsLo  = 3
	dnsOffsetANCOUNT  = 6
	dnsMaxPointerHops = 5

	qtypeA     = 1
	qtypeAAAA  = 28
	qtypeHTTPS = 65

	dnsAnswerTTLSeconds = 300
)

// dnsQuery describes a successfully-classified DNS question section.
type dnsQuery struct {
	name  string
	qtype uint16
	// questionEnd is the offset, relative to the start of the DNS
	// payload, just past QCLASS: 12 (header) + qname-on-wire + 4.
	questionEnd int
}

// classifyUDPPacket inspects an IPv4/UDP datagram and reports whether it is
// a DNS query addressed to port 53 with a syntactically valid question
// section. A false result means "not a DNS query" (either genuinely not
// DNS, or malformed in a way the spec treats identically to not-DNS) and
// the caller should fall back to ordinary UDP handling.
func classifyUDPPacket(packet []byte, iph ipv4Header) (dnsStart int, q dnsQuery, isDNS bool) {
	ipHeaderLen := iph.headerLen()
	if len(packet) < ipHeaderLen+udpHeaderLen {
		return 0, dnsQuery{}, false
	}
	udp := packet[ipHeaderLen:]
	dstPort := binary.BigEndian.Uint16(udp[udpOffsetDstPort:])
	if dstPort != dnsPort {
		return 0, dnsQuery{}, false
	}

	dnsStart = ipHeaderLen + udpHeaderLen
	dnsPayload := packet[dnsStart:]
	if len(dnsPayload) < dnsHeaderLen {
		return 0, dnsQuery{}, false
	}

	name, nameEnd, ok := extractDNSName(dnsPayload, dnsHeaderLen, 0)
	if !ok {
		return 0, dnsQuery{}, false
	}
	questionEnd := nameEnd + 4
	if len(dnsPayload) < questionEnd {
		return 0, dnsQuery{}, false
	}

	qtype := binary.BigEndian.Uint16(dnsPayload[questionEnd-4 : questionEnd-2])

	return dnsStart, dnsQuery{name: name, qtype: qtype, questionEnd: questionEnd}, true
}

// extractDNSName parses a DNS name starting at offset within payload,
// following compression pointers (top two bits of the length byte set to
// 11) up to dnsMaxPointerHops deep. ok is false if any offset referenced,
// directly or through a pointer, runs past the end of payload, or if the
// pointer chain is too deep.
func extractDNSName(payload []byte, offset int, depth int) (name string, endOffset int, ok bool) {
	if depth > dnsMaxPointerHops {
		return "", 0, false
	}

	originalOffset := offset
	jumped := false

	for offset < len(payload) {
		length := payload[offset]

		if length&0xC0 == 0xC0 {
			if offset+1 >= len(payload) {
				return "", 0, false
			}
			pointer := int(length&0x3F)<<8 | int(payload[offset+1])
			offset += 2

			pointedName, _, pOK := extractDNSName(payload, pointer, depth+1)
			if !pOK {
				return "", 0, false
			}
			if name != "" && pointedName != "" {
				name += "."
			}
			name += pointedName
			jumped = true
			break
		}

		if length == 0 {
			offset++
			break
		}

		offset++
		end := offset + int(length)
		if end > len(payload) {
			return "", 0, false
		}
		if name != "" {
			name += "."
		}
		name += string(payload[offset:end])
		offset = end
	}

	if jumped {
		endOffset = originalOffset + 2
	} else {
		endOffset = offset
	}
	return name, endOffset, true
}

// buildDNSResponse synthesizes a reply datagram for q, whose question
// section lives in the UDP payload of packet starting at dnsStart, and
// whose matched mapping entry resolves to answerIP (a dotted-decimal
// IPv4 address). ok is false if qtype isn't one this engine answers
// (anything other than A, AAAA, or HTTPS).
func buildDNSResponse(packet []byte, iph ipv4Header, dnsStart int, q dnsQuery, answerIP string) (response []byte, ok bool) {
	switch q.qtype {
	case qtypeA, qtypeAAAA, qtypeHTTPS:
	default:
		return nil, false
	}

	ipHeaderLen := iph.headerLen()
	resp := make([]byte, dnsStart+q.questionEnd)
	copy(resp, packet[:dnsStart+q.questionEnd])

	dns := resp[dnsStart:]
	dns[dnsOffsetFlagsHi] = 0x81
	dns[dnsOffsetFlagsLo] = 0x80

	if q.qtype == qtypeAAAA || q.qtype == qtypeHTTPS {
		dns[dnsOffsetANCOUNT] = 0x00
		dns[dnsOffsetANCOUNT+1] = 0x00
	} else {
		dns[dnsOffsetANCOUNT] = 0x00
		dns[dnsOffsetANCOUNT+1] = 0x01

		addr, addrOK := ipv4ToBytes(answerIP)
		if !addrOK {
			return nil, false
		}

		answer := []byte{
			0xC0, 0x0C, // pointer to offset 12 (start of QNAME)
			0x00, 0x01, // TYPE A
			0x00, 0x01, // CLASS IN
			0x00, 0x00, 0x01, 0x2C, // TTL 300
			0x00, 0x04, // RDLENGTH 4
		}
		answer = append(answer, addr[:]...)
		resp = append(resp, answer...)
	}

	newIPH, _ := parseIPv4(resp)
	newIPH.swapAddresses()
	newIPH.setTotalLength(len(resp))

	udp := resp[ipHeaderLen:dnsStart]
	udp[udpOffsetSrcPort], udp[udpOffsetSrcPort+1], udp[udpOffsetDstPort], udp[udpOffsetDstPort+1] =
		udp[udpOffsetDstPort], udp[udpOffsetDstPort+1], udp[udpOffsetSrcPort], udp[udpOffsetSrcPort+1]
	binary.BigEndian.PutUint16(udp[udpOffsetLength:], uint16(len(resp)-ipHeaderLen))
	udp[udpOffsetSum], udp[udpOffsetSum+1] = 0, 0

	newIPH.recomputeChecksum()

	return resp, true
}
