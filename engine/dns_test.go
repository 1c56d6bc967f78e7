package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDNSNameSimple(t *testing.T) {
	q := buildDNSQuestion(1, "example.com", qtypeA)
	name, end, ok := extractDNSName(q, dnsHeaderLen, 0)
	require.True(t, ok)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, dnsHeaderLen+len("example.com")+2, end)
}

func TestExtractDNSNamePointerCompression(t *testing.T) {
	// A message with the real name at offset 12, and a second question
	// section pointing back at it via a compression pointer.
	msg := buildDNSQuestion(1, "example.com", qtypeA)
	pointer := []byte{0xC0, 0x0C}
	name, _, ok := extractDNSName(append(msg, pointer...), len(msg), 0)
	require.True(t, ok)
	assert.Equal(t, "example.com", name)
}

func TestExtractDNSNameRejectsDeepPointerChain(t *testing.T) {
	// Six pointers, each jumping to the previous one, none ever reaching
	// a real label; must fail rather than loop forever.
	msg := make([]byte, 2*8)
	for i := 0; i < 7; i++ {
		off := i * 2
		if off+1 >= len(msg) {
			break
		}
		target := off - 2
		if target < 0 {
			target = 0
		}
		msg[off] = 0xC0 | byte(target>>8)
		msg[off+1] = byte(target)
	}
	_, _, ok := extractDNSName(msg, 12, 0)
	assert.False(t, ok)
}

func TestExtractDNSNameRejectsOutOfBoundsLabel(t *testing.T) {
	msg := []byte{20, 'a', 'b'} // length byte claims 20 bytes, only 2 follow
	_, _, ok := extractDNSName(msg, 0, 0)
	assert.False(t, ok)
}

func TestClassifyUDPPacketRecognizesDNSQuery(t *testing.T) {
	dnsMsg := buildDNSQuestion(0x1234, "router.local", qtypeA)
	udp := buildUDP(53000, dnsPort, dnsMsg)
	pkt := buildIPv4Packet(protocolUDP, mustIPv4("10.0.0.5"), mustIPv4("10.0.0.1"), udp)

	h, ok := parseIPv4(pkt)
	require.True(t, ok)

	dnsStart, q, isDNS := classifyUDPPacket(pkt, h)
	require.True(t, isDNS)
	assert.Equal(t, "router.local", q.name)
	assert.Equal(t, uint16(qtypeA), q.qtype)
	assert.Equal(t, h.headerLen()+udpHeaderLen, dnsStart)
}

func TestClassifyUDPPacketIgnoresNonDNSPort(t *testing.T) {
	udp := buildUDP(53000, 8053, buildDNSQuestion(1, "router.local", qtypeA))
	pkt := buildIPv4Packet(protocolUDP, mustIPv4("10.0.0.5"), mustIPv4("10.0.0.1"), udp)
	h, ok := parseIPv4(pkt)
	require.True(t, ok)

	_, _, isDNS := classifyUDPPacket(pkt, h)
	assert.False(t, isDNS)
}

func TestClassifyUDPPacketRejectsMalformedQuestion(t *testing.T) {
	udp := buildUDP(53000, dnsPort, []byte{0x00, 0x01}) // far too short
	pkt := buildIPv4Packet(protocolUDP, mustIPv4("10.0.0.5"), mustIPv4("10.0.0.1"), udp)
	h, ok := parseIPv4(pkt)
	require.True(t, ok)

	_, _, isDNS := classifyUDPPacket(pkt, h)
	assert.False(t, isDNS)
}

func TestBuildDNSResponseAnswersARecord(t *testing.T) {
	dnsMsg := buildDNSQuestion(0xABCD, "router.local", qtypeA)
	udp := buildUDP(53000, dnsPort, dnsMsg)
	pkt := buildIPv4Packet(protocolUDP, mustIPv4("10.0.0.5"), mustIPv4("10.0.0.1"), udp)
	h, ok := parseIPv4(pkt)
	require.True(t, ok)

	dnsStart, q, isDNS := classifyUDPPacket(pkt, h)
	require.True(t, isDNS)

	resp, ok := buildDNSResponse(pkt, h, dnsStart, q, "192.168.5.5")
	require.True(t, ok)

	rh, ok := parseIPv4(resp)
	require.True(t, ok)
	assert.Equal(t, mustIPv4("10.0.0.1"), rh.source())
	assert.Equal(t, mustIPv4("10.0.0.5"), rh.destination())
	assert.Equal(t, uint16(0x0000), internetChecksum(resp[:rh.headerLen()]))

	dns := resp[dnsStart:]
	assert.Equal(t, byte(0x81), dns[dnsOffsetFlagsHi])
	assert.Equal(t, byte(0x80), dns[dnsOffsetFlagsLo])
	assert.Equal(t, byte(0x00), dns[dnsOffsetANCOUNT])
	assert.Equal(t, byte(0x01), dns[dnsOffsetANCOUNT+1])

	answer := dns[q.questionEnd:]
	require.Len(t, answer, 16)
	assert.Equal(t, []byte{0xC0, 0x0C}, answer[0:2])
	assert.Equal(t, mustIPv4("192.168.5.5"), [4]byte(answer[12:16]))
}

func TestBuildDNSResponseSuppressesAAAAAnswer(t *testing.T) {
	dnsMsg := buildDNSQuestion(1, "router.local", qtypeAAAA)
	udp := buildUDP(53000, dnsPort, dnsMsg)
	pkt := buildIPv4Packet(protocolUDP, mustIPv4("10.0.0.5"), mustIPv4("10.0.0.1"), udp)
	h, ok := parseIPv4(pkt)
	require.True(t, ok)

	dnsStart, q, isDNS := classifyUDPPacket(pkt, h)
	require.True(t, isDNS)

	resp, ok := buildDNSResponse(pkt, h, dnsStart, q, "192.168.5.5")
	require.True(t, ok)

	dns := resp[dnsStart:]
	assert.Equal(t, byte(0x00), dns[dnsOffsetANCOUNT])
	assert.Equal(t, byte(0x00), dns[dnsOffsetANCOUNT+1])
	assert.Equal(t, dnsStart+q.questionEnd, len(resp))
}

func TestBuildDNSResponseRejectsUnsupportedQType(t *testing.T) {
	dnsMsg := buildDNSQuestion(1, "router.local", 15) // MX
	udp := buildUDP(53000, dnsPort, dnsMsg)
	pkt := buildIPv4Packet(protocolUDP, mustIPv4("10.0.0.5"), mustIPv4("10.0.0.1"), udp)
	h, ok := parseIPv4(pkt)
	require.True(t, ok)

	dnsStart, q, isDNS := classifyUDPPacket(pkt, h)
	require.True(t, isDNS)

	_, ok = buildDNSResponse(pkt, h, dnsStart, q, "192.168.5.5")
	assert.False(t, ok)
}
