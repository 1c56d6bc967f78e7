package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPv4RejectsShortBuffer(t *testing.T) {
	_, ok := parseIPv4(make([]byte, 10))
	assert.False(t, ok)
}

func TestParseIPv4RejectsNonIPv4Version(t *testing.T) {
	buf := make([]byte, ipv4MinHeaderLen)
	buf[0] = 0x60 // version 6
	_, ok := parseIPv4(buf)
	assert.False(t, ok)
}

func TestParseIPv4RejectsTruncatedOptions(t *testing.T) {
	buf := make([]byte, 20)
	buf[0] = 0x46 // IHL 6 -> 24-byte header, buffer only has 20
	_, ok := parseIPv4(buf)
	assert.False(t, ok)
}

func TestIPv4HeaderFieldAccess(t *testing.T) {
	src := mustIPv4("10.0.0.1")
	dst := mustIPv4("10.0.0.2")
	pkt := buildIPv4Packet(protocolUDP, src, dst, []byte("hello"))

	h, ok := parseIPv4(pkt)
	require.True(t, ok)
	assert.Equal(t, 20, h.headerLen())
	assert.Equal(t, byte(protocolUDP), h.protocol())
	assert.Equal(t, len(pkt), h.totalLength())
	assert.Equal(t, src, h.source())
	assert.Equal(t, dst, h.destination())
}

func TestIPv4HeaderSwapAddresses(t *testing.T) {
	src := mustIPv4("192.168.1.1")
	dst := mustIPv4("192.168.1.2")
	pkt := buildIPv4Packet(protocolICMP, src, dst, []byte{0, 0, 0, 0})

	h, ok := parseIPv4(pkt)
	require.True(t, ok)
	h.swapAddresses()
	assert.Equal(t, dst, h.source())
	assert.Equal(t, src, h.destination())
}

func TestIPv4HeaderRecomputeChecksumIsValid(t *testing.T) {
	src := mustIPv4("172.16.0.1")
	dst := mustIPv4("172.16.0.2")
	pkt := buildIPv4Packet(protocolUDP, src, dst, []byte("payload"))

	h, ok := parseIPv4(pkt)
	require.True(t, ok)
	h.swapAddresses()
	h.recomputeChecksum()

	assert.Equal(t, uint16(0x0000), internetChecksum(pkt[:h.headerLen()]))
}

func TestFormatIPv4RoundTrip(t *testing.T) {
	for _, s := range []string{"0.0.0.0", "255.255.255.255", "192.168.5.5", "10.0.0.1"} {
		b, ok := ipv4ToBytes(s)
		require.True(t, ok, s)
		assert.Equal(t, s, formatIPv4(b))
	}
}

func TestIPv4ToBytesRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1.2.3", "1.2.3.4.5", "256.1.1.1", "1..1.1", "a.b.c.d"} {
		_, ok := ipv4ToBytes(s)
		assert.False(t, ok, s)
	}
}
