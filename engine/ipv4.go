package engine

import "encoding/binary"

// IPv4 header layout (RFC 791), offsets relative to the start of the
// datagram (no utun framing at this point):
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|Version|  IHL  |  ToS          |         Total Length         |  offset 0
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|         Identification       |Flags|    Fragment Offset      |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|  TTL          |    Protocol   |       Header Checksum         |  offset 8
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                       Source Address                         |  offset 12
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                    Destination Address                       |  offset 16
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const (
	ipv4OffsetVersionIHL   = 0
	ipv4OffsetTotalLength  = 2
	ipv4OffsetProtocol     = 9
	ipv4OffsetChecksum     = 10
	ipv4OffsetSrc          = 12
	ipv4OffsetDst          = 16
	ipv4MinHeaderLen       = 20
	protocolICMP           = 1
	protocolUDP            = 17
)

// ipv4Header is a thin, allocation-free view over an IPv4 datagram. It
// never copies the underlying bytes; callers that need to hold onto
// values beyond the lifetime of the backing buffer must copy explicitly.
type ipv4Header struct {
	raw []byte
}

// parseIPv4 validates that raw is at least large enough to hold a
// version/IHL-consistent IPv4 header and returns a view over it. ok is
// false for a buffer shorter than 20 bytes, a version other than 4, or an
// IHL claiming more header bytes than the buffer holds. The total-length
// field is not checked against the buffer.
func parseIPv4(raw []byte) (h ipv4Header, ok bool) {
	if len(raw) < ipv4MinHeaderLen {
		return ipv4Header{}, false
	}
	if raw[ipv4OffsetVersionIHL]>>4 != 4 {
		return ipv4Header{}, false
	}
	hdr := ipv4Header{raw: raw}
	if len(raw) < hdr.headerLen() {
		return ipv4Header{}, false
	}
	return hdr, true
}

func (h ipv4Header) headerLen() int {
	return int(h.raw[ipv4OffsetVersionIHL]&0x0F) * 4
}

func (h ipv4Header) protocol() byte {
	return h.raw[ipv4OffsetProtocol]
}

func (h ipv4Header) totalLength() int {
	return int(binary.BigEndian.Uint16(h.raw[ipv4OffsetTotalLength:]))
}

func (h ipv4Header) source() [4]byte {
	var ip [4]byte
	copy(ip[:], h.raw[ipv4OffsetSrc:ipv4OffsetSrc+4])
	return ip
}

func (h ipv4Header) destination() [4]byte {
	var ip [4]byte
	copy(ip[:], h.raw[ipv4OffsetDst:ipv4OffsetDst+4])
	return ip
}

// swapAddresses exchanges the source and destination address fields.
func (h ipv4Header) swapAddresses() {
	for i := 0; i < 4; i++ {
		s := ipv4OffsetSrc + i
		d := ipv4OffsetDst + i
		h.raw[s], h.raw[d] = h.raw[d], h.raw[s]
	}
}

// recomputeChecksum zeroes the checksum field and recomputes it over the
// header's own bytes (headerLen() of them).
func (h ipv4Header) recomputeChecksum() {
	h.raw[ipv4OffsetChecksum] = 0
	h.raw[ipv4OffsetChecksum+1] = 0
	sum := internetChecksum(h.raw[:h.headerLen()])
	binary.BigEndian.PutUint16(h.raw[ipv4OffsetChecksum:], sum)
}

// setTotalLength writes the IPv4 total-length field.
func (h ipv4Header) setTotalLength(n int) {
	binary.BigEndian.PutUint16(h.raw[ipv4OffsetTotalLength:], uint16(n))
}

// formatIPv4 renders b as a canonical dotted-decimal string, matching the
// textual form known-IP entries are expected to be supplied in.
func formatIPv4(b [4]byte) string {
	buf := make([]byte, 0, 15)
	for i, octet := range b {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = appendUint8(buf, octet)
	}
	return string(buf)
}

func appendUint8(buf []byte, v byte) []byte {
	if v >= 100 {
		buf = append(buf, '0'+v/100)
		v %= 100
		buf = append(buf, '0'+v/10)
		v %= 10
	} else if v >= 10 {
		buf = append(buf, '0'+v/10)
		v %= 10
	}
	return append(buf, '0'+v)
}

// ipv4ToBytes parses a dotted-decimal IPv4 address into 4 bytes. ok is
// false if s is not a valid dotted-decimal address.
func ipv4ToBytes(s string) (out [4]byte, ok bool) {
	var octet, digits int
	octetIndex := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			if digits == 0 || digits > 3 || octetIndex > 3 {
				return out, false
			}
			out[octetIndex] = byte(octet)
			octetIndex++
			octet, digits = 0, 0
			continue
		}
		c := s[i]
		if c < '0' || c > '9' {
			return out, false
		}
		octet = octet*10 + int(c-'0')
		if octet > 255 {
			return out, false
		}
		digits++
	}
	if octetIndex != 4 {
		return out, false
	}
	return out, true
}
