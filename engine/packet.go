package engine

// Packet is a single layer-3 datagram as seen by the overlay: framing has
// already been stripped on the way in, and is added only at the moment
// bytes are written to the utun descriptor.
type Packet []byte

// utunFramingHeader is the 4-byte prefix macOS/iOS prepend to every buffer
// read from or written to a utun descriptor. Only the trailing byte is
// meaningful: it names the address family of the payload that follows.
var utunFramingHeader = [4]byte{0x00, 0x00, 0x00, familyIPv4}

const familyIPv4 = 0x02

const (
	// maxReadSize bounds a single read from the utun descriptor.
	maxReadSize = 2000

	// utunHeaderLen is the length of the framing prefix.
	utunHeaderLen = 4
)

// stripFraming removes the 4-byte utun header from a buffer read off the
// descriptor. ok is false if fewer than utunHeaderLen bytes were present,
// in which case the read is a short read and must be dropped silently.
func stripFraming(raw []byte) (payload []byte, ok bool) {
	if len(raw) < utunHeaderLen {
		return nil, false
	}
	return raw[utunHeaderLen:], true
}

// addFraming prepends the 4-byte utun header to a payload about to be
// written to the descriptor.
func addFraming(payload []byte) []byte {
	framed := make([]byte, 0, utunHeaderLen+len(payload))
	framed = append(framed, utunFramingHeader[:]...)
	framed = append(framed, payload...)
	return framed
}
