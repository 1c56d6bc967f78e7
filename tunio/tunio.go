// Package tunio provides the platform bridge between a HyperSpace engine
// and a real utun-style descriptor. It sits outside the engine's own
// scope (the engine only ever sees a file descriptor and a callback) and
// exists so cmd/hyperspaced and integration tests have something
// concrete to open.
package tunio

import "fmt"

// Config describes the interface to bring up before handing its
// descriptor to an engine.
type Config struct {
	// Name is the interface name to request. On Darwin this is advisory
	// only (utunN numbering is assigned by the kernel); on Linux it is
	// passed through to the underlying driver; the Windows bridge does not
	// use it.
	Name string
	// MTU is applied to the interface after it is created.
	MTU int
	// PeerIP, with NetMask, is the address the non-Darwin water-backed
	// bridge assigns to the interface. LocalIP is carried in the config
	// but neither bridge applies it. Darwin address configuration is left
	// to the caller (typically done out-of-band with ifconfig), matching
	// how utun devices are normally provisioned.
	LocalIP string
	PeerIP  string
	NetMask string
}

// Device is an open platform TUN handle. FD is suitable for handing
// directly to engine.New; Close releases the underlying descriptor and
// any OS-level configuration performed while opening it.
type Device struct {
	FD   int
	Name string

	closeFn func() error
}

// Close releases the device.
func (d *Device) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

func wrapOpenErr(platform string, err error) error {
	return fmt.Errorf("tunio: open %s device: %w", platform, err)
}
