//go:build !darwin

package tunio

import (
	"fmt"
	"os"
)

// Open on non-Darwin platforms is OpenWater: it brings up a water-backed
// TUN interface and hands back its underlying descriptor, adapted from
// the teacher's tun_linux.go/tun_windows.go createTUNInterface functions.
func Open(cfg Config) (*Device, error) {
	return OpenWater(cfg)
}

// OpenWater creates a water.Interface in TUN mode, configures its MTU and
// point-to-point address, and extracts the descriptor backing it so the
// caller can poll it directly. This is the development/CI path: the
// engine's read/write logic is fd-generic, so a water-backed Linux/Windows
// interface exercises the same code paths a real Darwin utun would.
func OpenWater(cfg Config) (*Device, error) {
	iface, err := createTUNInterface(cfg)
	if err != nil {
		return nil, wrapOpenErr("water", err)
	}

	f, ok := iface.ReadWriteCloser.(*os.File)
	if !ok {
		iface.Close()
		return nil, wrapOpenErr("water", fmt.Errorf("interface %s does not expose a pollable descriptor", iface.Name()))
	}

	return &Device{
		FD:      int(f.Fd()),
		Name:    iface.Name(),
		closeFn: iface.Close,
	}, nil
}
