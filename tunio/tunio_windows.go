//go:build windows

package tunio

import (
	"fmt"
	"os/exec"

	"github.com/songgao/water"
)

// createTUNInterface adapts the teacher's tun_windows.go, driving the
// tap-windows6 component through water and configuring it with netsh.
func createTUNInterface(cfg Config) (*water.Interface, error) {
	ifConfig := water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			ComponentID: "tap0901",
		},
	}

	iface, err := water.New(ifConfig)
	if err != nil {
		return nil, fmt.Errorf("create tun interface: %w", err)
	}
	name := iface.Name()

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = 1500
	}
	if err := exec.Command("netsh", "interface", "ipv4", "set", "subinterface",
		name, fmt.Sprintf("mtu=%d", mtu)).Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("set mtu: %w", err)
	}

	if cfg.PeerIP != "" {
		if err := exec.Command("netsh", "interface", "ip", "set", "address",
			fmt.Sprintf("name=%s", name), "source=static",
			"address="+cfg.PeerIP, "mask="+cfg.NetMask).Run(); err != nil {
			iface.Close()
			return nil, fmt.Errorf("set ip address: %w", err)
		}
	}

	if err := exec.Command("netsh", "interface", "set", "interface",
		name, "admin=enabled").Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("enable interface: %w", err)
	}

	return iface, nil
}
