//go:build linux

package tunio

import (
	"fmt"
	"net"
	"os/exec"

	"github.com/songgao/water"
)

// createTUNInterface adapts the teacher's tun_linux.go: it lets the
// kernel assign an interface name when Config.Name is empty, then sets
// MTU, brings the link up, and assigns the point-to-point address with
// the `ip` command line tool.
func createTUNInterface(cfg Config) (*water.Interface, error) {
	ifConfig := water.Config{DeviceType: water.TUN}
	if cfg.Name != "" {
		ifConfig.PlatformSpecificParams.Name = cfg.Name
	}

	iface, err := water.New(ifConfig)
	if err != nil {
		return nil, fmt.Errorf("create tun interface: %w", err)
	}

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = 1500
	}
	if err := exec.Command("ip", "link", "set", "dev", iface.Name(), "mtu", fmt.Sprint(mtu)).Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("set mtu: %w", err)
	}
	if err := exec.Command("ip", "link", "set", "dev", iface.Name(), "up").Run(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("bring interface up: %w", err)
	}

	if cfg.PeerIP != "" {
		mask := net.IPMask(net.ParseIP(cfg.NetMask).To4())
		addr := fmt.Sprintf("%s/%d", cfg.PeerIP, maskBits(mask))
		if err := exec.Command("ip", "addr", "add", addr, "dev", iface.Name()).Run(); err != nil {
			iface.Close()
			return nil, fmt.Errorf("set ip address: %w", err)
		}
	}

	return iface, nil
}
