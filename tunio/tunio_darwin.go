//go:build darwin

package tunio

import (
	"fmt"
	"os/exec"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// utunControlName is the kernel control name registered by the utun
// driver; resolving it via CTLIOCGINFO is how a userspace process gets
// at a utun device without cgo or a private syscall wrapper.
const utunControlName = "com.apple.net.utun_control"

// maxUTUNUnits bounds how many utunN units Open will probe; Config.Name is
// not consulted, so probing always starts from the first unit.
const maxUTUNUnits = 32

// ctlInfo mirrors struct ctl_info from <sys/kern_control.h>.
type ctlInfo struct {
	ctlID   uint32
	ctlName [96]byte
}

// sockaddrCtl mirrors struct sockaddr_ctl from <sys/kern_control.h>.
type sockaddrCtl struct {
	scLen     uint8
	scFamily  uint8
	ssSysaddr uint16
	scID      uint32
	scUnit    uint32
	scReserved [5]uint32
}

// Open opens the next available utun device by connecting a PF_SYSTEM /
// SYSPROTO_CONTROL socket to the utun kernel control, exactly the
// mechanism macOS provides for userspace utun access without a kext or
// cgo. Config.Name is ignored; the unit number is whatever the kernel
// hands back.
func Open(cfg Config) (*Device, error) {
	fd, err := unix.Socket(unix.AF_SYSTEM, unix.SOCK_DGRAM, unix.SYSPROTO_CONTROL)
	if err != nil {
		return nil, wrapOpenErr("darwin utun", err)
	}

	info := ctlInfo{}
	copy(info.ctlName[:], utunControlName)
	if err := ioctlCtlInfo(fd, &info); err != nil {
		_ = unix.Close(fd)
		return nil, wrapOpenErr("darwin utun", fmt.Errorf("CTLIOCGINFO: %w", err))
	}

	var connectErr error
	var unit uint32
	for u := uint32(1); u <= maxUTUNUnits; u++ {
		addr := sockaddrCtl{
			scLen:    uint8(unsafe.Sizeof(sockaddrCtl{})),
			scFamily: unix.AF_SYSTEM,
			scID:     info.ctlID,
			scUnit:   u,
		}
		connectErr = connectCtl(fd, &addr)
		if connectErr == nil {
			unit = u
			break
		}
	}
	if connectErr != nil {
		_ = unix.Close(fd)
		return nil, wrapOpenErr("darwin utun", fmt.Errorf("no free utun unit: %w", connectErr))
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, wrapOpenErr("darwin utun", err)
	}

	name := fmt.Sprintf("utun%d", unit-1)
	if cfg.MTU > 0 {
		if err := setInterfaceMTU(name, cfg.MTU); err != nil {
			_ = unix.Close(fd)
			return nil, wrapOpenErr("darwin utun", err)
		}
	}

	return &Device{
		FD:      fd,
		Name:    name,
		closeFn: func() error { return unix.Close(fd) },
	}, nil
}

func ioctlCtlInfo(fd int, info *ctlInfo) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.CTLIOCGINFO), uintptr(unsafe.Pointer(info)))
	if errno != 0 {
		return errno
	}
	return nil
}

func setInterfaceMTU(name string, mtu int) error {
	if err := exec.Command("ifconfig", name, "mtu", strconv.Itoa(mtu)).Run(); err != nil {
		return fmt.Errorf("set mtu on %s: %w", name, err)
	}
	return nil
}

func connectCtl(fd int, addr *sockaddrCtl) error {
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(addr)), unsafe.Sizeof(*addr))
	if errno != 0 {
		return errno
	}
	return nil
}
