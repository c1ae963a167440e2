package jobs

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Environment reports whether the device currently meets job constraints.
type Environment interface {
	// Satisfies reports whether c is met, and if not, which requirement failed.
	Satisfies(c Constraints) (bool, string)
}

const (
	lowBatteryPercent = 15
	lowStorageBytes   = 500 << 20
)

// SystemEnvironment inspects the host for network, power and storage state.
type SystemEnvironment struct {
	// PowerSupplyDir is the sysfs power supply class directory.
	PowerSupplyDir string
	// StoragePath is the filesystem checked for free space.
	StoragePath string
}

// NewSystemEnvironment returns an environment checking free space at storagePath.
func NewSystemEnvironment(storagePath string) *SystemEnvironment {
	return &SystemEnvironment{
		PowerSupplyDir: "/sys/class/power_supply",
		StoragePath:    storagePath,
	}
}

// Satisfies implements Environment.
func (e *SystemEnvironment) Satisfies(c Constraints) (bool, string) {
	switch c.Network {
	case NetworkAny:
		if connected, _ := e.network(); !connected {
			return false, "no network"
		}
	case NetworkUnmetered:
		if _, unmetered := e.network(); !unmetered {
			return false, "no unmetered network"
		}
	}

	if c.RequiresCharging || c.RequiresBatteryNotLow {
		p := e.power()
		if c.RequiresCharging && !p.charging {
			return false, "not charging"
		}
		if c.RequiresBatteryNotLow && p.battery && !p.charging && p.capacity < lowBatteryPercent {
			return false, "battery low"
		}
	}

	if c.RequiresStorageNotLow {
		if free, ok := freeBytes(e.StoragePath); ok && free < lowStorageBytes {
			return false, "storage low"
		}
	}
	return true, ""
}

// network reports whether any non-loopback interface is up, and whether one
// of them is unmetered. Cellular and point-to-point links count as metered.
func (e *SystemEnvironment) network() (connected, unmetered bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		connected = true
		if !isMetered(iface) {
			unmetered = true
		}
	}
	return connected, unmetered
}

func isMetered(iface net.Interface) bool {
	if iface.Flags&net.FlagPointToPoint != 0 {
		return true
	}
	for _, prefix := range []string{"wwan", "ppp", "rmnet"} {
		if strings.HasPrefix(iface.Name, prefix) {
			return true
		}
	}
	return false
}

type powerState struct {
	battery  bool
	charging bool
	capacity int
}

// power reads sysfs. Hosts without a battery are treated as on mains power.
func (e *SystemEnvironment) power() powerState {
	state := powerState{charging: true, capacity: 100}

	entries, err := os.ReadDir(e.PowerSupplyDir)
	if err != nil {
		return state
	}

	onlineMains := false
	for _, entry := range entries {
		dir := filepath.Join(e.PowerSupplyDir, entry.Name())
		switch readSysfs(dir, "type") {
		case "Mains", "USB":
			if readSysfs(dir, "online") == "1" {
				onlineMains = true
			}
		case "Battery":
			state.battery = true
			if n, err := strconv.Atoi(readSysfs(dir, "capacity")); err == nil {
				state.capacity = n
			}
			if s := readSysfs(dir, "status"); s == "Charging" || s == "Full" {
				onlineMains = true
			}
		}
	}

	if state.battery {
		state.charging = onlineMains
	}
	return state
}

func readSysfs(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func freeBytes(path string) (uint64, bool) {
	if path == "" {
		return 0, false
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true
}
