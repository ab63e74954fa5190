package receiver

import (
	"net"
	"os"
	"runtime"

	"github.com/nerrad567/screentime-core/internal/infrastructure/config"
)

// fallbackName is advertised when neither config nor the host supply a name.
const fallbackName = "screentime-device"

// DeviceInfo is the discovery reply. JSON keys match the companion app.
type DeviceInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	OSVersion string `json:"osVersion"`
	LocalIP   string `json:"localIP"`
}

// CollectDeviceInfo fills DeviceInfo from cfg, falling back to the host
// for anything left empty. Name is never empty.
func CollectDeviceInfo(cfg config.DeviceConfig) DeviceInfo {
	return collectDeviceInfo(cfg, os.Hostname, net.InterfaceAddrs)
}

func collectDeviceInfo(cfg config.DeviceConfig, hostname func() (string, error), addrs func() ([]net.Addr, error)) DeviceInfo {
	info := DeviceInfo{
		Name:      cfg.Name,
		Model:     cfg.Model,
		OSVersion: cfg.OSVersion,
		LocalIP:   cfg.LocalIP,
	}

	if info.Name == "" {
		if h, err := hostname(); err == nil && h != "" {
			info.Name = h
		} else {
			info.Name = fallbackName
		}
	}
	if info.Model == "" {
		info.Model = runtime.GOOS + "/" + runtime.GOARCH
	}
	if info.OSVersion == "" {
		info.OSVersion = runtime.GOOS
	}
	if info.LocalIP == "" {
		info.LocalIP = firstIPv4(addrs)
	}
	return info
}

// firstIPv4 returns the first non-loopback IPv4 address, or "" if none.
func firstIPv4(addrs func() ([]net.Addr, error)) string {
	list, err := addrs()
	if err != nil {
		return ""
	}
	for _, a := range list {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
