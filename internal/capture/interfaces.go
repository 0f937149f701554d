package capture

import "net"

// Info describes one network interface (spec's Supplemented Features:
// interface enumeration collaborator), grounded on original_source's
// capture/interface_manager.py InterfaceInfo dataclass.
type Info struct {
	Name       string
	MAC        string
	IPv4       []string
	IPv6       []string
	IsUp       bool
	IsLoopback bool
	MTU        int
}

// InterfaceManager enumerates and validates the host's network
// interfaces, grounded on original_source's InterfaceManager
// (get_all/get_active/get_by_name/exists/validate_interfaces).
type InterfaceManager struct{}

// NewInterfaceManager creates an InterfaceManager.
func NewInterfaceManager() *InterfaceManager { return &InterfaceManager{} }

// All returns every interface the host reports, refreshed on each call
// (the original refreshes via psutil on every get_all()).
func (m *InterfaceManager) All() ([]Info, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(ifaces))
	for _, iface := range ifaces {
		out = append(out, describe(iface))
	}
	return out, nil
}

// Active returns only interfaces that are up and not loopback.
func (m *InterfaceManager) Active() ([]Info, error) {
	all, err := m.All()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(all))
	for _, info := range all {
		if info.IsUp && !info.IsLoopback {
			out = append(out, info)
		}
	}
	return out, nil
}

// ByName returns the named interface, or ok=false if it doesn't exist.
func (m *InterfaceManager) ByName(name string) (Info, bool) {
	all, err := m.All()
	if err != nil {
		return Info{}, false
	}
	for _, info := range all {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}

// Exists reports whether an interface with the given name is present.
func (m *InterfaceManager) Exists(name string) bool {
	_, ok := m.ByName(name)
	return ok
}

// ValidateInterfaces splits the requested names into those that exist
// and those that don't, mirroring validate_interfaces's "issues" list.
func (m *InterfaceManager) ValidateInterfaces(names []string) (valid, missing []string) {
	for _, name := range names {
		if m.Exists(name) {
			valid = append(valid, name)
		} else {
			missing = append(missing, name)
		}
	}
	return valid, missing
}

func describe(iface net.Interface) Info {
	info := Info{
		Name:       iface.Name,
		MAC:        iface.HardwareAddr.String(),
		IsUp:       iface.Flags&net.FlagUp != 0,
		IsLoopback: iface.Flags&net.FlagLoopback != 0,
		MTU:        iface.MTU,
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return info
	}
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			info.IPv4 = append(info.IPv4, ip.String())
		} else {
			info.IPv6 = append(info.IPv6, ip.String())
		}
	}
	return info
}

// DetectDefaultInterface returns the Active() interface carrying the
// local address of a dialed-out UDP socket (the default route, without
// sending any traffic), falling back to the first Active() interface
// with any address at all. The route-detection dial is adapted from the
// teacher's platform.DetectDefaultInterface; the interface walk itself
// now goes through InterfaceManager.Active() so this shares one
// enumeration path with ValidateInterfaces instead of re-walking
// net.Interfaces() on its own.
func DetectDefaultInterface() string {
	mgr := NewInterfaceManager()
	active, err := mgr.Active()
	if err != nil || len(active) == 0 {
		return ""
	}

	if targetIP := defaultRouteLocalIP(); targetIP != "" {
		for _, info := range active {
			if containsIP(info, targetIP) {
				return info.Name
			}
		}
	}

	for _, info := range active {
		if len(info.IPv4) > 0 || len(info.IPv6) > 0 {
			return info.Name
		}
	}
	return ""
}

// defaultRouteLocalIP dials out (without sending a packet, UDP has no
// handshake) to learn which local address the kernel would route
// through for internet-bound traffic.
func defaultRouteLocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return ""
	}
	defer conn.Close()
	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return localAddr.IP.String()
}

func containsIP(info Info, ip string) bool {
	for _, addr := range info.IPv4 {
		if addr == ip {
			return true
		}
	}
	for _, addr := range info.IPv6 {
		if addr == ip {
			return true
		}
	}
	return false
}
