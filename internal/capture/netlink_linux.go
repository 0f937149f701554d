//go:build linux

package capture

import (
	"fmt"
	"unsafe"

	"github.com/mdlayher/netlink"
)

// Netlink INET_DIAG wire constants (see linux/sock_diag.h, linux/inet_diag.h).
const (
	sockDiagByFamily = 20
	afINET = 2
	afINET6 = 10
	ipprotoTCP = 6
	allTCPStates = 0xFFF
)

// inetDiagReqV2 is the wire format for a sock_diag dump request.
type inetDiagReqV2 struct {
	Family uint8
	Protocol uint8
	Ext uint8
	Pad uint8
	States uint32
	ID inetDiagSockID
}

// inetDiagSockID identifies a socket; zeroed here since we dump every
// TCP socket rather than querying one by tuple.
type inetDiagSockID struct {
	SPort [2]byte
	DPort [2]byte
	Src [16]byte
	Dst [16]byte
	If uint32
	Cookie [2]uint32
}

// inetDiagMsg is the response header. Retrans is the kernel's own
// per-socket retransmit counter, independent of anything this module
// infers from packet captures.
type inetDiagMsg struct {
	Family uint8
	State uint8
	Timer uint8
	Retrans uint8
	ID inetDiagSockID
	Expires uint32
	RQueue uint32
	WQueue uint32
	UID uint32
	Inode uint32
}

// SocketRetransmitProbe corroborates the pipeline's packet-capture-derived
// retransmit counts with the kernel's own INET_DIAG accounting, the way
// ss(8)/netstat -s cross check a sniffer's view of loss (// LossLocalizer takes retransmit stats as an input collaborator can
// supply from any source). Kept as an optional secondary signal: a nil
// or failing probe never blocks capture, since pcap-derived counts are
// the primary signal.
type SocketRetransmitProbe struct {
	conn *netlink.Conn
}

// NewSocketRetransmitProbe dials NETLINK_SOCK_DIAG (protocol 4) and
// verifies the kernel can answer an INET_DIAG dump. It returns an error
// when the inet_diag/tcp_diag kernel modules are unavailable, in which
// case callers should simply skip corroboration.
func NewSocketRetransmitProbe() (*SocketRetransmitProbe, error) {
	conn, err := netlink.Dial(4, nil)
	if err != nil {
		return nil, fmt.Errorf("dial sock_diag: %w", err)
	}
	p := &SocketRetransmitProbe{conn: conn}
	if _, err := p.dump(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("probe inet_diag: %w", err)
	}
	return p, nil
}

// Close releases the netlink socket.
func (p *SocketRetransmitProbe) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// TotalRetransmits sums the kernel-reported Retrans counter across
// every live TCP socket (IPv4 and IPv6), giving a system-wide figure a
// caller can compare against the pipeline's own fast+timeout tally to
// sanity-check the capture-derived classification.
func (p *SocketRetransmitProbe) TotalRetransmits() (uint64, error) {
	var total uint64
	for _, family := range []uint8{afINET, afINET6} {
		msgs, err := p.dumpFamily(family)
		if err != nil {
			return 0, err
		}
		total += sumRetransmits(msgs)
	}
	return total, nil
}

// sumRetransmits extracts and sums the Retrans byte from each dump
// message's inet_diag_msg header. Split out from TotalRetransmits so it
// can be exercised with synthetic netlink.Message values, without a
// live sock_diag socket.
func sumRetransmits(msgs []netlink.Message) uint64 {
	var total uint64
	for _, m := range msgs {
		if len(m.Data) < int(unsafe.Sizeof(inetDiagMsg{})) {
			continue
		}
		diag := (*inetDiagMsg)(unsafe.Pointer(&m.Data[0]))
		total += uint64(diag.Retrans)
	}
	return total
}

// dump probes AF_INET as a cheap availability check.
func (p *SocketRetransmitProbe) dump() ([]netlink.Message, error) {
	return p.dumpFamily(afINET)
}

func (p *SocketRetransmitProbe) dumpFamily(family uint8) ([]netlink.Message, error) {
	req := inetDiagReqV2{
		Family: family,
		Protocol: ipprotoTCP,
		States: allTCPStates,
	}
	reqBytes := (*[unsafe.Sizeof(req)]byte)(unsafe.Pointer(&req))[:]

	msg := netlink.Message{
		Header: netlink.Header{
			Type: sockDiagByFamily,
			Flags: netlink.Request | netlink.Dump,
		},
		Data: reqBytes,
	}
	return p.conn.Execute(msg)
}
