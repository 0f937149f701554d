//go:build linux

package capture

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// OSCounters is one interface's OS-reported drop/error counters, the
// input LossLocalizer's interface-drop rule correlates against TCP
// retransmit patterns .
type OSCounters struct {
	RxDropped, RxFIFOErrors, RxMissed, RxErrors uint64
	TxDropped, TxErrors uint64
}

// Total sums the counters the interface-drop rule treats as evidence of
// loss at the NIC/driver layer.
func (c OSCounters) Total() uint64 {
	return c.RxDropped + c.RxFIFOErrors + c.RxMissed + c.RxErrors
}

// NetlinkCounterReader reads /proc/net/dev, the standard Linux source
// for interface packet/byte/drop/error counters (the netlink
// NETLINK_ROUTE family exposes the same numbers via RTM_GETLINK; this
// rewrite uses procfs the way the teacher's platform package prefers
// /proc parsing over netlink whenever it's simpler and equally
// accurate). Grounded on the teacher's linux_proc_net.go bufio-scanning
// style.
type NetlinkCounterReader struct {
	path string
}

// NewNetlinkCounterReader creates a reader over /proc/net/dev.
func NewNetlinkCounterReader() *NetlinkCounterReader {
	return &NetlinkCounterReader{path: "/proc/net/dev"}
}

// Read returns the current counters for the named interface.
func (r *NetlinkCounterReader) Read(iface string) (OSCounters, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return OSCounters{}, err
	}
	defer f.Close()
	return parseProcNetDev(f, iface)
}

// parseProcNetDev scans /proc/net/dev's "Inter-| Receive ... Transmit"
// table for the named interface's column values. Column layout after
// the interface-name colon:
//
//	rx_bytes rx_packets rx_errs rx_drop rx_fifo rx_frame rx_compressed rx_multicast
//	tx_bytes tx_packets tx_errs tx_drop tx_fifo tx_colls tx_carrier tx_compressed
func parseProcNetDev(r io.Reader, iface string) (OSCounters, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		if name != iface {
			continue
		}
		fields := strings.Fields(line[colon+1:])
		if len(fields) < 16 {
			return OSCounters{}, nil
		}
		return OSCounters{
			RxErrors: parseUint(fields[2]),
			RxDropped: parseUint(fields[3]),
			RxFIFOErrors: parseUint(fields[4]),
			TxErrors: parseUint(fields[10]),
			TxDropped: parseUint(fields[11]),
		}, nil
	}
	return OSCounters{}, scanner.Err()
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
