package flow

// FlowKey is the canonical bidirectional 5-tuple identifying a flow.
// The (ip,port) pair that is lexicographically smaller is always placed
// first, so both directions of a conversation hash to the same key.
// Non-port protocols (ICMP) use port 0 on both sides.
type FlowKey struct {
	IPLo string
	IPHi string
	PortLo uint16
	PortHi uint16
	Protocol Protocol
}

// endpointLess reports whether (ip1,port1) sorts before (ip2,port2).
func endpointLess(ip1 string, port1 uint16, ip2 string, port2 uint16) bool {
	if ip1 != ip2 {
		return ip1 < ip2
	}
	return port1 < port2
}

// Canonical builds the FlowKey for a packet's (src,dst) endpoints, swapping
// them if the source endpoint does not sort first. Calling Canonical with
// the endpoints reversed yields the identical key (P3 in ).
func Canonical(srcIP string, srcPort uint16, dstIP string, dstPort uint16, proto Protocol) FlowKey {
	if endpointLess(dstIP, dstPort, srcIP, srcPort) {
		return FlowKey{IPLo: dstIP, IPHi: srcIP, PortLo: dstPort, PortHi: srcPort, Protocol: proto}
	}
	return FlowKey{IPLo: srcIP, IPHi: dstIP, PortLo: srcPort, PortHi: dstPort, Protocol: proto}
}

// KeyFor derives the canonical FlowKey for a packet. Packets without ports
// (e.g. ICMP) use a pseudo-flow key of (src,dst,0,0,proto): that keying is
// not bidirectional, matching its "pseudo-flow" wording.
func KeyFor(p PacketRecord) FlowKey {
	if !p.HasPorts {
		return FlowKey{IPLo: p.SrcIP, IPHi: p.DstIP, Protocol: p.Protocol}
	}
	return Canonical(p.SrcIP, p.SrcPort, p.DstIP, p.DstPort, p.Protocol)
}

// IsForward reports whether a packet with the given source endpoint is
// travelling in the "sent" direction relative to this key's first endpoint.
func (k FlowKey) IsForward(srcIP string, srcPort uint16) bool {
	return srcIP == k.IPLo && srcPort == k.PortLo
}
