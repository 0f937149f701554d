// Package flow implements the data model shared by every analysis
// component: parsed packet records, bidirectional flow identity, and the
// per-flow state a TCP connection accumulates over its lifetime.
package flow

// Protocol tags the L4/application protocol a packet was classified as.
// TCP family (TCP/HTTP/HTTPS) is distinguished from UDP family (UDP/DNS)
// because HTTP and HTTPS are TCP segments port-classified after the fact,
// exactly as the original scapy-based capture engine does it.
type Protocol int

const (
	ProtoTCP Protocol = iota
	ProtoUDP
	ProtoICMP
	ProtoDNS
	ProtoHTTP
	ProtoHTTPS
	ProtoOther
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	case ProtoDNS:
		return "dns"
	case ProtoHTTP:
		return "http"
	case ProtoHTTPS:
		return "https"
	default:
		return "other"
	}
}

// IsTCPFamily reports whether the protocol rides over TCP.
func (p Protocol) IsTCPFamily() bool {
	return p == ProtoTCP || p == ProtoHTTP || p == ProtoHTTPS
}

// IsUDPFamily reports whether the protocol rides over UDP.
func (p Protocol) IsUDPFamily() bool {
	return p == ProtoUDP || p == ProtoDNS
}

// TCPFlags decodes the single TCP flags byte. Bit layout matches RFC 793
// plus the ECN bits, the same constants m-lab-etl's tcp.Flags uses.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 0x01
	FlagSYN TCPFlags = 0x02
	FlagRST TCPFlags = 0x04
	FlagPSH TCPFlags = 0x08
	FlagACK TCPFlags = 0x10
	FlagURG TCPFlags = 0x20
	FlagECE TCPFlags = 0x40
	FlagCWR TCPFlags = 0x80
)

func (f TCPFlags) FIN() bool { return f&FlagFIN != 0 }
func (f TCPFlags) SYN() bool { return f&FlagSYN != 0 }
func (f TCPFlags) RST() bool { return f&FlagRST != 0 }
func (f TCPFlags) PSH() bool { return f&FlagPSH != 0 }
func (f TCPFlags) ACK() bool { return f&FlagACK != 0 }
func (f TCPFlags) URG() bool { return f&FlagURG != 0 }
func (f TCPFlags) ECE() bool { return f&FlagECE != 0 }
func (f TCPFlags) CWR() bool { return f&FlagCWR != 0 }

// PacketRecord is an immutable-once-parsed L3/L4 header summary. IsRetransmit
// and RTT are the two fields the pipeline fills in after FlowTracker
// classifies the packet; everything else is set by the capture source.
type PacketRecord struct {
	Timestamp float64 // monotonic seconds, fractional
	Interface string
	SrcIP     string
	DstIP     string
	HasPorts  bool
	SrcPort   uint16
	DstPort   uint16
	Protocol  Protocol
	Length    int
	TTL       uint8

	// TCP-only fields; zero value when Protocol is not TCP family.
	Flags  TCPFlags
	Seq    uint32
	Ack    uint32
	Window uint16

	// Derived by the pipeline after FlowTracker.Process.
	IsRetransmit bool
	RTT          float64 // seconds; 0 if no sample was taken for this packet
	HasRTT       bool
}

// IsTCP reports whether this packet belongs to the TCP protocol family.
func (p PacketRecord) IsTCP() bool { return p.Protocol.IsTCPFamily() }

// IsUDP reports whether this packet belongs to the UDP protocol family.
func (p PacketRecord) IsUDP() bool { return p.Protocol.IsUDPFamily() }

// IsICMP reports whether this packet is ICMP.
func (p PacketRecord) IsICMP() bool { return p.Protocol == ProtoICMP }
