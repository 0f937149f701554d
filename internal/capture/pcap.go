package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/googlesky/netsniff/internal/flow"
	"github.com/googlesky/netsniff/internal/obs"
)

// Well-known ports the original capture engine used to relabel a TCP
// segment as an application protocol ("TCP family includes
// HTTP/HTTPS since they are port-classified TCP").
const (
	portDNS = 53
	portHTTP = 80
	portHTTPS = 443
)

// PcapConfig configures one PcapSource. BPFFilter and Snaplen are opaque
// pass-through values, matching the teacher's PcapConfig/PcapFilters
// shape referenced in SPEC_FULL.md's domain-stack section.
type PcapConfig struct {
	Interface string
	BPFFilter string
	Snaplen int32
	Promisc bool
	QueueSize int
}

// PcapSource is the real packet-acquisition collaborator: one goroutine
// per interface reading from a live libpcap handle, decoding via
// gopacket/layers, and feeding PacketRecord into a bounded queue.
type PcapSource struct {
	cfg PcapConfig
	q *queue

	mu sync.Mutex
	handle *pcap.Handle
	stopCh chan struct{}
	done chan struct{}
	closed bool
}

// NewPcapSource builds a PcapSource for the given configuration.
// Snaplen defaults to 65535 and QueueSize to DefaultQueueDepth when
// unset.
func NewPcapSource(cfg PcapConfig) *PcapSource {
	if cfg.Snaplen <= 0 {
		cfg.Snaplen = 65535
	}
	return &PcapSource{
		cfg: cfg,
		q: newQueue(cfg.QueueSize),
		stopCh: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start opens the live capture handle, applies the BPF filter, and
// launches the producer goroutine.
func (s *PcapSource) Start() error {
	handle, err := pcap.OpenLive(s.cfg.Interface, s.cfg.Snaplen, s.cfg.Promisc, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("capture: open %s: %w", s.cfg.Interface, err)
	}
	if s.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(s.cfg.BPFFilter); err != nil {
			handle.Close()
			return fmt.Errorf("capture: BPF filter %q on %s: %w", s.cfg.BPFFilter, s.cfg.Interface, err)
		}
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	go s.run(handle)
	return nil
}

func (s *PcapSource) run(handle *pcap.Handle) {
	defer close(s.done)
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType)
	packets := packetSource.Packets()

	start := time.Now()
	for {
		select {
		case <-s.stopCh:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			if rec, ok := s.decode(pkt, start); ok {
				s.q.offer(rec)
			} else {
				obs.SkippedPackets.WithLabelValues(s.cfg.Interface).Inc()
			}
		}
	}
}

// decode turns one gopacket.Packet into a flow.PacketRecord, classifying
// protocol by transport header and well-known port exactly as the
// original scapy-based engine's _parse_packet does.
func (s *PcapSource) decode(pkt gopacket.Packet, start time.Time) (flow.PacketRecord, bool) {
	rec := flow.PacketRecord{
		Timestamp: time.Since(start).Seconds(),
		Interface: s.cfg.Interface,
		Length: len(pkt.Data()),
	}

	if ts := pkt.Metadata(); ts != nil && !ts.Timestamp.IsZero() {
		rec.Timestamp = ts.Timestamp.Sub(start).Seconds()
	}

	if ipv4 := pkt.Layer(layers.LayerTypeIPv4); ipv4 != nil {
		ip := ipv4.(*layers.IPv4)
		rec.SrcIP, rec.DstIP, rec.TTL = ip.SrcIP.String(), ip.DstIP.String(), ip.TTL
	} else if ipv6 := pkt.Layer(layers.LayerTypeIPv6); ipv6 != nil {
		ip := ipv6.(*layers.IPv6)
		rec.SrcIP, rec.DstIP, rec.TTL = ip.SrcIP.String(), ip.DstIP.String(), ip.HopLimit
	} else {
		return flow.PacketRecord{}, false
	}

	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		rec.HasPorts = true
		rec.SrcPort, rec.DstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
		rec.Protocol = classifyTCP(rec.SrcPort, rec.DstPort)
		rec.Flags = tcpFlagsOf(tcp)
		rec.Seq, rec.Ack, rec.Window = tcp.Seq, tcp.Ack, tcp.Window

	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		rec.HasPorts = true
		rec.SrcPort, rec.DstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
		if rec.SrcPort == portDNS || rec.DstPort == portDNS {
			rec.Protocol = flow.ProtoDNS
		} else {
			rec.Protocol = flow.ProtoUDP
		}

	case pkt.Layer(layers.LayerTypeICMPv4) != nil, pkt.Layer(layers.LayerTypeICMPv6) != nil:
		rec.Protocol = flow.ProtoICMP

	default:
		rec.Protocol = flow.ProtoOther
	}

	return rec, true
}

func classifyTCP(srcPort, dstPort uint16) flow.Protocol {
	switch {
	case srcPort == portHTTPS || dstPort == portHTTPS:
		return flow.ProtoHTTPS
	case srcPort == portHTTP || dstPort == portHTTP:
		return flow.ProtoHTTP
	default:
		return flow.ProtoTCP
	}
}

func tcpFlagsOf(tcp *layers.TCP) flow.TCPFlags {
	var f flow.TCPFlags
	if tcp.FIN {
		f |= flow.FlagFIN
	}
	if tcp.SYN {
		f |= flow.FlagSYN
	}
	if tcp.RST {
		f |= flow.FlagRST
	}
	if tcp.PSH {
		f |= flow.FlagPSH
	}
	if tcp.ACK {
		f |= flow.FlagACK
	}
	if tcp.URG {
		f |= flow.FlagURG
	}
	if tcp.ECE {
		f |= flow.FlagECE
	}
	if tcp.CWR {
		f |= flow.FlagCWR
	}
	return f
}

// Stop halts the capture and closes the underlying handle. Safe to call
// more than once.
func (s *PcapSource) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handle := s.handle
	s.mu.Unlock()

	close(s.stopCh)
	if handle != nil {
		handle.Close()
	}
	<-s.done
	close(s.q.ch)
}

// Packets returns the channel decoded records are delivered on.
func (s *PcapSource) Packets() <-chan flow.PacketRecord { return s.q.ch }

// Dropped returns the number of packets discarded because the bounded
// queue was full.
func (s *PcapSource) Dropped() uint64 { return s.q.dropCount() }
