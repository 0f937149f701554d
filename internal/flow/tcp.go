package flow

import "github.com/googlesky/netsniff/internal/ring"

// TCPState is the connection state driven purely by observed flags
// ( "State transitions").
type TCPState int

const (
	StateUnknown TCPState = iota
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait
	StateClosed
)

func (s TCPState) String() string {
	switch s {
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait:
		return "FIN_WAIT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const windowSizeCapacity = 100

// TCPExtension carries the fields adds on top of Flow for TCP
// connections (handshake timing, state, window/ECN tracking). It is the Go
// analogue of the original's TCPConnection(Flow) subclass, modeled as an
// attached extension rather than embedding, since a Flow's protocol family
// is decided once at creation and never changes.
type TCPExtension struct {
	State TCPState

	hasSynTime bool
	synTime float64
	hasSynAck bool
	synAckTime float64
	hasEst bool
	estTime float64

	WindowSizes *ring.Window

	EcnEchoCount uint64
	WindowReductions uint64
}

func newTCPExtension() *TCPExtension {
	return &TCPExtension{
		WindowSizes: ring.New(windowSizeCapacity),
	}
}

// HandshakeTime returns the SYN-to-ESTABLISHED duration in seconds, if both
// timestamps are known.
func (t *TCPExtension) HandshakeTime() (float64, bool) {
	if !t.hasSynTime || !t.hasEst {
		return 0, false
	}
	return t.estTime - t.synTime, true
}

// HandshakeTimeMS returns HandshakeTime in milliseconds.
func (t *TCPExtension) HandshakeTimeMS() (float64, bool) {
	d, ok := t.HandshakeTime()
	if !ok {
		return 0, false
	}
	return d * 1000, true
}

// AvgWindowSize returns the mean observed TCP window size.
func (t *TCPExtension) AvgWindowSize() float64 { return t.WindowSizes.Mean() }

// ApplyFlags advances the TCP state machine for one packet and returns a
// completed RTT sample (seconds) when the SYN->SYN-ACK pair resolves, per
// . pending is the flow table's per-key pending-SYN time,
// passed in/out since that bookkeeping is owned by FlowTracker, not Flow.
func (t *TCPExtension) ApplyFlags(flags TCPFlags, now float64, pendingSYN float64, havePendingSYN bool) (rtt float64, gotRTT bool, clearPending bool) {
	switch {
	case flags.SYN() && !flags.ACK():
		t.State = StateSynSent
		t.synTime, t.hasSynTime = now, true
	case flags.SYN() && flags.ACK():
		t.State = StateSynReceived
		t.synAckTime, t.hasSynAck = now, true
		if havePendingSYN {
			rtt = now - pendingSYN
			gotRTT = true
			clearPending = true
		}
	case flags.ACK() && !flags.SYN() && (t.State == StateSynSent || t.State == StateSynReceived):
		t.State = StateEstablished
		t.estTime, t.hasEst = now, true
	}

	if flags.FIN() {
		t.State = StateFinWait
	}
	if flags.RST() {
		t.State = StateClosed
	}
	if flags.ECE() {
		t.EcnEchoCount++
	}

	return rtt, gotRTT, clearPending
}
