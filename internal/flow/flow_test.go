package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveSequenceNewThenRetransmit(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	f := New(key, 0)

	r1 := f.ObserveSequence(1000, 0.000)
	require.Equal(t, SeqNew, r1.Outcome)

	r2 := f.ObserveSequence(2000, 0.050)
	require.Equal(t, SeqNew, r2.Outcome)

	r3 := f.ObserveSequence(1000, 0.150)
	require.Equal(t, SeqRetransmit, r3.Outcome)
	require.InDelta(t, 0.150, r3.RetransmitDelay, 1e-9)
}

func TestObserveSequenceOutOfOrder(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	f := New(key, 0)
	f.ObserveSequence(5000, 0)
	f.ObserveSequence(6000, 1)
	// seq below highest, never seen before -> out of order, not retransmit
	r := f.ObserveSequence(3000, 2)
	require.Equal(t, SeqOutOfOrder, r.Outcome)
}

func TestSeqHistoryPrune(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	f := New(key, 0)
	for i := uint32(0); i < 1200; i++ {
		f.ObserveSequence(i, float64(i))
	}
	// The 1001st entry triggers a prune down to the newest 500; the
	// remaining 199 sequences are then added on top.
	require.Len(t, f.SeqHistory, 699)
}

func TestDirectionalCounters(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	f := New(key, 0)
	f.RecordDirectional(true, 100)
	f.RecordDirectional(false, 200)
	require.Equal(t, uint64(1), f.PacketsSent)
	require.Equal(t, uint64(1), f.PacketsReceived)
	require.Equal(t, f.TotalPackets(), f.PacketsSent+f.PacketsReceived)
}

func TestJitterRequiresTwoSamples(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoUDP)
	f := New(key, 0)
	f.Touch(0)
	_, ok := f.Jitter()
	require.False(t, ok)
	f.Touch(0.1)
	_, ok = f.Jitter()
	require.False(t, ok) // only one IAT sample so far
	f.Touch(0.25)
	j, ok := f.Jitter()
	require.True(t, ok)
	require.InDelta(t, 0.05, j, 1e-9)
}

func TestTCPHandshakeRTT(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	f := New(key, 1.000)
	require.NotNil(t, f.TCP)

	// SYN at t=1.000
	_, _, _ = f.TCP.ApplyFlags(FlagSYN, 1.000, 0, false)
	require.Equal(t, StateSynSent, f.TCP.State)

	// SYN-ACK at t=1.040, pending SYN recorded at 1.000
	rtt, got, clear := f.TCP.ApplyFlags(FlagSYN|FlagACK, 1.040, 1.000, true)
	require.True(t, got)
	require.True(t, clear)
	require.InDelta(t, 0.040, rtt, 1e-9)
	require.Equal(t, StateSynReceived, f.TCP.State)

	// ACK at t=1.045 while SYN_RECEIVED -> ESTABLISHED
	_, _, _ = f.TCP.ApplyFlags(FlagACK, 1.045, 0, false)
	require.Equal(t, StateEstablished, f.TCP.State)
}
