package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalSymmetric(t *testing.T) {
	a := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	b := Canonical("10.0.0.2", 80, "10.0.0.1", 5000, ProtoTCP)
	require.Equal(t, a, b)
	require.True(t, a.IPLo <= a.IPHi || (a.IPLo == a.IPHi && a.PortLo <= a.PortHi))
}

func TestCanonicalIsForward(t *testing.T) {
	key := Canonical("10.0.0.1", 5000, "10.0.0.2", 80, ProtoTCP)
	require.True(t, key.IsForward("10.0.0.1", 5000))
	require.False(t, key.IsForward("10.0.0.2", 80))
}

func TestKeyForNoPorts(t *testing.T) {
	p := PacketRecord{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: ProtoICMP}
	k := KeyFor(p)
	require.Equal(t, uint16(0), k.PortLo)
	require.Equal(t, uint16(0), k.PortHi)
}
