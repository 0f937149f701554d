//go:build !linux

package capture

import "errors"

// SocketRetransmitProbe is the non-Linux stand-in: INET_DIAG is a Linux
// sock_diag facility with no portable equivalent, so NewSocketRetransmitProbe
// always fails here and callers fall back to packet-capture-only retransmit
// stats.
type SocketRetransmitProbe struct{}

func NewSocketRetransmitProbe() (*SocketRetransmitProbe, error) {
	return nil, errors.New("socket retransmit corroboration requires linux (INET_DIAG)")
}

func (p *SocketRetransmitProbe) TotalRetransmits() (uint64, error) { return 0, nil }

func (p *SocketRetransmitProbe) Close() error { return nil }
