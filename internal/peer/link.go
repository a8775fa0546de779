package peer

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// LinkState tracks one peer pair's negotiation progress. Closed is terminal;
// a later reconnect builds a fresh link.
type LinkState int

const (
	LinkIdle LinkState = iota
	LinkOfferCreated
	LinkAnswerAwaited
	LinkOfferReceived
	LinkAnswerSent
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkOfferCreated:
		return "offer-created"
	case LinkAnswerAwaited:
		return "answer-awaited"
	case LinkOfferReceived:
		return "offer-received"
	case LinkAnswerSent:
		return "answer-sent"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerLink is the orchestrator-local state for one remote peer: at most one
// exists per peer id at any time. Guarded by the orchestrator mutex.
type PeerLink struct {
	peerID    string
	state     LinkState
	transport Transport

	remoteSet bool

	// Candidates can outrun the remote description; they are parked here and
	// flushed the moment it lands.
	pendingCandidates []webrtc.ICECandidateInit

	timeout *time.Timer
}

func (l *PeerLink) stopTimeout() {
	if l.timeout != nil {
		l.timeout.Stop()
		l.timeout = nil
	}
}

// applyRemoteDescription sets the remote SDP and drains parked candidates.
func (l *PeerLink) applyRemoteDescription(desc webrtc.SessionDescription) error {
	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return err
	}

	l.remoteSet = true

	for _, c := range l.pendingCandidates {
		if err := l.transport.AddICECandidate(c); err != nil {
			return err
		}
	}
	l.pendingCandidates = nil

	return nil
}
