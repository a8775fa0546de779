package peer

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Transport is the slice of a peer connection the orchestrator drives. The
// production implementation wraps pion; tests substitute a fake so the state
// machine can be exercised without opening sockets.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))

	Close() error
}

// TransportFactory builds one transport per remote peer.
type TransportFactory func() (Transport, error)

type webrtcTransport struct {
	pc *webrtc.PeerConnection
}

// NewWebRTCFactory returns a factory producing pion peer connections with the
// given ICE servers and the local track attached.
func NewWebRTCFactory(iceServers []webrtc.ICEServer, track webrtc.TrackLocal) TransportFactory {
	return func() (Transport, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}

		if track != nil {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add local track: %w", err)
			}
		}

		return &webrtcTransport{pc: pc}, nil
	}
}

func (t *webrtcTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *webrtcTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *webrtcTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *webrtcTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *webrtcTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

func (t *webrtcTransport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

func (t *webrtcTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *webrtcTransport) Close() error {
	return t.pc.Close()
}
