package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/S4tyendra/public-vc/internal/signal"
)

// fakeTransport records every call so the negotiation state machine can be
// exercised without opening sockets.
type fakeTransport struct {
	mu sync.Mutex

	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool

	stateChange func(webrtc.PeerConnectionState)
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localDesc = &desc
	return nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &desc
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(*webrtc.ICECandidate)) {}

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateChange = fn
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) fireState(state webrtc.PeerConnectionState) {
	f.mu.Lock()
	fn := f.stateChange
	f.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) candidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates)
}

type sentRecorder struct {
	mu   sync.Mutex
	envs []signal.Envelope
}

func (r *sentRecorder) send(env signal.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *sentRecorder) envelopes() []signal.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]signal.Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

func newTestOrchestrator(selfID string) (*Orchestrator, *sentRecorder, *[]*fakeTransport) {
	rec := &sentRecorder{}
	transports := &[]*fakeTransport{}

	factory := func() (Transport, error) {
		ft := &fakeTransport{}
		*transports = append(*transports, ft)
		return ft, nil
	}

	return NewOrchestrator(selfID, factory, rec.send, time.Hour), rec, transports
}

func mustEnvelope(t *testing.T, msgType string, payload any, sender string) signal.Envelope {
	t.Helper()

	env, err := signal.NewEnvelope(msgType, payload)
	require.NoError(t, err)
	env.Sender = sender
	return env
}

func TestOrchestrator_SmallerIDInitiates(t *testing.T) {
	orch, rec, _ := newTestOrchestrator("aaa")

	env := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb", UserName: "bob"}, "")
	require.NoError(t, orch.Handle(env))

	sent := rec.envelopes()
	require.Len(t, sent, 1)
	require.Equal(t, signal.TypeOffer, sent[0].Type)
	require.Equal(t, "bbb", sent[0].Target)
	require.Equal(t, LinkAnswerAwaited, orch.LinkState("bbb"))
}

func TestOrchestrator_LargerIDWaits(t *testing.T) {
	orch, rec, _ := newTestOrchestrator("bbb")

	env := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "aaa", UserName: "alice"}, "")
	require.NoError(t, orch.Handle(env))

	require.Empty(t, rec.envelopes())
	require.Empty(t, orch.PeerIDs())
}

func TestOrchestrator_ExistingUsersOffers(t *testing.T) {
	orch, rec, _ := newTestOrchestrator("aaa")

	env := mustEnvelope(t, signal.TypeExistingUsers, signal.ExistingUsersPayload{
		UserIDs: []string{"bbb", "ccc", "aaa"},
	}, "")
	require.NoError(t, orch.Handle(env))

	sent := rec.envelopes()
	require.Len(t, sent, 2)
	require.Equal(t, "bbb", sent[0].Target)
	require.Equal(t, "ccc", sent[1].Target)

	// Self never gets a link.
	require.NotContains(t, orch.PeerIDs(), "aaa")
}

func TestOrchestrator_AnswersInboundOffer(t *testing.T) {
	orch, rec, transports := newTestOrchestrator("bbb")

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"}
	env := mustEnvelope(t, signal.TypeOffer, signal.OfferPayload{Offer: offer}, "aaa")
	require.NoError(t, orch.Handle(env))

	sent := rec.envelopes()
	require.Len(t, sent, 1)
	require.Equal(t, signal.TypeAnswer, sent[0].Type)
	require.Equal(t, "aaa", sent[0].Target)
	require.Equal(t, LinkAnswerSent, orch.LinkState("aaa"))

	require.Len(t, *transports, 1)
	ft := (*transports)[0]
	require.NotNil(t, ft.remoteDesc)
	require.NotNil(t, ft.localDesc)

	// The answerer reaches Connected through the transport callback.
	ft.fireState(webrtc.PeerConnectionStateConnected)
	require.Equal(t, LinkConnected, orch.LinkState("aaa"))
}

func TestOrchestrator_OffererConnectsOnAnswer(t *testing.T) {
	orch, _, _ := newTestOrchestrator("aaa")

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 remote"}
	env := mustEnvelope(t, signal.TypeAnswer, signal.AnswerPayload{Answer: answer}, "bbb")
	require.NoError(t, orch.Handle(env))

	require.Equal(t, LinkConnected, orch.LinkState("bbb"))
}

func TestOrchestrator_DuplicateOfferIgnored(t *testing.T) {
	orch, rec, transports := newTestOrchestrator("bbb")

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"}
	env := mustEnvelope(t, signal.TypeOffer, signal.OfferPayload{Offer: offer}, "aaa")
	require.NoError(t, orch.Handle(env))
	require.NoError(t, orch.Handle(env))

	// One answer, one transport; the replay changed nothing.
	require.Len(t, rec.envelopes(), 1)
	require.Len(t, *transports, 1)
}

func TestOrchestrator_GlareBothSidesAgree(t *testing.T) {
	// Simulate both participants racing to negotiate: each learns about the
	// other at the same time. Exactly one side must produce an offer.
	alice, aliceRec, _ := newTestOrchestrator("aaa")
	bob, bobRec, _ := newTestOrchestrator("bbb")

	aliceSees := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	bobSees := mustEnvelope(t, signal.TypeExistingUsers, signal.ExistingUsersPayload{UserIDs: []string{"aaa"}}, "")

	require.NoError(t, alice.Handle(aliceSees))
	require.NoError(t, bob.Handle(bobSees))

	require.Len(t, aliceRec.envelopes(), 1)
	require.Empty(t, bobRec.envelopes())

	// Bob answers Alice's offer; both sides settle on a single link.
	offerEnv := aliceRec.envelopes()[0]
	offerEnv.Sender = "aaa"
	require.NoError(t, bob.Handle(offerEnv))

	answerEnv := bobRec.envelopes()[0]
	answerEnv.Sender = "bbb"
	require.NoError(t, alice.Handle(answerEnv))

	require.Equal(t, LinkConnected, alice.LinkState("bbb"))
	require.Equal(t, LinkAnswerSent, bob.LinkState("aaa"))
}

func TestOrchestrator_CandidatesBufferedUntilRemoteSet(t *testing.T) {
	orch, _, transports := newTestOrchestrator("aaa")

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	ft := (*transports)[0]

	early := mustEnvelope(t, signal.TypeICECandidate, signal.ICECandidatePayload{
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"},
	}, "bbb")
	require.NoError(t, orch.Handle(early))

	// No remote description yet: the candidate is parked, not applied.
	require.Equal(t, 0, ft.candidateCount())

	answer := mustEnvelope(t, signal.TypeAnswer, signal.AnswerPayload{
		Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	}, "bbb")
	require.NoError(t, orch.Handle(answer))

	// Remote description landed: parked candidate flushed.
	require.Equal(t, 1, ft.candidateCount())

	late := mustEnvelope(t, signal.TypeICECandidate, signal.ICECandidatePayload{
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:2"},
	}, "bbb")
	require.NoError(t, orch.Handle(late))
	require.Equal(t, 2, ft.candidateCount())
}

func TestOrchestrator_NilCandidateIsEndMarker(t *testing.T) {
	orch, _, transports := newTestOrchestrator("aaa")

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	end := mustEnvelope(t, signal.TypeICECandidate, signal.ICECandidatePayload{Candidate: nil}, "bbb")
	require.NoError(t, orch.Handle(end))

	require.Equal(t, 0, (*transports)[0].candidateCount())
}

func TestOrchestrator_AnswerForUnknownPeerIgnored(t *testing.T) {
	orch, rec, _ := newTestOrchestrator("aaa")

	answer := mustEnvelope(t, signal.TypeAnswer, signal.AnswerPayload{
		Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	}, "ghost")
	require.NoError(t, orch.Handle(answer))

	require.Empty(t, rec.envelopes())
	require.Empty(t, orch.PeerIDs())
}

func TestOrchestrator_UserLeftTearsDownOneLink(t *testing.T) {
	orch, _, transports := newTestOrchestrator("aaa")

	existing := mustEnvelope(t, signal.TypeExistingUsers, signal.ExistingUsersPayload{
		UserIDs: []string{"bbb", "ccc"},
	}, "")
	require.NoError(t, orch.Handle(existing))
	require.Len(t, orch.PeerIDs(), 2)

	left := mustEnvelope(t, signal.TypeUserLeft, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(left))

	require.Equal(t, LinkClosed, orch.LinkState("bbb"))
	require.Equal(t, []string{"ccc"}, orch.PeerIDs())
	require.True(t, (*transports)[0].isClosed())
	require.False(t, (*transports)[1].isClosed())
}

func TestOrchestrator_FailedTransportTearsDownLink(t *testing.T) {
	orch, _, transports := newTestOrchestrator("aaa")

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	(*transports)[0].fireState(webrtc.PeerConnectionStateFailed)

	require.Equal(t, LinkClosed, orch.LinkState("bbb"))
	require.True(t, (*transports)[0].isClosed())
}

func TestOrchestrator_StaleTransportEventIgnoredAfterRejoin(t *testing.T) {
	orch, _, transports := newTestOrchestrator("aaa")

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	left := mustEnvelope(t, signal.TypeUserLeft, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(left))

	require.NoError(t, orch.Handle(join))
	require.Len(t, *transports, 2)
	require.Equal(t, LinkAnswerAwaited, orch.LinkState("bbb"))

	// The first transport reports its teardown late, after the peer
	// rejoined. The fresh link must survive it.
	(*transports)[0].fireState(webrtc.PeerConnectionStateFailed)
	require.Equal(t, LinkAnswerAwaited, orch.LinkState("bbb"))
	require.False(t, (*transports)[1].isClosed())

	// A stale Connected event must not promote the fresh link either.
	(*transports)[0].fireState(webrtc.PeerConnectionStateConnected)
	require.Equal(t, LinkAnswerAwaited, orch.LinkState("bbb"))

	// The current transport's failure still tears the link down.
	(*transports)[1].fireState(webrtc.PeerConnectionStateFailed)
	require.Equal(t, LinkClosed, orch.LinkState("bbb"))
}

func TestOrchestrator_CandidateBeforeLinkParked(t *testing.T) {
	orch, _, transports := newTestOrchestrator("ccc")

	early := mustEnvelope(t, signal.TypeICECandidate, signal.ICECandidatePayload{
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:0"},
	}, "bbb")
	require.NoError(t, orch.Handle(early))
	require.Empty(t, orch.PeerIDs())

	offer := mustEnvelope(t, signal.TypeOffer, signal.OfferPayload{
		Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	}, "bbb")
	require.NoError(t, orch.Handle(offer))

	// The parked candidate lands once the remote description is set.
	require.Equal(t, 1, (*transports)[0].candidateCount())
}

func TestOrchestrator_UserLeftClearsParkedCandidates(t *testing.T) {
	orch, _, transports := newTestOrchestrator("ccc")

	early := mustEnvelope(t, signal.TypeICECandidate, signal.ICECandidatePayload{
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:0"},
	}, "bbb")
	require.NoError(t, orch.Handle(early))

	left := mustEnvelope(t, signal.TypeUserLeft, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(left))

	offer := mustEnvelope(t, signal.TypeOffer, signal.OfferPayload{
		Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	}, "bbb")
	require.NoError(t, orch.Handle(offer))

	require.Equal(t, 0, (*transports)[0].candidateCount())
}

func TestOrchestrator_NegotiationTimeout(t *testing.T) {
	rec := &sentRecorder{}
	transports := []*fakeTransport{}

	factory := func() (Transport, error) {
		ft := &fakeTransport{}
		transports = append(transports, ft)
		return ft, nil
	}

	orch := NewOrchestrator("aaa", factory, rec.send, 20*time.Millisecond)

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	require.Eventually(t, func() bool {
		return orch.LinkState("bbb") == LinkClosed
	}, time.Second, 5*time.Millisecond)

	require.True(t, transports[0].isClosed())
}

func TestOrchestrator_ConnectedLinkSurvivesTimeout(t *testing.T) {
	rec := &sentRecorder{}

	factory := func() (Transport, error) {
		return &fakeTransport{}, nil
	}

	orch := NewOrchestrator("aaa", factory, rec.send, 20*time.Millisecond)

	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "bbb"}, "")
	require.NoError(t, orch.Handle(join))

	answer := mustEnvelope(t, signal.TypeAnswer, signal.AnswerPayload{
		Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
	}, "bbb")
	require.NoError(t, orch.Handle(answer))

	time.Sleep(60 * time.Millisecond)

	require.Equal(t, LinkConnected, orch.LinkState("bbb"))
}

func TestOrchestrator_MuteCallback(t *testing.T) {
	orch, _, _ := newTestOrchestrator("aaa")

	var gotUser string
	var gotMuted bool
	orch.OnMuteChanged = func(userID string, muted bool) {
		gotUser = userID
		gotMuted = muted
	}

	muted := mustEnvelope(t, signal.TypeUserMuted, signal.MutePayload{UserID: "aaa"}, "")
	require.NoError(t, orch.Handle(muted))
	require.Equal(t, "aaa", gotUser)
	require.True(t, gotMuted)

	unmuted := mustEnvelope(t, signal.TypeUserUnmuted, signal.MutePayload{UserID: "aaa"}, "")
	require.NoError(t, orch.Handle(unmuted))
	require.False(t, gotMuted)
}

func TestOrchestrator_CloseTearsDownAll(t *testing.T) {
	orch, _, transports := newTestOrchestrator("aaa")

	existing := mustEnvelope(t, signal.TypeExistingUsers, signal.ExistingUsersPayload{
		UserIDs: []string{"bbb", "ccc"},
	}, "")
	require.NoError(t, orch.Handle(existing))

	orch.Close()

	require.Empty(t, orch.PeerIDs())
	for _, ft := range *transports {
		require.True(t, ft.isClosed())
	}

	// No new links after close.
	join := mustEnvelope(t, signal.TypeUserJoined, signal.PresencePayload{UserID: "ddd"}, "")
	require.NoError(t, orch.Handle(join))
	require.Empty(t, orch.PeerIDs())
}
