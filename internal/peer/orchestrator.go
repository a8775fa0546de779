package peer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/signal"
)

// DefaultNegotiationTimeout bounds one offer/answer exchange. A link that has
// not connected by then is torn down without touching its siblings.
const DefaultNegotiationTimeout = 30 * time.Second

// SendFunc pushes an envelope up the signaling channel.
type SendFunc func(env signal.Envelope) error

// Orchestrator owns the local participant's mesh: one PeerLink per remote
// member, driven by signaling envelopes and transport callbacks.
//
// Glare is resolved deterministically: only the participant with the smaller
// user id initiates an offer for a pair; the other side always answers. Both
// roster triggers (existing-users and user-joined) funnel through the same
// gate, so exactly one side offers no matter how the joins interleave.
type Orchestrator struct {
	selfID  string
	factory TransportFactory
	send    SendFunc

	negotiationTimeout time.Duration

	// OnMuteChanged fires for user-muted/user-unmuted broadcasts, including
	// ones naming the local participant.
	OnMuteChanged func(userID string, muted bool)

	mu     sync.Mutex
	links  map[string]*PeerLink
	closed bool

	// early parks candidates that arrive before any link exists for their
	// peer; the link drains them on creation.
	early map[string][]webrtc.ICECandidateInit
}

func NewOrchestrator(selfID string, factory TransportFactory, send SendFunc, negotiationTimeout time.Duration) *Orchestrator {
	if negotiationTimeout <= 0 {
		negotiationTimeout = DefaultNegotiationTimeout
	}

	return &Orchestrator{
		selfID:             selfID,
		factory:            factory,
		send:               send,
		negotiationTimeout: negotiationTimeout,
		links:              make(map[string]*PeerLink),
		early:              make(map[string][]webrtc.ICECandidateInit),
	}
}

// Handle dispatches one envelope received from the signaling channel.
func (o *Orchestrator) Handle(env signal.Envelope) error {
	switch env.Type {
	case signal.TypeExistingUsers:
		var p signal.ExistingUsersPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		for _, peerID := range p.UserIDs {
			if err := o.maybeOffer(peerID); err != nil {
				slog.Error(
					"offer to existing member failed",
					slog.String(constant.PeerID, peerID),
					slog.Any(constant.Error, err),
				)
			}
		}

	case signal.TypeUserJoined:
		var p signal.PresencePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		if err := o.maybeOffer(p.UserID); err != nil {
			return fmt.Errorf("offer to joined member: %w", err)
		}

	case signal.TypeUserLeft:
		var p signal.PresencePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		o.closePeer(p.UserID)

	case signal.TypeOffer:
		var p signal.OfferPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		return o.handleOffer(env.Sender, p.Offer)

	case signal.TypeAnswer:
		var p signal.AnswerPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		o.handleAnswer(env.Sender, p.Answer)

	case signal.TypeICECandidate:
		var p signal.ICECandidatePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		o.handleCandidate(env.Sender, p.Candidate)

	case signal.TypeUserMuted, signal.TypeUserUnmuted:
		var p signal.MutePayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		if o.OnMuteChanged != nil {
			o.OnMuteChanged(p.UserID, env.Type == signal.TypeUserMuted)
		}
	}

	return nil
}

// maybeOffer opens a link and sends an offer to peerID if the local side is
// the designated initiator and no link exists yet.
func (o *Orchestrator) maybeOffer(peerID string) error {
	if peerID == o.selfID {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	if _, ok := o.links[peerID]; ok {
		return nil
	}

	if !(o.selfID < peerID) {
		// The remote side initiates for this pair; we answer when its offer
		// arrives.
		return nil
	}

	link, err := o.newLinkLocked(peerID)
	if err != nil {
		return err
	}

	offer, err := link.transport.CreateOffer()
	if err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("create offer: %w", err)
	}

	if err := link.transport.SetLocalDescription(offer); err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("set local offer: %w", err)
	}

	link.state = LinkOfferCreated

	env, err := signal.NewEnvelope(signal.TypeOffer, signal.OfferPayload{Offer: offer})
	if err != nil {
		o.closeLinkLocked(link)
		return err
	}
	env.Target = peerID

	if err := o.send(env); err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("send offer: %w", err)
	}

	link.state = LinkAnswerAwaited

	return nil
}

func (o *Orchestrator) handleOffer(peerID string, offer webrtc.SessionDescription) error {
	if peerID == "" || peerID == o.selfID {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	if existing, ok := o.links[peerID]; ok {
		// Either a duplicate offer or glare from a remote that ignored the
		// initiator rule. The existing link stands.
		slog.Warn(
			"ignoring offer for existing link",
			slog.String(constant.PeerID, peerID),
			slog.String("state", existing.state.String()),
		)
		return nil
	}

	link, err := o.newLinkLocked(peerID)
	if err != nil {
		return err
	}
	link.state = LinkOfferReceived

	if err := link.applyRemoteDescription(offer); err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("set remote offer: %w", err)
	}

	answer, err := link.transport.CreateAnswer()
	if err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("create answer: %w", err)
	}

	if err := link.transport.SetLocalDescription(answer); err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("set local answer: %w", err)
	}

	env, err := signal.NewEnvelope(signal.TypeAnswer, signal.AnswerPayload{Answer: answer})
	if err != nil {
		o.closeLinkLocked(link)
		return err
	}
	env.Target = peerID

	if err := o.send(env); err != nil {
		o.closeLinkLocked(link)
		return fmt.Errorf("send answer: %w", err)
	}

	link.state = LinkAnswerSent

	return nil
}

func (o *Orchestrator) handleAnswer(peerID string, answer webrtc.SessionDescription) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[peerID]
	if !ok {
		// The peer may have left between our offer and its answer.
		slog.Debug("answer for unknown peer", slog.String(constant.PeerID, peerID))
		return
	}

	if link.state != LinkAnswerAwaited && link.state != LinkOfferCreated {
		slog.Warn(
			"answer in unexpected state",
			slog.String(constant.PeerID, peerID),
			slog.String("state", link.state.String()),
		)
		return
	}

	if err := link.applyRemoteDescription(answer); err != nil {
		slog.Error(
			"apply remote answer",
			slog.String(constant.PeerID, peerID),
			slog.Any(constant.Error, err),
		)
		o.closeLinkLocked(link)
		return
	}

	link.state = LinkConnected
	link.stopTimeout()
}

func (o *Orchestrator) handleCandidate(peerID string, candidate *webrtc.ICECandidateInit) {
	if candidate == nil {
		// End-of-candidates marker.
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	link, ok := o.links[peerID]
	if !ok {
		// The candidate outran the offer; park it for the future link.
		o.early[peerID] = append(o.early[peerID], *candidate)
		return
	}

	if !link.remoteSet {
		link.pendingCandidates = append(link.pendingCandidates, *candidate)
		return
	}

	if err := link.transport.AddICECandidate(*candidate); err != nil {
		slog.Error(
			"add ice candidate",
			slog.String(constant.PeerID, peerID),
			slog.Any(constant.Error, err),
		)
	}
}

// newLinkLocked builds the link, wires transport callbacks and arms the
// negotiation timeout. Caller holds o.mu.
func (o *Orchestrator) newLinkLocked(peerID string) (*PeerLink, error) {
	transport, err := o.factory()
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	link := &PeerLink{
		peerID:    peerID,
		state:     LinkIdle,
		transport: transport,
	}
	o.links[peerID] = link

	link.pendingCandidates = append(link.pendingCandidates, o.early[peerID]...)
	delete(o.early, peerID)

	transport.OnICECandidate(func(c *webrtc.ICECandidate) {
		var init *webrtc.ICECandidateInit
		if c != nil {
			v := c.ToJSON()
			init = &v
		}

		env, err := signal.NewEnvelope(signal.TypeICECandidate, signal.ICECandidatePayload{Candidate: init})
		if err != nil {
			return
		}
		env.Target = peerID

		if err := o.send(env); err != nil {
			slog.Debug("send ice candidate", slog.Any(constant.Error, err))
		}
	})

	// State changes land asynchronously and a closed transport can still
	// report after its peer rejoined, so teardown is keyed on transport
	// identity, never on peer id alone.
	transport.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			o.markConnected(peerID, transport)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			o.closeIfCurrent(peerID, transport)
		default:
		}
	})

	link.timeout = time.AfterFunc(o.negotiationTimeout, func() {
		o.expirePeer(peerID)
	})

	return link, nil
}

// markConnected is the answerer's path to Connected: the transport reports
// the pair is up once the offerer's answer round-trip settles. Ignored when
// the link no longer owns the reporting transport.
func (o *Orchestrator) markConnected(peerID string, transport Transport) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[peerID]
	if !ok || link.transport != transport || link.state == LinkClosed {
		return
	}

	link.state = LinkConnected
	link.stopTimeout()
}

// closeIfCurrent tears a link down only while it still owns transport. A
// stale transport's late failure must not touch a replacement link.
func (o *Orchestrator) closeIfCurrent(peerID string, transport Transport) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[peerID]
	if !ok || link.transport != transport {
		return
	}

	o.closeLinkLocked(link)
}

// expirePeer tears down a link whose negotiation never completed.
func (o *Orchestrator) expirePeer(peerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[peerID]
	if !ok || link.state == LinkConnected {
		return
	}

	slog.Warn(
		"negotiation timed out",
		slog.String(constant.PeerID, peerID),
		slog.String("state", link.state.String()),
	)
	o.closeLinkLocked(link)
}

// closePeer tears down one link; other links are untouched.
func (o *Orchestrator) closePeer(peerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.early, peerID)

	if link, ok := o.links[peerID]; ok {
		o.closeLinkLocked(link)
	}
}

func (o *Orchestrator) closeLinkLocked(link *PeerLink) {
	link.stopTimeout()
	link.state = LinkClosed

	if err := link.transport.Close(); err != nil {
		slog.Debug(
			"close transport",
			slog.String(constant.PeerID, link.peerID),
			slog.Any(constant.Error, err),
		)
	}

	delete(o.links, link.peerID)
}

// Close tears down every link. The orchestrator accepts no new work after.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.early = nil

	for _, link := range o.links {
		o.closeLinkLocked(link)
	}
}

// LinkState reports the state of the link to peerID, LinkClosed when none
// exists.
func (o *Orchestrator) LinkState(peerID string) LinkState {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[peerID]
	if !ok {
		return LinkClosed
	}

	return link.state
}

// PeerIDs lists the peers with live links.
func (o *Orchestrator) PeerIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.links))
	for id := range o.links {
		ids = append(ids, id)
	}

	return ids
}
