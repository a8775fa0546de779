package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Envelope is the wire unit for every signaling exchange. Sender is stamped by
// the server, Target is set by the client for peer-to-peer relay.
type Envelope struct {
	Type    string          `json:"type"`
	Sender  string          `json:"sender,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	TypeRoomInfo      = "room-info"
	TypeExistingUsers = "existing-users"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
	TypeOffer         = "webrtc-offer"
	TypeAnswer        = "webrtc-answer"
	TypeICECandidate  = "webrtc-ice-candidate"
	TypeChatMessage   = "chat-message"
	TypeUserMuted     = "user-muted"
	TypeUserUnmuted   = "user-unmuted"
)

type RoomInfoPayload struct {
	RoomID      string `json:"roomId"`
	RoomName    string `json:"roomName"`
	MemberCount int    `json:"memberCount"`
	IsAdmin     bool   `json:"isAdmin"`
}

// MemberInfo is the roster entry shape shared by existing-users snapshots and
// the REST members listing.
type MemberInfo struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsMuted  bool   `json:"isMuted"`
	IsAdmin  bool   `json:"isAdmin"`
}

type ExistingUsersPayload struct {
	UserIDs []string     `json:"userIds"`
	Users   []MemberInfo `json:"users"`
}

// PresencePayload is shared by user-joined and user-left.
type PresencePayload struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	MemberCount int    `json:"memberCount"`
}

type OfferPayload struct {
	Offer webrtc.SessionDescription `json:"offer"`
}

type AnswerPayload struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

// ICECandidatePayload carries one gathered candidate. A nil Candidate is the
// end-of-candidates marker and is valid on the wire.
type ICECandidatePayload struct {
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}

type ChatRequestPayload struct {
	Message string `json:"message"`
}

type ChatPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type MutePayload struct {
	UserID string `json:"userId"`
}

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	return Envelope{Type: msgType, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e Envelope) DecodePayload(target any) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}

	return nil
}

// ParseEnvelope decodes one raw websocket frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	return env, nil
}
