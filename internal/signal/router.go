package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/application/metric"
	"github.com/S4tyendra/public-vc/internal/domain/models"
)

// RoomStore is the slice of the persistent store the router needs: room
// existence and creator resolution at join time. Satisfied by the postgres
// room repository.
type RoomStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// Router owns the signaling side of every connection: the join handshake,
// targeted relay, room broadcasts and the admin mute path.
type Router struct {
	registry *Registry
	store    RoomStore
}

func NewRouter(registry *Registry, store RoomStore) *Router {
	return &Router{
		registry: registry,
		store:    store,
	}
}

// Attach registers a new signaling connection: validates the room against the
// store (before any lock), joins the registry and performs the handshake.
// The joiner receives room-info then existing-users; everyone else receives
// user-joined. All three are produced under the room lock, so no member can
// observe them out of order. A duplicate (room, user) connection displaces
// the previous one, which is force-closed.
func (rt *Router) Attach(ctx context.Context, roomID, userID, userName string, conn Conn) (*Member, error) {
	id, err := uuid.Parse(roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	dbRoom, err := rt.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	var room *Room
	for {
		room = rt.registry.GetOrCreate(roomID, dbRoom.Name, dbRoom.CreatorID.String())

		room.mu.Lock()
		if !room.closed {
			break
		}

		// Lost a race with the last member leaving: the registry already
		// dropped this room. Take a fresh one.
		room.mu.Unlock()
	}

	member := &Member{
		UserID:   userID,
		UserName: userName,
		RoomID:   roomID,
		IsAdmin:  room.isAdmin(userID),
		conn:     conn,
	}

	displaced := room.addLocked(member)

	userIDs, users := room.snapshotLocked(userID)
	count := len(room.members)

	// A failed handshake unwinds the membership before releasing the lock so
	// no other member ever observes the half-joined state.
	unwind := func(err error) (*Member, error) {
		room.removeLocked(userID, conn)
		room.mu.Unlock()

		if displaced != nil {
			displaced.Close()
		}

		return nil, err
	}

	roomInfo, err := NewEnvelope(TypeRoomInfo, RoomInfoPayload{
		RoomID:      roomID,
		RoomName:    room.Name,
		MemberCount: count,
		IsAdmin:     member.IsAdmin,
	})
	if err != nil {
		return unwind(err)
	}

	existing, err := NewEnvelope(TypeExistingUsers, ExistingUsersPayload{
		UserIDs: userIDs,
		Users:   users,
	})
	if err != nil {
		return unwind(err)
	}

	joined, err := NewEnvelope(TypeUserJoined, PresencePayload{
		UserID:      userID,
		UserName:    userName,
		MemberCount: count,
	})
	if err != nil {
		return unwind(err)
	}

	if err := conn.Send(roomInfo); err != nil {
		return unwind(fmt.Errorf("send room-info: %w", err))
	}

	if err := conn.Send(existing); err != nil {
		return unwind(fmt.Errorf("send existing-users: %w", err))
	}

	room.broadcastLocked(joined, userID)

	room.mu.Unlock()

	if displaced != nil {
		slog.Info(
			"duplicate connection displaced",
			slog.String(constant.RoomID, roomID),
			slog.String(constant.UserID, userID),
		)
		displaced.Close()
	}

	metric.IncrementWSActiveConnections()
	metric.SetActiveRooms(rt.registry.RoomCount())

	slog.Info(
		"member joined",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.UserID, userID),
		slog.String(constant.UserName, userName),
	)

	return member, nil
}

// Detach removes a connection from its room and announces user-left.
// Idempotent, and a no-op for a connection that was already displaced by a
// newer join of the same user.
func (rt *Router) Detach(m *Member, conn Conn) {
	room := rt.registry.Get(m.RoomID)
	if room == nil {
		return
	}

	room.mu.Lock()

	removed, ok := room.removeLocked(m.UserID, conn)
	if ok {
		left, err := NewEnvelope(TypeUserLeft, PresencePayload{
			UserID:      removed.UserID,
			UserName:    removed.UserName,
			MemberCount: len(room.members),
		})
		if err == nil {
			room.broadcastLocked(left, "")
		}
	}

	room.mu.Unlock()

	if !ok {
		return
	}

	conn.Close()
	rt.registry.RemoveIfEmpty(m.RoomID)

	metric.DecrementWSActiveConnections()
	metric.SetActiveRooms(rt.registry.RoomCount())

	slog.Info(
		"member left",
		slog.String(constant.RoomID, m.RoomID),
		slog.String(constant.UserID, m.UserID),
	)
}

// Route dispatches one envelope read from a member's socket.
func (rt *Router) Route(m *Member, env Envelope) error {
	env.Sender = m.UserID

	room := rt.registry.Get(m.RoomID)
	if room == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, m.RoomID)
	}

	switch env.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		if env.Target == "" {
			slog.Debug("targeted envelope without target", slog.String(constant.MsgType, env.Type))
			return nil
		}

		room.mu.Lock()
		delivered := room.sendToLocked(env.Target, env)
		room.mu.Unlock()

		if !delivered {
			// Races between relay and departure are expected; the sender's
			// orchestrator tears the link down on user-left.
			slog.Debug(
				"relay target absent",
				slog.String(constant.RoomID, m.RoomID),
				slog.String(constant.PeerID, env.Target),
			)
			return nil
		}

		metric.IncrementSignalsRelayed(env.Type)

	case TypeChatMessage:
		var req ChatRequestPayload
		if err := env.DecodePayload(&req); err != nil {
			return err
		}

		chat, err := NewEnvelope(TypeChatMessage, ChatPayload{
			UserID:    m.UserID,
			UserName:  m.UserName,
			Message:   req.Message,
			Timestamp: time.Now().Unix(),
		})
		if err != nil {
			return err
		}
		chat.Sender = m.UserID

		room.mu.Lock()
		room.broadcastLocked(chat, "")
		room.mu.Unlock()

		metric.IncrementSignalsRelayed(env.Type)

	case TypeRoomInfo, TypeExistingUsers, TypeUserJoined, TypeUserLeft, TypeUserMuted, TypeUserUnmuted:
		// Server-produced types. A client sending one is spoofing presence
		// or mute state; drop it.
		slog.Warn(
			"dropping server-reserved envelope",
			slog.String(constant.UserID, m.UserID),
			slog.String(constant.MsgType, env.Type),
		)

	default:
		// Unclassified client messages (voice activity and the like) go to
		// everyone else as-is.
		room.mu.Lock()
		room.broadcastLocked(env, m.UserID)
		room.mu.Unlock()

		metric.IncrementSignalsRelayed(env.Type)
	}

	return nil
}

// Mute is the admin control path. Only a connected room admin may mute or
// unmute; the resulting state is broadcast to the whole room, the target
// included. Muting is advisory: the target's client is expected to disable
// its own track, the server cannot stop remote media.
func (rt *Router) Mute(roomID, adminUserID, targetUserID string, muted bool) error {
	room := rt.registry.Get(roomID)
	if room == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	msgType := TypeUserMuted
	if !muted {
		msgType = TypeUserUnmuted
	}

	env, err := NewEnvelope(msgType, MutePayload{UserID: targetUserID})
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, ok := room.members[adminUserID]; !ok || !room.isAdmin(adminUserID) {
		return ErrNotAuthorized
	}

	target, ok := room.members[targetUserID]
	if !ok {
		return ErrTargetNotFound
	}

	target.IsMuted = muted

	room.broadcastLocked(env, "")

	return nil
}
